// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// hierfsbackend serves the remote key/value store that hierfsmount talks
// to. It can listen on more than one port at once, the way the Python
// prototype accepted a list of ports: every listener shares the same
// in-memory Store, so any mount can reach the same objects regardless of
// which port it was given.
//
// Usage:
//
//	hierfsbackend [flags] port [port...]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hierfs/hierfs/internal/backend/rpc"
	"github.com/hierfs/hierfs/internal/logger"
)

var logFile, logFormat, logSeverity string

var rootCmd = &cobra.Command{
	Use:   "hierfsbackend [flags] port [port...]",
	Short: "Serve the hierfs remote key/value store over HTTP",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := listenAddrsFromPortArgs(args)
		if err != nil {
			return err
		}
		return run(cmd.Context(), addrs)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log.file", "", "path to the log file; empty logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log.format", "text", "text or json")
	rootCmd.PersistentFlags().StringVar(&logSeverity, "log.severity", "info", "trace, debug, info, warning, or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// listenAddrsFromPortArgs turns the command's positional port arguments into
// loopback listen addresses, e.g. "9000" -> "127.0.0.1:9000" — the same
// address hierfsmount's <backend-port> argument builds its client URL from.
func listenAddrsFromPortArgs(args []string) ([]string, error) {
	addrs := make([]string, len(args))
	for i, arg := range args {
		port, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", arg, err)
		}
		addrs[i] = fmt.Sprintf("127.0.0.1:%d", port)
	}
	return addrs, nil
}

func run(ctx context.Context, listenAddrs []string) error {
	if err := logger.InitLogFile(logger.Config{
		FilePath: logFile,
		Format:   logFormat,
		Severity: logger.ParseSeverity(logSeverity),
	}); err != nil {
		return fmt.Errorf("logger.InitLogFile: %w", err)
	}

	if len(listenAddrs) == 0 {
		return fmt.Errorf("at least one listen port is required")
	}

	store := rpc.NewStore()
	handler := rpc.NewServer(store).Handler()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	servers := make([]*http.Server, len(listenAddrs))
	for i, addr := range listenAddrs {
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		servers[i] = srv
		group.Go(func() error {
			logger.Infof("hierfsbackend listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("shutting down %s: %v", srv.Addr, err)
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Infof("hierfsbackend stopped")
	return nil
}
