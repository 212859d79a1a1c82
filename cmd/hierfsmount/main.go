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

// hierfsmount mounts a hierfs backend as a local FUSE file system.
//
// Usage:
//
//	hierfsmount [flags] mountpoint backend-port cache-capacity
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hierfs/hierfs/internal/backend/rpc"
	"github.com/hierfs/hierfs/internal/bridge"
	"github.com/hierfs/hierfs/internal/cache"
	"github.com/hierfs/hierfs/internal/cfg"
	"github.com/hierfs/hierfs/internal/fsops"
	"github.com/hierfs/hierfs/internal/logger"
	"github.com/hierfs/hierfs/internal/metrics"
	"github.com/hierfs/hierfs/internal/store"
)

const inBackgroundEnvVar = "HIERFS_IN_BACKGROUND_MODE"

var crashLogPath string

var rootCmd = &cobra.Command{
	Use:   "hierfsmount [flags] mountpoint backend-port cache-capacity",
	Short: "Mount a hierfs backend as a local FUSE file system",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMount(args[0], args[1], args[2])
	},
}

func init() {
	if err := cfg.BindFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "binding flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.PersistentFlags().StringVar(&crashLogPath, "crash-log", "",
		"also append fatal panic output to this file, in addition to stderr; empty disables it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMount(mountPointArg, backendPortArg, cacheCapacityArg string) error {
	if crashLogPath != "" {
		_ = debug.SetCrashOutput(&crashWriter{fileName: crashLogPath}, debug.CrashOptions{})
	}

	c := cfg.Load()

	if err := logger.InitLogFile(logger.Config{
		FilePath: c.Logging.FilePath,
		Format:   c.Logging.Format,
		Severity: logger.ParseSeverity(c.Logging.Severity),
	}); err != nil {
		return fmt.Errorf("logger.InitLogFile: %w", err)
	}

	backendPort, err := strconv.Atoi(backendPortArg)
	if err != nil {
		return fmt.Errorf("backend-port %q: %w", backendPortArg, err)
	}
	c.Backend.Address = fmt.Sprintf("http://127.0.0.1:%d", backendPort)

	cacheCapacity, err := strconv.Atoi(cacheCapacityArg)
	if err != nil {
		return fmt.Errorf("cache-capacity %q: %w", cacheCapacityArg, err)
	}
	c.Cache.Capacity = cacheCapacity

	mountPoint, err := filepath.Abs(mountPointArg)
	if err != nil {
		return fmt.Errorf("resolving mount point: %w", err)
	}

	if !c.FileSystem.Foreground && os.Getenv(inBackgroundEnvVar) == "" {
		return daemonizeSelf(mountPoint)
	}

	mfs, err := mount(context.Background(), mountPoint, c)
	if err != nil {
		if os.Getenv(inBackgroundEnvVar) != "" {
			_ = daemonize.SignalOutcome(err)
		}
		return err
	}
	if os.Getenv(inBackgroundEnvVar) != "" {
		if err := daemonize.SignalOutcome(nil); err != nil {
			logger.Errorf("signaling successful mount to parent: %v", err)
		}
	}

	registerSIGINTHandler(mountPoint)
	logger.Infof("hierfs mounted at %s", mountPoint)
	return mfs.Join(context.Background())
}

// daemonizeSelf re-execs the current binary in the background, the way
// gcsfuse's legacy_main.go backgrounds a mount: the child signals success or
// failure back to this process through the pipe daemonize hands it.
func daemonizeSelf(mountPoint string) error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	env := append(os.Environ(), inBackgroundEnvVar+"=true")
	if err := daemonize.Run(path, os.Args[1:], env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	logger.Infof("hierfs mounted at %s (backgrounded)", mountPoint)
	return nil
}

func mount(ctx context.Context, mountPoint string, c cfg.Config) (*fuse.MountedFileSystem, error) {
	reg := prometheus.NewRegistry()
	metricHandle := metrics.New(reg)
	if c.Metrics.Address != "" {
		go serveMetrics(c.Metrics.Address, reg)
	}

	client := rpc.NewClient(c.Backend.Address, &http.Client{Timeout: c.Backend.Timeout})
	manager := store.New(client, cache.New(c.Cache.Capacity), timeutil.RealClock()).WithMetrics(metricHandle)
	ops := fsops.New(manager)

	fsServer := bridge.New(ops, bridge.Config{Uid: c.FileSystem.Uid, Gid: c.FileSystem.Gid})

	mountCfg := &fuse.MountConfig{
		FSName:     "hierfs",
		Subtype:    "hierfs",
		VolumeName: "hierfs",
	}
	if c.Debug.DebugFuse {
		mountCfg.DebugLogger = stdlog.New(os.Stderr, "fuse_debug: ", 0)
	}

	server := fuseutil.NewFileSystemServer(fsServer)

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("fuse.Mount: %w", err)
	}
	return mfs, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("metrics server: %v", err)
	}
}

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("received SIGINT, unmounting %s", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("unmount failed: %v", err)
			}
		}
	}()
}
