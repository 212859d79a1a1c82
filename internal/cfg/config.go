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

// Package cfg holds the hierfsmount configuration surface: flags bound
// through pflag and registered with viper. Values come from the parsed
// flags and their defaults; no config file or environment variable is read.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full configuration surface for the mount command.
type Config struct {
	Backend    BackendConfig
	Cache      CacheConfig
	FileSystem FileSystemConfig
	Debug      DebugConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

type BackendConfig struct {
	// Address, e.g. "http://127.0.0.1:9000", of the backend this mount talks
	// to. Set from the mandatory <backend-port> positional argument, not a
	// flag — spec.md §6 fixes the mount command's CLI surface.
	Address string
	// Timeout applied to every individual backend RPC.
	Timeout time.Duration
}

type CacheConfig struct {
	// Capacity is the maximum number of entries (objects plus tombstones)
	// the in-process LRU holds at once. Set from the mandatory
	// <cache-capacity> positional argument, not a flag.
	Capacity int
}

type FileSystemConfig struct {
	Uid       uint32
	Gid       uint32
	FileMode  uint32 // loaded but not applied: new files take the create request's mode
	DirMode   uint32 // loaded but not applied: new directories take the mkdir request's mode
	Foreground bool
}

type DebugConfig struct {
	// ExitOnInvariantViolation is loaded from its flag, but no component
	// runs invariant checks or reads this field, so it does not change how
	// a mount behaves.
	ExitOnInvariantViolation bool
	DebugFuse                bool
}

type LoggingConfig struct {
	FilePath string
	Format   string // "text" or "json"
	Severity string // "trace", "debug", "info", "warning", "error"
}

type MetricsConfig struct {
	// Address to serve /metrics on, e.g. "127.0.0.1:9100". Empty disables
	// the metrics server.
	Address string
}

// BindFlags registers every Config field that is not one of the mount
// command's mandatory positional arguments (mountpoint, backend-port,
// cache-capacity — spec.md §6) onto flagSet and binds it through viper, so
// that Load sees each flag's parsed value, or its default when the flag was
// not given.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.Duration("backend-timeout", 10*time.Second, "per-RPC timeout against the backend")

	flagSet.Uint32("uid", 0, "uid assigned to inodes created through this mount")
	flagSet.Uint32("gid", 0, "gid assigned to inodes created through this mount")
	flagSet.Uint32("file-mode", 0644, "permission bits for regular files (not applied; the create request's mode is used)")
	flagSet.Uint32("dir-mode", 0755, "permission bits for directories (not applied; the mkdir request's mode is used)")
	flagSet.Bool("foreground", false, "run in the foreground instead of daemonizing")

	flagSet.Bool("debug.exit-on-invariant-violation", false, "accepted but has no effect: no component runs invariant checks")
	flagSet.Bool("debug.fuse", false, "log every fuse op handled by the bridge")

	flagSet.String("log.file", "", "path to the log file; empty logs to stderr")
	flagSet.String("log.format", "text", "text or json")
	flagSet.String("log.severity", "info", "trace, debug, info, warning, or error")

	flagSet.String("metrics.address", "", "address to serve Prometheus metrics on; empty disables it")

	for _, name := range []string{
		"backend-timeout",
		"uid", "gid", "file-mode", "dir-mode", "foreground",
		"debug.exit-on-invariant-violation", "debug.fuse",
		"log.file", "log.format", "log.severity",
		"metrics.address",
	} {
		if err := viper.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// Load builds a Config from whatever viper currently has bound: each
// flag's parsed value, or its default when the flag was not given. No
// config file or environment variable is consulted. Backend.Address and
// Cache.Capacity are left zero-valued; the caller fills them in from the
// mount command's positional arguments.
func Load() Config {
	return Config{
		Backend: BackendConfig{
			Timeout: viper.GetDuration("backend-timeout"),
		},
		FileSystem: FileSystemConfig{
			Uid:        uint32(viper.GetUint32("uid")),
			Gid:        uint32(viper.GetUint32("gid")),
			FileMode:   uint32(viper.GetUint32("file-mode")),
			DirMode:    uint32(viper.GetUint32("dir-mode")),
			Foreground: viper.GetBool("foreground"),
		},
		Debug: DebugConfig{
			ExitOnInvariantViolation: viper.GetBool("debug.exit-on-invariant-violation"),
			DebugFuse:                viper.GetBool("debug.fuse"),
		},
		Logging: LoggingConfig{
			FilePath: viper.GetString("log.file"),
			Format:   viper.GetString("log.format"),
			Severity: viper.GetString("log.severity"),
		},
		Metrics: MetricsConfig{
			Address: viper.GetString("metrics.address"),
		},
	}
}
