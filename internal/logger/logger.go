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

// Package logger provides the process-wide structured logger hierfs's
// commands and internal packages log through, with file rotation via
// lumberjack and a choice of text or JSON output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity mirrors the five levels hierfs distinguishes, TRACE being the
// most verbose. slog only ships with four built-in levels, so TRACE is
// represented as a level below slog.LevelDebug.
type Severity int

const (
	TRACE Severity = iota
	DEBUG
	INFO
	WARNING
	ERROR
)

const levelTrace slog.Level = slog.LevelDebug - 4

func (s Severity) slogLevel() slog.Level {
	switch s {
	case TRACE:
		return levelTrace
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARNING:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

var (
	mu      sync.Mutex
	logger  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: INFO.slogLevel()}))
	level   atomic.Int64
	format  = "text"
	rotator *lumberjack.Logger
)

func init() {
	level.Store(int64(INFO))
}

// Config controls how InitLogFile sets up the process logger.
type Config struct {
	// Path to the log file. Empty means stderr.
	FilePath string
	// "text" or "json".
	Format string
	// Minimum severity that is actually emitted.
	Severity Severity
	// MaxSizeMB, MaxBackups, MaxAgeDays configure lumberjack rotation; zero
	// values fall back to lumberjack's own defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogFile (re)configures the package-level logger according to cfg. It
// is safe to call multiple times, e.g. to pick up a config reload.
func InitLogFile(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = rotator
	}

	format = cfg.Format
	logger = newHandlerLogger(w, cfg.Format, cfg.Severity)
	level.Store(int64(cfg.Severity))
	return nil
}

// SetLogFormat switches between "text" and "json" output without touching
// the destination or severity threshold.
func SetLogFormat(f string) {
	mu.Lock()
	defer mu.Unlock()

	format = f
	var w io.Writer = os.Stderr
	if rotator != nil {
		w = rotator
	}
	logger = newHandlerLogger(w, f, Severity(level.Load()))
}

// AddWriterAndRefresh replaces the log destination with w, keeping the
// current format and severity.
func AddWriterAndRefresh(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newHandlerLogger(w, format, Severity(level.Load()))
}

func newHandlerLogger(w io.Writer, f string, min Severity) *slog.Logger {
	opts := &slog.HandlerOptions{Level: min.slogLevel()}
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseSeverity maps the lowercase config/flag names to a Severity,
// defaulting to INFO for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch s {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "warning":
		return WARNING
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func current() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func logf(lvl slog.Level, format string, args ...any) {
	current().Log(context.Background(), lvl, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any)   { logf(levelTrace, format, args...) }
func Debugf(format string, args ...any)   { logf(slog.LevelDebug, format, args...) }
func Infof(format string, args ...any)    { logf(slog.LevelInfo, format, args...) }
func Warnf(format string, args ...any)    { logf(slog.LevelWarn, format, args...) }
func Errorf(format string, args ...any)   { logf(slog.LevelError, format, args...) }
func Info(args ...any)                    { current().Info(fmt.Sprint(args...)) }
func Printf(format string, args ...any)   { logf(slog.LevelInfo, format, args...) }
func Println(args ...any)                 { current().Info(fmt.Sprintln(args...)) }
