// Package logger configures the process-wide labkit logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitlab.com/gitlab-org/labkit/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chtrembl/petstoreapp/internal/config"
)

const (
	maxLogFileSizeMB  = 100
	maxLogFileBackups = 5
	maxLogFileAgeDays = 28
)

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, closer := range c {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Configure initializes the labkit logger from cfg. An empty LogFile logs to
// stderr. When the log file cannot be opened the logger falls back to stderr
// and nil is returned.
func Configure(cfg *config.Config) io.Closer {
	var opts []log.LoggerOption
	if cfg.LogFormat != "" {
		opts = append(opts, log.WithFormatter(cfg.LogFormat))
	}
	if cfg.LogLevel != "" {
		opts = append(opts, log.WithLogLevel(cfg.LogLevel))
	}

	var rotated *lumberjack.Logger
	if cfg.LogFile != "" {
		if err := checkWritable(cfg.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure log file %s, logging to stderr: %v\n", cfg.LogFile, err)
			initialize(append(opts, log.WithWriter(os.Stderr)))

			return nil
		}

		rotated = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    maxLogFileSizeMB,
			MaxBackups: maxLogFileBackups,
			MaxAge:     maxLogFileAgeDays,
		}
		opts = append(opts, log.WithWriter(rotated))
	} else {
		opts = append(opts, log.WithWriter(os.Stderr))
	}

	closer := initialize(opts)
	if rotated == nil {
		return closer
	}

	return closers{closer, rotated}
}

func initialize(opts []log.LoggerOption) io.Closer {
	closer, err := log.Initialize(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return closers{}
	}

	return closer
}

func checkWritable(path string) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
	if err != nil {
		return err
	}

	return f.Close()
}
