package main

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// newLogger builds the operator log. It writes to cfg.LogPath and, when
// console-debug is set without the monitor, to stderr as well. Infrastructure
// packages that use the standard logger are routed into it at warn level.
func newLogger(cfg appConfig) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = f
	if cfg.ConsoleDebug && !cfg.Monitor {
		out = io.MultiWriter(f, os.Stderr)
	}

	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})

	std := logger.WriterLevel(log.WarnLevel)
	stdlog.SetFlags(0)
	stdlog.SetOutput(std)

	return logger, func() {
		stdlog.SetOutput(os.Stderr)
		_ = std.Close()
		_ = f.Close()
	}, nil
}

// logParameters records the effective startup configuration at debug level.
func logParameters(logger *log.Logger, cfg appConfig) {
	logger.Debug("fdbtracer started")
	logger.WithFields(log.Fields{
		"test_mode":     cfg.TestMode,
		"log_path":      cfg.LogPath,
		"log_level":     cfg.LogLevel,
		"console_debug": cfg.ConsoleDebug,
		"max_errors":    cfg.MaxErrors,
		"config":        cfg.ConfigPath,
	}).Debug("system parameters")
	logger.WithFields(log.Fields{
		"file":       cfg.TraceFile,
		"tcp":        enabledAddr(cfg.TCPEnabled, cfg.TCPAddr),
		"signatures": cfg.ClientSignatures,
	}).Debug("trace source parameters")
	logger.WithFields(log.Fields{
		"db_path":      cfg.DBPath,
		"schema_path":  cfg.SchemaPath,
		"sink_timeout": cfg.SinkTimeout,
	}).Debug("dump database parameters")
}

func enabledAddr(enabled bool, addr string) string {
	if !enabled {
		return "disabled"
	}
	return addr
}
