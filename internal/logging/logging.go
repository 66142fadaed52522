// Package logging configures the durable log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/router-for-me/RepScan/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup points the standard logger at a rotating file. An empty file name
// keeps logging on stderr. The returned Closer flushes the file.
func Setup(cfg config.LoggingConfig) (io.Closer, error) {
	level := log.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, errParse := log.ParseLevel(raw)
		if errParse != nil {
			return nil, fmt.Errorf("logging: %w", errParse)
		}
		level = parsed
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	file := strings.TrimSpace(cfg.File)
	if file == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if dir := filepath.Dir(file); dir != "." {
		if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", errMkdir)
		}
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups < 0 {
		maxBackups = 0
	}
	writer := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	log.SetOutput(writer)
	return writer, nil
}
