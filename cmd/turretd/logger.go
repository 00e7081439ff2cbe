package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wuspy/turretd/internal/logging"
)

// logFileName is truncated on every start, next to the executable, per
// the persisted-state requirement in the external interfaces doc.
const logFileName = "sentry.log"

// setupLogger mirrors the teacher's cmd/can-server/logger.go, but writes
// to both stderr and the truncated sentry.log rather than stderr alone.
func setupLogger() (*slog.Logger, func(), error) {
	exe, err := os.Executable()
	if err != nil {
		exe = "."
	}
	path := filepath.Join(filepath.Dir(exe), logFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := io.MultiWriter(os.Stderr, f)
	l := logging.New("text", slog.LevelInfo, w).With("app", "turretd")
	logging.Set(l)
	return l, func() { _ = f.Close() }, nil
}
