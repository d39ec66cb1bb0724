package main

import (
	"log/slog"
	"os"

	"github.com/Karlsx/go-canproto/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, level, os.Stderr).With("app", "canprotod")
	logging.Set(l)
	return l
}
