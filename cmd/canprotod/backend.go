package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// initBackend selects the bus backend, starts its RX loop delivering
// frames to onFrame, and returns a frame sink plus cleanup.
func initBackend(ctx context.Context, cfg *appConfig, onFrame func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (transport.FrameSink, func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, onFrame, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, onFrame, l, wg)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}
