//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/socketcan"
	"github.com/Karlsx/go-canproto/internal/transport"
)

// openSocketCANDevice is a hook so tests can substitute the device opener.
var openSocketCANDevice = func(iface string, fd bool) (socketcan.Dev, error) {
	return socketcan.Open(iface, fd)
}

// fdFramesWanted is set by main once the schema is loaded so the socket
// matches the protocol's bus flavour.
var fdFramesWanted = false

// initSocketCANBackend binds the raw CAN socket and launches the RX loop.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, onFrame func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (transport.FrameSink, func(), error) {
	dev, err := openSocketCANDevice(cfg.canIf, fdFramesWanted)
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf, "fd_frames", fdFramesWanted)
	tw := socketcan.NewTXWriter(ctx, dev, cfg.txBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("socketcan_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				metrics.IncRuntimeError(metrics.ErrBusRead)
				l.Warn("socketcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			metrics.IncBusRx()
			onFrame(fr)
			backoff = rxBackoffMin
		}
	}()
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}
