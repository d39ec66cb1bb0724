package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Karlsx/go-canproto/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"bus_rx", snap.BusRx,
					"bus_tx", snap.BusTx,
					"decoded", snap.Decoded,
					"completions", snap.Completions,
					"encoded", snap.Encoded,
					"resyncs", snap.Resyncs,
					"malformed", snap.Malformed,
					"runtime_errors", snap.RuntimeErrs,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
