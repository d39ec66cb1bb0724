package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/parser"
	"github.com/Karlsx/go-canproto/internal/schema"
	"github.com/Karlsx/go-canproto/internal/state"
)

const rxQueueSize = 256

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("canprotod %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	metrics.InitBuildInfo(version, commit, date)

	doc, err := schema.Load(cfg.schemaPath)
	if err != nil {
		l.Error("schema_load_error", "error", err)
		os.Exit(1)
	}
	clct := state.NewCollector()
	p := parser.NewCanParser(clct, doc, cfg.instance)
	if n := p.InitErrorCount(); n > 0 && !cfg.lenient {
		l.Error("schema_rejected", "errors", n, "hint", "fix the schema or pass -lenient")
		os.Exit(1)
	}
	fdFramesWanted = p.IsCANFD()

	m := datamap.New()
	p.Bind(m)
	recv := make(map[uint32]struct{})
	for _, id := range p.ReceiveIDs() {
		recv[id] = struct{}{}
	}
	l.Info("protocol_ready", "instance", cfg.instance,
		"canfd", p.IsCANFD(), "recv_ids", len(recv), "entries", m.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	// The backend RX goroutine only enqueues; decode and encode both run
	// on the loop below, keeping the parser single-threaded.
	rx := make(chan can.Frame, rxQueueSize)
	onFrame := func(fr can.Frame) {
		select {
		case rx <- fr:
		default: // queue full, shed load
		}
	}

	sink, cleanup, berr := initBackend(ctx, cfg, onFrame, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		os.Exit(1)
	}

	if cfg.metricsAddr != "" {
		srv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Close() }()
		metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
		if cfg.mdnsEnable {
			go startMDNSForMetrics(ctx, cfg, l)
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for {
		select {
		case fr := <-rx:
			if !wantedFrame(recv, fr.ID) {
				continue
			}
			complete, errFlag := p.Decode(m, &fr)
			if errFlag {
				l.Debug("decode_fault", "frame_id", fmt.Sprintf("0x%08X", fr.ID))
			}
			if complete {
				logSnapshot(l, m)
			}
		case s := <-sigc:
			if s == syscall.SIGUSR1 {
				// operator-triggered state echo: pack the current map
				// back onto the bus
				if !p.EncodeAll(m, sink) {
					l.Warn("encode_all_incomplete")
				}
				continue
			}
			l.Info("shutdown", "signal", s.String())
			cancel()
			cleanup()
			wg.Wait()
			return
		}
	}
}

// wantedFrame filters bus traffic down to identifiers the schema listens
// on, tolerating SocketCAN flag bits in the upper id bits.
func wantedFrame(recv map[uint32]struct{}, id uint32) bool {
	if _, ok := recv[id]; ok {
		return true
	}
	_, ok := recv[id&can.EFFMask]
	return ok
}

// startMDNSForMetrics advertises the daemon on the metrics port.
func startMDNSForMetrics(ctx context.Context, cfg *appConfig, l *slog.Logger) {
	port := 0
	if _, ps, err := net.SplitHostPort(cfg.metricsAddr); err == nil {
		if pn, perr := strconv.Atoi(ps); perr == nil {
			port = pn
		}
	}
	cleanupMDNS, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", mdnsServiceType, "port", port)
	go func() { <-ctx.Done(); cleanupMDNS() }()
}

// logSnapshot dumps the current value bytes of every linked entry once a
// full reception cycle completes.
func logSnapshot(l *slog.Logger, m *datamap.Map) {
	args := make([]any, 0, 2*m.Len())
	m.Each(func(name string, e *datamap.Entry) {
		args = append(args, name, fmt.Sprintf("% X", e.Bytes()))
	})
	l.Info("cycle_complete", args...)
}
