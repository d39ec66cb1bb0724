package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Karlsx/go-canproto/internal/logging"
)

// Prometheus counters
var (
	DecodedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_decoded_frames_total",
		Help: "Total bus frames run through protocol decode.",
	})
	DecodeCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_decode_completions_total",
		Help: "Total full-map completion events reported by decode.",
	})
	EncodedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_encoded_frames_total",
		Help: "Total frames packed for transmission.",
	})
	ArrayResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_array_resyncs_total",
		Help: "Total multi-frame array collectors reset by out-of-order frames.",
	})
	SchemaConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_schema_conflicts_total",
		Help: "Total data-area conflicts reported during schema validation.",
	})
	RuntimeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canproto_runtime_errors_total",
		Help: "Runtime decode/encode faults by class.",
	}, []string{"class"})
	BusRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_bus_rx_frames_total",
		Help: "Total frames received from the bus backend.",
	})
	BusTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_bus_tx_frames_total",
		Help: "Total frames written to the bus backend.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canproto_malformed_frames_total",
		Help: "Total rejected malformed stream frames (bad length, checksum, truncation).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "canproto_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Runtime error class labels (stable values to bound cardinality).
const (
	ErrNoLink       = "no_link"
	ErrSizeOverflow = "size_overflow"
	ErrSizeMismatch = "size_mismatch"
	ErrFloatWidth   = "float_width"
	ErrBadOrder     = "bad_order"
	ErrSend         = "send"
	ErrMixUse       = "mix_use"
	ErrBusRead      = "bus_read"
	ErrBusWrite     = "bus_write"
	ErrTxOverflow   = "tx_overflow"
)

// Local mirrored counters so the daemon can log snapshots without scraping
// its own Prometheus registry.
var (
	localDecoded     uint64
	localCompletions uint64
	localEncoded     uint64
	localResyncs     uint64
	localConflicts   uint64
	localRuntimeErrs uint64
	localBusRx       uint64
	localBusTx       uint64
	localMalformed   uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Decoded     uint64
	Completions uint64
	Encoded     uint64
	Resyncs     uint64
	Conflicts   uint64
	RuntimeErrs uint64
	BusRx       uint64
	BusTx       uint64
	Malformed   uint64
}

func Snap() Snapshot {
	return Snapshot{
		Decoded:     atomic.LoadUint64(&localDecoded),
		Completions: atomic.LoadUint64(&localCompletions),
		Encoded:     atomic.LoadUint64(&localEncoded),
		Resyncs:     atomic.LoadUint64(&localResyncs),
		Conflicts:   atomic.LoadUint64(&localConflicts),
		RuntimeErrs: atomic.LoadUint64(&localRuntimeErrs),
		BusRx:       atomic.LoadUint64(&localBusRx),
		BusTx:       atomic.LoadUint64(&localBusTx),
		Malformed:   atomic.LoadUint64(&localMalformed),
	}
}

func IncDecoded() {
	DecodedFrames.Inc()
	atomic.AddUint64(&localDecoded, 1)
}

func IncCompletion() {
	DecodeCompletions.Inc()
	atomic.AddUint64(&localCompletions, 1)
}

func IncEncoded() {
	EncodedFrames.Inc()
	atomic.AddUint64(&localEncoded, 1)
}

func IncResync() {
	ArrayResyncs.Inc()
	atomic.AddUint64(&localResyncs, 1)
}

func IncConflict() {
	SchemaConflicts.Inc()
	atomic.AddUint64(&localConflicts, 1)
}

func IncRuntimeError(class string) {
	RuntimeErrors.WithLabelValues(class).Inc()
	atomic.AddUint64(&localRuntimeErrs, 1)
}

func IncBusRx() {
	BusRxFrames.Inc()
	atomic.AddUint64(&localBusRx, 1)
}

func IncBusTx() {
	BusTxFrames.Inc()
	atomic.AddUint64(&localBusTx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers the error label
// series (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrNoLink, ErrSizeOverflow, ErrSizeMismatch, ErrFloatWidth,
		ErrBadOrder, ErrSend, ErrMixUse, ErrBusRead, ErrBusWrite, ErrTxOverflow,
	} {
		RuntimeErrors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers the function backing /ready.
func SetReadinessFunc(fn func() bool) {
	readinessMu.Lock()
	readinessFn = fn
	readinessMu.Unlock()
}

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not set yet; report ready so the endpoint doesn't flap
		return true
	}
	return fn()
}

// StartHTTP serves /metrics and /ready on addr in a background goroutine.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
