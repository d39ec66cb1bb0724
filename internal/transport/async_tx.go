package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Karlsx/go-canproto/internal/can"
)

// ErrTxClosed is returned for frames enqueued after Close.
var ErrTxClosed = errors.New("transport: tx closed")

// ErrTxOverflow is returned when the TX buffer is full and the frame was
// dropped.
var ErrTxOverflow = errors.New("transport: tx overflow")

// AsyncTx funnels frame writes through a single goroutine so producers
// never block behind a slow or wedged device. SendFrame is non-blocking:
// a full buffer drops the frame and reports ErrTxOverflow.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan can.Frame
	cancel context.CancelFunc
	wg     sync.WaitGroup
	write  func(can.Frame) error
	onErr  func(error)
	onDrop func()
	closed atomic.Bool
}

// NewAsyncTx starts the TX worker. write performs the actual device write;
// onErr observes write failures; onDrop observes overflow drops. Both
// hooks may be nil.
func NewAsyncTx(parent context.Context, buf int, write func(can.Frame) error, onErr func(error), onDrop func()) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan can.Frame, buf),
		cancel: cancel,
		write:  write,
		onErr:  onErr,
		onDrop: onDrop,
	}
	a.wg.Add(1)
	go a.loop(ctx)
	return a
}

func (a *AsyncTx) loop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case fr, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.write(fr); err != nil && a.onErr != nil {
				a.onErr(err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendFrame enqueues fr or drops it when the buffer is full.
func (a *AsyncTx) SendFrame(fr can.Frame) error {
	if a.closed.Load() {
		return ErrTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrTxClosed
	}
	select {
	case a.ch <- fr:
		return nil
	default:
		if a.onDrop != nil {
			a.onDrop()
		}
		return ErrTxOverflow
	}
}

// Close stops the worker and waits for it to exit. Frames still queued are
// not guaranteed to be written: the worker may write some of them before
// it observes the cancellation, and the rest are discarded.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
