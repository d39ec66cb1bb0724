//go:build linux

package socketcan

import (
	"context"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/transport"
)

// Dev is the minimal device surface the backend and TXWriter need.
// Implemented by *Device; any fake with the same methods can stand in.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter funnels all SocketCAN writes through a single goroutine,
// mirroring the serial TXWriter behaviour.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a SocketCAN TXWriter with a buffered queue of size buf.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	write := func(fr can.Frame) error {
		if err := dev.WriteFrame(fr); err != nil {
			return err
		}
		metrics.IncBusTx()
		return nil
	}
	onErr := func(err error) {
		metrics.IncRuntimeError(metrics.ErrBusWrite)
		logging.L().Error("socketcan_write_error", "error", err)
	}
	onDrop := func() { metrics.IncRuntimeError(metrics.ErrTxOverflow) }
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, write, onErr, onDrop)}
}

// SendFrame queues a frame for asynchronous device write.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
