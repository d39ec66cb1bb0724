package serial

import (
	"context"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/transport"
)

// TXWriter funnels all serial writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a serial TXWriter with a buffered queue of size buf.
func NewTXWriter(parent context.Context, sp Port, codec Codec, buf int) *TXWriter {
	write := func(fr can.Frame) error {
		if _, err := sp.Write(codec.Encode(fr)); err != nil {
			return err
		}
		metrics.IncBusTx()
		return nil
	}
	onErr := func(err error) {
		metrics.IncRuntimeError(metrics.ErrBusWrite)
		logging.L().Error("serial_write_error", "error", err)
	}
	onDrop := func() { metrics.IncRuntimeError(metrics.ErrTxOverflow) }
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, write, onErr, onDrop)}
}

// SendFrame queues a frame for asynchronous write.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker to exit.
func (w *TXWriter) Close() { w.base.Close() }
