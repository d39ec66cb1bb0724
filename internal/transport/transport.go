// Package transport defines the frame transmission capability the parser
// consumes and a shared asynchronous TX funnel for bus backends.
package transport

import "github.com/Karlsx/go-canproto/internal/can"

// FrameSink is the capability a bus backend offers to the encoder: enqueue
// one frame for transmission. A nil error means accepted, not delivered.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(can.Frame) error

func (f SinkFunc) SendFrame(fr can.Frame) error { return f(fr) }
