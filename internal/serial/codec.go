// Package serial carries bus frames over a UART byte stream. The framing
// is length-prefixed and checksummed so the receiver can resynchronise
// after line noise:
//
//	C5 AF     preamble
//	LL        length = flags(1) + id(4) + payload(0..64) + checksum(1)
//	FF        flags: bit7 = FD, bits 0..6 = payload length
//	II II II II  frame id, big-endian
//	...       payload
//	CK        checksum = LL + sum(flags, id, payload) mod 256
package serial

import (
	"bytes"
	"encoding/binary"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/metrics"
)

const (
	pre0 = 0xC5
	pre1 = 0xAF

	flagFD      = 0x80
	lenOverhead = 6 // flags + id + checksum
	minLn       = lenOverhead
	maxLn       = lenOverhead + can.MaxFDDataLen
)

type Codec struct{}

// Encode produces the wire bytes for one frame.
func (Codec) Encode(f can.Frame) []byte {
	n := int(f.Len)
	if n > f.MaxLen() {
		n = f.MaxLen()
	}
	out := make([]byte, 3+lenOverhead+n)
	out[0] = pre0
	out[1] = pre1
	out[2] = byte(lenOverhead + n)
	flags := byte(n)
	if f.FD {
		flags |= flagFD
	}
	out[3] = flags
	binary.BigEndian.PutUint32(out[4:8], f.ID)
	copy(out[8:], f.Data[:n])
	var sum byte
	for _, b := range out[2 : len(out)-1] {
		sum += b
	}
	out[len(out)-1] = sum
	return out
}

// CompactBuffer reclaims consumed prefix capacity once the buffer has
// grown large relative to its unread bytes. Returns true on compaction.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	if b.Cap() > 0 && len(data)*4 < b.Cap() {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// DecodeStream drains complete frames from in, invoking out for each.
// Partial frames stay buffered for the next read; garbage between frames
// is skipped by preamble search. Malformed frames (bad length, checksum)
// are dropped and counted.
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	header := []byte{pre0, pre1}
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		if len(data) < 3 { // preamble + length
			return nil
		}

		i := bytes.Index(data, header)
		if i < 0 {
			// keep the trailing byte: it may be the first preamble byte
			// of a frame split across reads
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}

		ln := int(data[2])
		if ln < minLn || ln > maxLn {
			metrics.IncMalformed()
			in.Next(2) // drop preamble, rescan
			continue
		}
		total := 3 + ln
		if len(data) < total {
			return nil // wait for the rest
		}

		body := data[2 : total-1]
		var sum byte
		for _, b := range body {
			sum += b
		}
		if sum != data[total-1] {
			metrics.IncMalformed()
			in.Next(2)
			continue
		}

		flags := data[3]
		n := int(flags &^ flagFD)
		fd := flags&flagFD != 0
		max := can.MaxDataLen
		if fd {
			max = can.MaxFDDataLen
		}
		if n != ln-lenOverhead || n > max {
			metrics.IncMalformed()
			in.Next(2)
			continue
		}

		var fr can.Frame
		fr.ID = binary.BigEndian.Uint32(data[4:8])
		fr.FD = fd
		fr.Len = uint8(n)
		copy(fr.Data[:], data[8:8+n])
		in.Next(total)
		out(fr)
	}
}
