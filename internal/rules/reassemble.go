package rules

import "github.com/Karlsx/go-canproto/internal/datamap"

// IngestResult reports what one frame did to an array's collection state.
type IngestResult int

const (
	// IngestIgnored: the frame is not part of this array.
	IngestIgnored IngestResult = iota
	// IngestAccepted: frame stored, more slots outstanding.
	IngestAccepted
	// IngestCompleted: frame stored and the buffer is fully assembled;
	// the entry's Loaded flag is set and the collector reset.
	IngestCompleted
	// IngestOutOfOrder: frame belongs to the array but broke slot order;
	// the collector reset without storing it.
	IngestOutOfOrder
)

// Ingest runs the ordered collection step for one frame. payload must hold
// at least frameLen bytes (the width declared for that frame); dst must be
// at least AllMaxLen bytes, which the parser verifies before calling.
func (r *ArrayRule) Ingest(id uint32, payload []byte, frameLen int, dst *datamap.Entry) IngestResult {
	slot, ok := r.slots[id]
	if !ok {
		return IngestIgnored
	}
	if slot != r.expect {
		r.Reset()
		return IngestOutOfOrder
	}
	copy(dst.Bytes()[r.cursor:], payload[:frameLen])
	r.expect++
	r.cursor += frameLen
	if slot == r.PackageNum-1 {
		dst.Loaded = true
		r.Reset()
		return IngestCompleted
	}
	return IngestAccepted
}

// Reset returns the collector to its idle state without touching data
// already copied.
func (r *ArrayRule) Reset() {
	r.expect = 0
	r.cursor = 0
}

// Pending reports how many bytes have been collected so far.
func (r *ArrayRule) Pending() int { return r.cursor }
