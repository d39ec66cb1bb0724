package rules

import (
	"fmt"
	"strings"

	"github.com/Karlsx/go-canproto/internal/codec"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/state"
)

// Check is the construction-time cross-rule bookkeeping: admitted names
// and, per frame, a bitmap of claimed payload bits. It exists only while a
// parser ingests its schema and is dropped before the first runtime call.
type Check struct {
	names  map[string]struct{}
	claims map[uint32][]byte
}

// NewCheck creates empty bookkeeping.
func NewCheck() *Check {
	return &Check{
		names:  make(map[string]struct{}),
		claims: make(map[uint32][]byte),
	}
}

// SameName records name and reports whether it was already taken, logging
// CodeSameName on clct for duplicates.
func (c *Check) SameName(clct *state.Collector, name string) bool {
	if _, dup := c.names[name]; dup {
		clct.Log(state.CodeSameName)
		logging.L().Error("duplicate_name", "name", name)
		return true
	}
	c.names[name] = struct{}{}
	return false
}

func (c *Check) frameClaims(id uint32, dataLen int) []byte {
	m, ok := c.claims[id]
	if !ok {
		m = make([]byte, dataLen)
		c.claims[id] = m
	}
	return m
}

// ClaimVar marks the bits a var rule covers inside its frame. Overlaps log
// CodeDataAreaConflict with a per-byte visualisation ('*' = contested bit)
// but do not reject the rule.
func (c *Check) ClaimVar(clct *state.Collector, r *VarRule, dataLen int) {
	m := c.frameClaims(r.FrameID, dataLen)
	switch r.Field.Loc.Kind {
	case codec.LocBit:
		idx := int(r.Field.Loc.Byte)
		if idx >= len(m) {
			return
		}
		mask := codec.Mask(r.Field.Loc.High, r.Field.Loc.Low)
		if conflict := m[idx] & mask; conflict != 0 {
			clct.Log(state.CodeDataAreaConflict)
			metrics.IncConflict()
			logging.L().Error("data_area_conflict",
				"frame_id", fmt.Sprintf("0x%08X", r.FrameID),
				"byte", idx, "bits", conflictPattern(conflict))
		}
		m[idx] |= mask
	case codec.LocSpan:
		c.claimSpan(clct, m, r.FrameID, int(r.Field.Loc.Lo), int(r.Field.Loc.Hi))
	}
}

// ClaimFrame claims every byte of a frame, as array members do.
func (c *Check) ClaimFrame(clct *state.Collector, id uint32, dataLen int) {
	m := c.frameClaims(id, dataLen)
	c.claimSpan(clct, m, id, 0, dataLen-1)
}

func (c *Check) claimSpan(clct *state.Collector, m []byte, id uint32, lo, hi int) {
	logged := false
	for idx := lo; idx <= hi && idx < len(m); idx++ {
		if conflict := m[idx]; conflict != 0 {
			if !logged {
				logged = true
				clct.Log(state.CodeDataAreaConflict)
				metrics.IncConflict()
			}
			logging.L().Error("data_area_conflict",
				"frame_id", fmt.Sprintf("0x%08X", id),
				"byte", idx, "bits", conflictPattern(conflict))
		}
		m[idx] = 0xFF
	}
}

// conflictPattern renders a claim byte MSB-first, '*' where the bit is
// contested and '-' where it is free.
func conflictPattern(mask byte) string {
	var b strings.Builder
	for bit := 7; bit >= 0; bit-- {
		if mask&(1<<bit) != 0 {
			b.WriteByte('*')
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
