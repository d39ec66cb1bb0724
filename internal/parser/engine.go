// Package parser is the per-bus facade of the codec engine. A parser owns
// the rule tables built from one schema document and performs synchronous
// decode and encode against a host data map. Instances are not safe for
// concurrent use; callers serialise access per instance.
package parser

import (
	"fmt"
	"sort"

	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/rules"
	"github.com/Karlsx/go-canproto/internal/state"
)

// engine holds the rule tables and runtime shared by the CAN and UART
// facades.
type engine struct {
	name     string
	bus      string
	clct     *state.Collector
	warn     int
	sendCode state.Code

	frames map[uint32]*rules.FrameRule
	vars   map[uint32][]*rules.VarRule
	arrays []*rules.ArrayRule
	cmds   map[string]*rules.CmdRule

	// construction-time bookkeeping; nil after the schema is ingested
	check *rules.Check
}

func newEngine(clct *state.Collector, name, bus string) engine {
	if clct == nil {
		clct = state.NewCollector()
	}
	return engine{
		name:   name,
		bus:    bus,
		clct:   clct,
		frames: make(map[uint32]*rules.FrameRule),
		vars:   make(map[uint32][]*rules.VarRule),
		cmds:   make(map[string]*rules.CmdRule),
	}
}

// InitErrorCount reports the schema faults accumulated during construction.
func (e *engine) InitErrorCount() int { return e.clct.AllCount() }

// InitWarnCount reports non-fatal schema findings.
func (e *engine) InitWarnCount() int { return e.warn }

// Collector exposes the parser's fault counters.
func (e *engine) Collector() *state.Collector { return e.clct }

func (e *engine) createCheck() { e.check = rules.NewCheck() }
func (e *engine) clearCheck()  { e.check = nil }

// initFrame registers a frame rule. With checkID set a duplicate
// identifier is a fault; without it duplicates are silently tolerated so
// several var rules may share one frame.
func (e *engine) initFrame(r *rules.FrameRule, checkID bool) bool {
	if _, dup := e.frames[r.ID]; dup {
		if checkID {
			e.clct.Log(state.CodeSameFrameID)
			logging.L().Error("duplicate_frame_id", "bus", e.bus, "instance", e.name,
				"frame_id", fmt.Sprintf("0x%08X", r.ID))
			return false
		}
		return true
	}
	e.frames[r.ID] = r
	return true
}

// frameDataLen returns the payload width registered for id (0 if unknown).
func (e *engine) frameDataLen(id uint32) int {
	if f, ok := e.frames[id]; ok {
		return f.DataLen
	}
	return 0
}

// initVar admits a var rule whose own collector stayed clean, after the
// unique-name and data-area checks.
func (e *engine) initVar(r *rules.VarRule, dataLen int) {
	if r.Warn {
		e.warn++
	}
	if r.Clct.SelfCount() != 0 {
		return
	}
	if e.check.SameName(e.clct, r.Name) {
		return
	}
	e.check.ClaimVar(e.clct, r, dataLen) // conflicts are diagnostic, rule still admitted
	e.vars[r.FrameID] = append(e.vars[r.FrameID], r)
}

// initArray admits an array rule, claims its frames whole and derives the
// assembled buffer size from the registered frame widths.
func (e *engine) initArray(r *rules.ArrayRule) {
	if r.Warn {
		e.warn++
	}
	if r.Clct.SelfCount() != 0 {
		return
	}
	if e.check.SameName(e.clct, r.Name) {
		return
	}
	total := 0
	for _, id := range r.Frames() {
		dl := e.frameDataLen(id)
		e.check.ClaimFrame(e.clct, id, dl)
		total += dl
	}
	r.AllMaxLen = total
	e.arrays = append(e.arrays, r)
}

// initCmd admits a cmd rule after bounding ctrl_len by the frame width.
func (e *engine) initCmd(r *rules.CmdRule, dataLen int) {
	if r.Warn {
		e.warn++
	}
	if r.Clct.SelfCount() != 0 {
		return
	}
	if r.CtrlLen > dataLen {
		e.clct.Log(state.CodeCmdCtrlData)
		logging.L().Error("cmd_ctrl_len_overflow", "bus", e.bus, "instance", e.name,
			"cmd", r.Name, "ctrl_len", r.CtrlLen, "data_len", dataLen)
		return
	}
	if _, dup := e.cmds[r.Name]; dup {
		e.clct.Log(state.CodeCmdSameName)
		logging.L().Error("duplicate_cmd_name", "bus", e.bus, "instance", e.name, "cmd", r.Name)
		return
	}
	e.cmds[r.Name] = r
}

// ReceiveIDs returns the sorted union of frame identifiers any var or
// array rule listens on.
func (e *engine) ReceiveIDs() []uint32 {
	seen := make(map[uint32]struct{})
	for id := range e.vars {
		seen[id] = struct{}{}
	}
	for _, ar := range e.arrays {
		for _, id := range ar.Frames() {
			seen[id] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bind links one correctly sized entry per var and array rule into m:
// the native width for scalar kinds, the byte span for u8_array, the
// assembled length for arrays. Hosts with their own storage layout link
// entries themselves instead.
func (e *engine) Bind(m *datamap.Map) {
	for _, rs := range e.vars {
		for _, r := range rs {
			size := r.Field.Type.Size()
			if size == 0 {
				size = r.Field.Loc.Width()
			}
			m.Link(r.Name, size)
		}
	}
	for _, ar := range e.arrays {
		m.Link(ar.Name, ar.AllMaxLen)
	}
}
