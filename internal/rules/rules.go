// Package rules turns schema tables into typed frame, var, array and cmd
// rules, logging every declarative fault on the rule's own collector child.
// A rule whose child collector stayed clean is safe to admit.
package rules

import (
	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/codec"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/schema"
	"github.com/Karlsx/go-canproto/internal/state"
)

// FrameRule fixes the payload width for one frame identifier.
type FrameRule struct {
	ID      uint32
	Name    string
	DataLen int
}

// NewFrameRule validates a UART frame table. The identifier is synthetic
// and assigned by the caller.
func NewFrameRule(clct *state.Collector, t schema.FrameTable, id uint32) *FrameRule {
	r := &FrameRule{ID: id, Name: t.FrameName, DataLen: t.DataLen}
	if r.Name == "" {
		clct.Log(state.CodeFrameIllegalName)
		logging.L().Error("frame_name_empty")
	}
	if r.DataLen <= 0 {
		clct.Log(state.CodeFrameIllegalDataLen)
		logging.L().Error("frame_data_len_invalid", "frame", r.Name, "data_len", r.DataLen)
	}
	return r
}

// VarRule extracts one field from a single frame.
type VarRule struct {
	FrameID uint32
	Name    string
	Field   codec.Field
	Clct    *state.Collector
	Warn    bool
}

// NewVarRule validates the bus-independent part of a var table against the
// frame payload width. Frame binding (can_id or frame name) is the bus
// constructor's job.
func NewVarRule(clct *state.Collector, t schema.VarTable, maxLen int) *VarRule {
	r := &VarRule{Name: t.VarName, Clct: clct}
	r.Field.Zoom = 1.0
	if r.Name == "" {
		clct.Log(state.CodeVarIllegalName)
		logging.L().Error("var_name_empty")
	}
	vt, ok := codec.ParseVarType(t.VarType)
	if !ok {
		clct.Log(state.CodeVarIllegalType)
		logging.L().Error("var_type_unknown", "var", r.Name, "var_type", t.VarType,
			"supported", codec.TypeNames())
	}
	r.Field.Type = vt
	if t.VarZoom != nil {
		if !vt.IsFloat() {
			r.Warn = true
			logging.L().Warn("var_zoom_ignored_kind", "var", r.Name, "var_type", t.VarType)
		}
		r.Field.Zoom = *t.VarZoom
	}

	params, paramsOK := byteParams(clct, r.Name, t.ParserParam)
	ptype := t.ParserType
	if ptype == "" || ptype == "auto" {
		switch len(params) {
		case 3:
			ptype = "bit"
		case 2:
			ptype = "var"
		default:
			clct.Log(state.CodeVarParamSize)
			logging.L().Error("parser_param_size", "var", r.Name, "got", len(params))
			return r
		}
	}
	switch ptype {
	case "bit":
		if vt == codec.U8Array {
			clct.Log(state.CodeVarIllegalType)
			logging.L().Error("bit_form_u8_array", "var", r.Name)
		}
		if len(params) != 3 {
			clct.Log(state.CodeVarParamSize)
			logging.L().Error("parser_param_size", "var", r.Name, "want", 3, "got", len(params))
			return r
		}
		if !paramsOK {
			return r
		}
		r.Field.Loc = codec.BitLoc(params[0], params[1], params[2])
		if int(params[0]) >= maxLen {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("bit_byte_index_range", "var", r.Name, "byte", params[0], "max", maxLen-1)
		}
		if params[1] < params[2] {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("bit_range_inverted", "var", r.Name, "high", params[1], "low", params[2])
		}
		if params[1] >= 8 || params[2] >= 8 {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("bit_range_overflow", "var", r.Name, "high", params[1], "low", params[2])
		}
	case "var":
		if len(params) != 2 {
			clct.Log(state.CodeVarParamSize)
			logging.L().Error("parser_param_size", "var", r.Name, "want", 2, "got", len(params))
			return r
		}
		if !paramsOK {
			return r
		}
		r.Field.Loc = codec.SpanLoc(params[0], params[1])
		if params[0] > params[1] {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("span_inverted", "var", r.Name, "lo", params[0], "hi", params[1])
		}
		if int(params[0]) >= maxLen || int(params[1]) >= maxLen {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("span_range", "var", r.Name, "lo", params[0], "hi", params[1], "max", maxLen-1)
		}
	default:
		clct.Log(state.CodeVarIllegalParserType)
		logging.L().Error("parser_type_unknown", "var", r.Name, "parser_type", ptype)
	}
	return r
}

// byteParams narrows schema integers to payload byte offsets.
func byteParams(clct *state.Collector, name string, in []int64) ([]uint8, bool) {
	out := make([]uint8, len(in))
	ok := true
	for i, v := range in {
		if v < 0 || v > 255 {
			clct.Log(state.CodeVarParamValue)
			logging.L().Error("parser_param_range", "var", name, "param", v)
			ok = false
			continue
		}
		out[i] = uint8(v)
	}
	return out, ok
}

// CheckIDRange validates a frame identifier against the standard or
// extended CAN range.
func CheckIDRange(clct *state.Collector, id uint32, extended bool, owner string) bool {
	max := uint32(can.SFFMask)
	if extended {
		max = can.EFFMask
	}
	if id > max {
		clct.Log(state.CodeCANIDIllegalValue)
		logging.L().Error("can_id_range", "owner", owner, "id", id, "max", max)
		return false
	}
	return true
}

// ArrayRule correlates PackageNum frames, in declared slot order, into one
// logical buffer. The expect/cursor pair is the reassembler's runtime
// state, owned by the parser instance that admitted the rule.
type ArrayRule struct {
	Name       string
	PackageNum int
	AllMaxLen  int
	Clct       *state.Collector
	Warn       bool

	slots map[uint32]int
	order []uint32

	expect int
	cursor int
}

// Slot maps a frame identifier to its position in the array, if any.
func (r *ArrayRule) Slot(id uint32) (int, bool) {
	s, ok := r.slots[id]
	return s, ok
}

// Frames returns the identifiers in slot order.
func (r *ArrayRule) Frames() []uint32 { return r.order }

// ExpectedID returns the identifier of the frame the reassembler wants
// next (inverse slot lookup).
func (r *ArrayRule) ExpectedID() uint32 {
	if r.expect < len(r.order) {
		return r.order[r.expect]
	}
	return 0
}

// newArrayRule validates the shared part of an array table.
func newArrayRule(clct *state.Collector, name string, packages int) *ArrayRule {
	r := &ArrayRule{
		Name:       name,
		PackageNum: packages,
		Clct:       clct,
		slots:      make(map[uint32]int),
	}
	if name == "" {
		clct.Log(state.CodeVarIllegalName)
		logging.L().Error("array_name_empty")
	}
	if packages <= 0 {
		clct.Log(state.CodeArrayParamValue)
		logging.L().Error("array_package_num", "array", name, "package_num", packages)
	}
	return r
}

func (r *ArrayRule) insert(clct *state.Collector, id uint32) {
	if _, dup := r.slots[id]; dup {
		clct.Log(state.CodeArraySameFrameID)
		logging.L().Error("array_same_frame_id", "array", r.Name, "id", id)
		return
	}
	r.slots[id] = len(r.order)
	r.order = append(r.order, id)
}

// NewCanArrayRule validates a CAN array table. Two declaration forms are
// admissible: an explicit identifier list of exactly package_num entries,
// or a two-entry [lo, hi] span with hi-lo+1 == package_num frames.
func NewCanArrayRule(clct *state.Collector, t schema.ArrayTable, extended bool) *ArrayRule {
	r := newArrayRule(clct, t.ArrayName, t.Packages())
	switch {
	case len(t.CanID) == r.PackageNum:
		for _, s := range t.CanID {
			id, ok := schema.ParseHex(s, clct)
			if !ok {
				continue
			}
			CheckIDRange(clct, id, extended, r.Name)
			r.insert(clct, id)
		}
		if !ascendingByOne(r.order) {
			r.Warn = true
			logging.L().Warn("array_ids_not_contiguous", "array", r.Name)
		}
	case r.PackageNum > 2 && len(t.CanID) == 2:
		lo, okLo := schema.ParseHex(t.CanID[0], clct)
		hi, okHi := schema.ParseHex(t.CanID[1], clct)
		if !okLo || !okHi {
			break
		}
		if hi >= lo && int(hi-lo)+1 == r.PackageNum {
			for id := lo; id <= hi; id++ {
				CheckIDRange(clct, id, extended, r.Name)
				r.insert(clct, id)
			}
		} else {
			clct.Log(state.CodeArrayParamValue)
			logging.L().Error("array_span_mismatch", "array", r.Name,
				"lo", lo, "hi", hi, "package_num", r.PackageNum)
		}
	default:
		clct.Log(state.CodeArrayParamValue)
		logging.L().Error("array_id_count", "array", r.Name,
			"ids", len(t.CanID), "package_num", r.PackageNum)
	}
	return r
}

// NewUartArrayRule validates a UART array table; identifiers come from
// resolving the listed frame names.
func NewUartArrayRule(clct *state.Collector, t schema.ArrayTable, resolve func(string) (uint32, bool)) *ArrayRule {
	r := newArrayRule(clct, t.ArrayName, t.Packages())
	if len(t.FrameID) != r.PackageNum {
		clct.Log(state.CodeArrayParamValue)
		logging.L().Error("array_frame_count", "array", r.Name,
			"frames", len(t.FrameID), "package_num", r.PackageNum)
		return r
	}
	for _, name := range t.FrameID {
		id, ok := resolve(name)
		if !ok {
			clct.Log(state.CodeNoFrameID)
			logging.L().Error("array_frame_unknown", "array", r.Name, "frame", name)
			continue
		}
		r.insert(clct, id)
	}
	return r
}

// ascendingByOne reports whether the identifiers, in declared order,
// increase in steps of exactly one.
func ascendingByOne(ids []uint32) bool {
	for i := 1; i < len(ids); i++ {
		if ids[i]-ids[i-1] != 1 {
			return false
		}
	}
	return true
}

// CmdRule is a named prototype frame for outbound commands.
type CmdRule struct {
	FrameID  uint32
	Name     string
	CtrlLen  int
	CtrlData []byte
	Clct     *state.Collector
	Warn     bool
}

// NewCmdRule validates a cmd table. The ctrl_len upper bound against the
// frame payload width is enforced at admission, where the width is known.
func NewCmdRule(clct *state.Collector, t schema.CmdTable) *CmdRule {
	r := &CmdRule{Name: t.CmdName, CtrlLen: t.CtrlLen, Clct: clct}
	if r.Name == "" {
		clct.Log(state.CodeCmdIllegalName)
		logging.L().Error("cmd_name_empty")
	}
	for _, s := range t.CtrlData {
		b, ok := schema.ParseHexByte(s, clct)
		if !ok {
			logging.L().Error("cmd_ctrl_data_byte", "cmd", r.Name, "value", s)
		}
		r.CtrlData = append(r.CtrlData, b)
	}
	if r.CtrlLen < len(r.CtrlData) {
		clct.Log(state.CodeCmdCtrlData)
		logging.L().Error("cmd_ctrl_data_overflow", "cmd", r.Name,
			"ctrl_len", r.CtrlLen, "ctrl_data", len(r.CtrlData))
	}
	return r
}
