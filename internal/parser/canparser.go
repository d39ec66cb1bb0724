package parser

import (
	"fmt"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/metrics"
	"github.com/Karlsx/go-canproto/internal/rules"
	"github.com/Karlsx/go-canproto/internal/schema"
	"github.com/Karlsx/go-canproto/internal/state"
	"github.com/Karlsx/go-canproto/internal/transport"
)

// CanParser decodes and encodes one CAN or CAN-FD protocol instance.
type CanParser struct {
	engine
	canfd    bool
	extended bool
}

// NewCanParser builds the rule tables from a schema document. Faulty rules
// are counted on clct (pass nil for a private collector) and skipped; the
// parser stays usable for the healthy remainder. Check InitErrorCount
// before trusting the instance.
func NewCanParser(clct *state.Collector, doc *schema.Document, name string) *CanParser {
	p := &CanParser{
		engine:   newEngine(clct, name, "CAN"),
		canfd:    doc.CanfdEnable,
		extended: doc.ExtendedFrame,
	}
	if p.canfd {
		p.sendCode = state.CodeSendFDFailed
	} else {
		p.sendCode = state.CodeSendStdFailed
	}
	dataLen := p.DataLen()

	p.createCheck()
	for _, vt := range doc.Var {
		child := p.clct.Child()
		r := rules.NewVarRule(child, vt, dataLen)
		if id, ok := schema.ParseHex(vt.CanID, child); ok {
			r.FrameID = id
			rules.CheckIDRange(child, id, p.extended, r.Name)
		}
		if child.SelfCount() == 0 {
			p.initFrame(p.canFrameRule(r.FrameID), false)
		}
		p.initVar(r, dataLen)
	}
	for _, at := range doc.Array {
		r := rules.NewCanArrayRule(p.clct.Child(), at, p.extended)
		for _, id := range r.Frames() {
			p.initFrame(p.canFrameRule(id), false)
		}
		p.initArray(r)
	}
	for _, ct := range doc.Cmd {
		child := p.clct.Child()
		r := rules.NewCmdRule(child, ct)
		if id, ok := schema.ParseHex(ct.CanID, child); ok {
			r.FrameID = id
			rules.CheckIDRange(child, id, p.extended, r.Name)
		}
		if child.SelfCount() == 0 {
			p.initFrame(p.canFrameRule(r.FrameID), false)
		}
		p.initCmd(r, dataLen)
	}
	p.clearCheck()

	logging.L().Info("can_protocol_created", "instance", name,
		"canfd", p.canfd, "extended", p.extended,
		"errors", p.InitErrorCount(), "warnings", p.InitWarnCount())
	return p
}

func (p *CanParser) canFrameRule(id uint32) *rules.FrameRule {
	return &rules.FrameRule{ID: id, Name: fmt.Sprintf("0x%08X", id), DataLen: p.DataLen()}
}

// DataLen returns the payload width of every frame on this bus flavour.
func (p *CanParser) DataLen() int {
	if p.canfd {
		return can.MaxFDDataLen
	}
	return can.MaxDataLen
}

// IsCANFD reports the bus flavour.
func (p *CanParser) IsCANFD() bool { return p.canfd }

// Decode runs fr through the rule tables. complete is true exactly once
// per full reception cycle; errFlag marks any per-rule fault.
func (p *CanParser) Decode(m *datamap.Map, fr *can.Frame) (complete, errFlag bool) {
	return p.decode(m, fr.ID, fr.Data[:p.DataLen()])
}

// EncodeStd fills a classic CAN frame from the named cmd rule plus
// payload. Calling it on a CAN-FD instance is a mix-use fault: no frame is
// produced.
func (p *CanParser) EncodeStd(cmd string, payload []byte) (can.Frame, bool) {
	if p.canfd {
		p.mixUse(cmd, "std_via_fd")
		return can.Frame{}, false
	}
	return p.encodeCmdFrame(cmd, payload, false)
}

// EncodeFD is EncodeStd's CAN-FD dual.
func (p *CanParser) EncodeFD(cmd string, payload []byte) (can.Frame, bool) {
	if !p.canfd {
		p.mixUse(cmd, "fd_via_std")
		return can.Frame{}, false
	}
	return p.encodeCmdFrame(cmd, payload, true)
}

func (p *CanParser) encodeCmdFrame(cmd string, payload []byte, fd bool) (can.Frame, bool) {
	var fr can.Frame
	fr.FD = fd
	fr.Len = uint8(p.DataLen())
	id, ok := p.encodeCmd(cmd, payload, fr.Data[:p.DataLen()])
	fr.ID = id
	return fr, ok
}

func (p *CanParser) mixUse(cmd, kind string) {
	p.clct.Log(state.CodeMixUsing)
	metrics.IncRuntimeError(metrics.ErrMixUse)
	logging.L().Error("can_mix_use", "instance", p.name, "cmd", cmd, "kind", kind)
}

// EncodeAll packs every var-rule frame and array walk from m and hands the
// frames to sink. It returns true iff nothing faulted.
func (p *CanParser) EncodeAll(m *datamap.Map, sink transport.FrameSink) bool {
	return p.encodeAll(m, func(id uint32, data []byte) error {
		var fr can.Frame
		fr.ID = id
		fr.FD = p.canfd
		fr.Len = uint8(len(data))
		copy(fr.Data[:], data)
		return sink.SendFrame(fr)
	})
}
