package parser

import (
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/logging"
	"github.com/Karlsx/go-canproto/internal/rules"
	"github.com/Karlsx/go-canproto/internal/schema"
	"github.com/Karlsx/go-canproto/internal/state"
)

// UartParser decodes and encodes a UART protocol instance. UART schemas
// declare explicit frame tables with per-frame payload widths; frame
// identifiers are synthetic and assigned in declaration order, so vars,
// arrays and cmds reference frames by name.
type UartParser struct {
	engine
	nextID uint32
	byName map[string]uint32
}

// NewUartParser builds the rule tables from a UART schema document.
func NewUartParser(clct *state.Collector, doc *schema.Document, name string) *UartParser {
	p := &UartParser{
		engine: newEngine(clct, name, "UART"),
		byName: make(map[string]uint32),
	}
	p.sendCode = state.CodeSendUARTFailed

	p.createCheck()
	for _, ft := range doc.Frame {
		child := p.clct.Child()
		if _, dup := p.byName[ft.FrameName]; dup {
			child.Log(state.CodeSameFrameID)
			logging.L().Error("duplicate_frame_name", "instance", name, "frame", ft.FrameName)
			continue
		}
		r := rules.NewFrameRule(child, ft, p.nextID)
		if child.SelfCount() != 0 {
			continue
		}
		if p.initFrame(r, true) {
			p.byName[r.Name] = r.ID
			p.nextID++
		}
	}
	for _, vt := range doc.Var {
		child := p.clct.Child()
		id, ok := p.resolveFrame(child, vt.Frame)
		if !ok {
			continue
		}
		r := rules.NewVarRule(child, vt, p.frameDataLen(id))
		r.FrameID = id
		p.initVar(r, p.frameDataLen(id))
	}
	for _, at := range doc.Array {
		child := p.clct.Child()
		r := rules.NewUartArrayRule(child, at, func(frameName string) (uint32, bool) {
			id, ok := p.byName[frameName]
			return id, ok
		})
		p.initArray(r)
	}
	for _, ct := range doc.Cmd {
		child := p.clct.Child()
		id, ok := p.resolveFrame(child, ct.Frame)
		if !ok {
			continue
		}
		r := rules.NewCmdRule(child, ct)
		r.FrameID = id
		p.initCmd(r, p.frameDataLen(id))
	}
	p.clearCheck()

	logging.L().Info("uart_protocol_created", "instance", name,
		"frames", len(p.byName),
		"errors", p.InitErrorCount(), "warnings", p.InitWarnCount())
	return p
}

// resolveFrame maps a declared frame name to its synthetic identifier.
func (p *UartParser) resolveFrame(clct *state.Collector, frameName string) (uint32, bool) {
	id, ok := p.byName[frameName]
	if !ok {
		clct.Log(state.CodeNoFrameID)
		logging.L().Error("frame_unknown", "instance", p.name, "frame", frameName)
		return 0, false
	}
	return id, true
}

// FrameID exposes the synthetic identifier assigned to a frame name.
func (p *UartParser) FrameID(frameName string) (uint32, bool) {
	id, ok := p.byName[frameName]
	return id, ok
}

// FrameDataLen returns the payload width declared for a frame id.
func (p *UartParser) FrameDataLen(id uint32) int { return p.frameDataLen(id) }

// Decode runs one received frame's payload through the rule tables.
// payload must hold at least the frame's declared width.
func (p *UartParser) Decode(m *datamap.Map, id uint32, payload []byte) (complete, errFlag bool) {
	return p.decode(m, id, payload)
}

// EncodeCmd builds the payload for the named cmd rule: ctrl bytes first,
// caller payload after. The returned slice is the frame's full width.
func (p *UartParser) EncodeCmd(cmd string, payload []byte) (id uint32, data []byte, ok bool) {
	r, found := p.cmds[cmd]
	if !found {
		p.noLink(cmd)
		return 0, nil, false
	}
	data = make([]byte, p.frameDataLen(r.FrameID))
	id, ok = p.encodeCmd(cmd, payload, data)
	return id, data, ok
}

// EncodeAll packs every frame from m and hands each (id, payload) pair to
// send: first the var-rule frames in ascending id order, then each array's
// frames in slot order.
func (p *UartParser) EncodeAll(m *datamap.Map, send func(id uint32, data []byte) error) bool {
	return p.encodeAll(m, send)
}
