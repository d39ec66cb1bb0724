package parser

import (
	"errors"
	"testing"

	"github.com/Karlsx/go-canproto/internal/can"
	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/schema"
	"github.com/Karlsx/go-canproto/internal/state"
	"github.com/Karlsx/go-canproto/internal/transport"
)

func mustDoc(t *testing.T, text string) *schema.Document {
	t.Helper()
	doc, err := schema.Parse(text)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return doc
}

func frame(id uint32, data ...byte) can.Frame {
	var fr can.Frame
	fr.ID = id
	fr.Len = 8
	copy(fr.Data[:], data)
	return fr
}

// collectSink records frames handed to EncodeAll.
type collectSink struct {
	frames []can.Frame
	fail   bool
}

func (s *collectSink) SendFrame(fr can.Frame) error {
	if s.fail {
		return errors.New("bus down")
	}
	s.frames = append(s.frames, fr.Clone())
	return nil
}

func TestDecodeSingleU16(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "speed"
var_type = "u16"
parser_param = [2, 3]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	if n := p.InitErrorCount(); n != 0 {
		t.Fatalf("init errors = %d", n)
	}
	m := datamap.New()
	p.Bind(m)

	fr := frame(0x100, 0x00, 0x00, 0x12, 0x34)
	complete, errFlag := p.Decode(m, &fr)
	if errFlag {
		t.Fatalf("unexpected error flag")
	}
	if !complete {
		t.Fatalf("sole var decoded, cycle must complete")
	}
	e, _ := m.Get("speed")
	if e.U16() != 0x1234 {
		t.Fatalf("speed = %#04x", e.U16())
	}
	if e.Loaded {
		t.Fatalf("completion must clear loaded flags")
	}
}

func TestDecodeBitSlice(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x200"
var_name = "mode"
var_type = "u8"
parser_param = [0, 3, 1]
`)
	p := NewCanParser(nil, doc, "test")
	m := datamap.New()
	p.Bind(m)
	fr := frame(0x200, 0b00001010)
	if complete, _ := p.Decode(m, &fr); !complete {
		t.Fatalf("cycle incomplete")
	}
	e, _ := m.Get("mode")
	if e.U8() != 5 {
		t.Fatalf("mode = %d, want 5", e.U8())
	}
}

func TestDecodeScaledFloat(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x300"
var_name = "ratio"
var_type = "float"
parser_param = [0, 1]
var_zoom = 0.01
`)
	p := NewCanParser(nil, doc, "test")
	m := datamap.New()
	p.Bind(m)
	fr := frame(0x300, 0x00, 0x64)
	if complete, _ := p.Decode(m, &fr); !complete {
		t.Fatalf("cycle incomplete")
	}
	e, _ := m.Get("ratio")
	if e.F32() != 1.0 {
		t.Fatalf("ratio = %v, want 1.0", e.F32())
	}
}

func TestDecodeCompletionEdgeTriggers(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "a"
var_type = "u8"
parser_param = [0, 0]

[[var]]
can_id = "0x101"
var_name = "b"
var_type = "u8"
parser_param = [0, 0]
`)
	p := NewCanParser(nil, doc, "test")
	m := datamap.New()
	p.Bind(m)

	f1 := frame(0x100, 7)
	if complete, _ := p.Decode(m, &f1); complete {
		t.Fatalf("half the map is pending")
	}
	f2 := frame(0x101, 9)
	if complete, _ := p.Decode(m, &f2); !complete {
		t.Fatalf("map full, cycle must complete")
	}
	// flags cleared: same frame again must not complete
	if complete, _ := p.Decode(m, &f2); complete {
		t.Fatalf("completion must edge-trigger")
	}
}

func TestDecodeNoLink(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "orphan"
var_type = "u8"
parser_param = [0, 0]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	m := datamap.New() // nothing linked
	fr := frame(0x100, 1)
	complete, errFlag := p.Decode(m, &fr)
	if !errFlag {
		t.Fatalf("missing entry must set error flag")
	}
	if !complete {
		t.Fatalf("empty map is vacuously complete")
	}
	if clct.CountOf(state.CodeRuntimeNoLink) == 0 {
		t.Fatalf("no-link fault missing")
	}
}

func TestDuplicateVarNameRejected(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "twin"
var_type = "u8"
parser_param = [0, 0]

[[var]]
can_id = "0x101"
var_name = "twin"
var_type = "u8"
parser_param = [0, 0]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	if clct.CountOf(state.CodeSameName) != 1 {
		t.Fatalf("duplicate name not logged")
	}
	if got := len(p.ReceiveIDs()); got != 1 {
		t.Fatalf("recv ids = %d, want 1 (dup rejected)", got)
	}
}

func TestDataAreaConflictIsDiagnosticOnly(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "a"
var_type = "u16"
parser_param = [0, 1]

[[var]]
can_id = "0x100"
var_name = "b"
var_type = "u8"
parser_param = [1, 2]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	if clct.CountOf(state.CodeDataAreaConflict) == 0 {
		t.Fatalf("overlap not reported")
	}
	m := datamap.New()
	p.Bind(m)
	if _, ok := m.Get("b"); !ok {
		t.Fatalf("conflicting rule must still be admitted")
	}
}

func TestEncodeCmd(t *testing.T) {
	doc := mustDoc(t, `
[[cmd]]
can_id = "0x500"
cmd_name = "PING"
ctrl_len = 2
ctrl_data = ["0xAA", "0x55"]
`)
	p := NewCanParser(nil, doc, "test")
	fr, ok := p.EncodeStd("PING", []byte{0x01, 0x02})
	if !ok {
		t.Fatalf("EncodeStd failed")
	}
	if fr.ID != 0x500 || fr.Len != 8 {
		t.Fatalf("frame = id %#x len %d", fr.ID, fr.Len)
	}
	want := []byte{0xAA, 0x55, 0x01, 0x02, 0, 0, 0, 0}
	for i, b := range want {
		if fr.Data[i] != b {
			t.Fatalf("data = % X, want % X", fr.Data[:8], want)
		}
	}
}

func TestEncodeCmdPayloadOverflow(t *testing.T) {
	doc := mustDoc(t, `
[[cmd]]
can_id = "0x500"
cmd_name = "BLOB"
ctrl_len = 4
ctrl_data = ["0x01"]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	payload := []byte{1, 2, 3, 4, 5, 6} // 4 + 6 > 8
	fr, ok := p.EncodeStd("BLOB", payload)
	if ok {
		t.Fatalf("overflow must report failure")
	}
	if fr.Data[0] != 0x01 || fr.Data[4] != 1 || fr.Data[7] != 4 {
		t.Fatalf("overflow must still pack what fits: % X", fr.Data[:8])
	}
	if clct.CountOf(state.CodeArrayParamValue) == 0 {
		t.Fatalf("overflow fault missing")
	}
}

func TestEncodeCmdUnknown(t *testing.T) {
	doc := mustDoc(t, ``)
	p := NewCanParser(nil, doc, "test")
	if _, ok := p.EncodeStd("NOPE", nil); ok {
		t.Fatalf("unknown cmd must fail")
	}
}

func TestMixUseGuard(t *testing.T) {
	doc := mustDoc(t, `
canfd_enable = true

[[cmd]]
can_id = "0x500"
cmd_name = "PING"
ctrl_len = 1
ctrl_data = ["0xAA"]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	if _, ok := p.EncodeStd("PING", nil); ok {
		t.Fatalf("classic encode on FD parser must fail")
	}
	if clct.CountOf(state.CodeMixUsing) != 1 {
		t.Fatalf("mix-use fault missing")
	}
	if fr, ok := p.EncodeFD("PING", []byte{0x01}); !ok || !fr.FD || fr.Len != 64 {
		t.Fatalf("FD encode on FD parser: ok=%v fd=%v len=%d", ok, fr.FD, fr.Len)
	}

	std := NewCanParser(state.NewCollector(), mustDoc(t, `
[[cmd]]
can_id = "0x501"
cmd_name = "PONG"
ctrl_len = 1
ctrl_data = ["0xBB"]
`), "std")
	if _, ok := std.EncodeFD("PONG", nil); ok {
		t.Fatalf("FD encode on classic parser must fail")
	}
}

func TestEncodeAllVars(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "speed"
var_type = "u16"
parser_param = [2, 3]

[[var]]
can_id = "0x100"
var_name = "mode"
var_type = "u8"
parser_param = [0, 3, 1]
`)
	p := NewCanParser(nil, doc, "test")
	m := datamap.New()
	p.Bind(m)
	speed, _ := m.Get("speed")
	speed.SetU16(0x1234)
	mode, _ := m.Get("mode")
	mode.SetU8(5)

	var sink collectSink
	if !p.EncodeAll(m, &sink) {
		t.Fatalf("EncodeAll failed")
	}
	if len(sink.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(sink.frames))
	}
	fr := sink.frames[0]
	if fr.ID != 0x100 || fr.Data[2] != 0x12 || fr.Data[3] != 0x34 {
		t.Fatalf("frame = % X", fr.Data[:8])
	}
	if fr.Data[0] != 0b00001010 {
		t.Fatalf("bit field = %#08b", fr.Data[0])
	}
}

func TestEncodeAllSendFailure(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x100"
var_name = "v"
var_type = "u8"
parser_param = [0, 0]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "test")
	m := datamap.New()
	p.Bind(m)
	sink := collectSink{fail: true}
	if p.EncodeAll(m, &sink) {
		t.Fatalf("send failure must fail EncodeAll")
	}
	if clct.CountOf(state.CodeSendStdFailed) == 0 {
		t.Fatalf("send fault missing")
	}
}

func TestReceiveIDs(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x200"
var_name = "v"
var_type = "u8"
parser_param = [0, 0]

[[array]]
can_package_num = 2
array_name = "arr"
can_id = ["0x400", "0x401"]
`)
	p := NewCanParser(nil, doc, "test")
	got := p.ReceiveIDs()
	want := []uint32{0x200, 0x400, 0x401}
	if len(got) != len(want) {
		t.Fatalf("ids = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestCANIDRangeEnforced(t *testing.T) {
	doc := mustDoc(t, `
[[var]]
can_id = "0x800"
var_name = "far"
var_type = "u8"
parser_param = [0, 0]
`)
	clct := state.NewCollector()
	p := NewCanParser(clct, doc, "std")
	if clct.CountOf(state.CodeCANIDIllegalValue) == 0 {
		t.Fatalf("standard range fault missing")
	}
	if len(p.ReceiveIDs()) != 0 {
		t.Fatalf("out-of-range rule must be rejected")
	}

	ext := mustDoc(t, `
extended_frame = true

[[var]]
can_id = "0x800"
var_name = "far"
var_type = "u8"
parser_param = [0, 0]
`)
	clct2 := state.NewCollector()
	p2 := NewCanParser(clct2, ext, "ext")
	if clct2.CountOf(state.CodeCANIDIllegalValue) != 0 {
		t.Fatalf("0x800 valid on extended bus")
	}
	if len(p2.ReceiveIDs()) != 1 {
		t.Fatalf("extended rule missing")
	}
}

var _ transport.FrameSink = (*collectSink)(nil)
