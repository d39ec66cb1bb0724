package parser

import (
	"testing"

	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/state"
)

const uartDoc = `
[[frame]]
frame_name = "status"
data_len = 16

[[frame]]
frame_name = "page0"
data_len = 4

[[frame]]
frame_name = "page1"
data_len = 4

[[var]]
frame = "status"
var_name = "temp"
var_type = "i16"
parser_param = [10, 11]

[[var]]
frame = "status"
var_name = "ok"
var_type = "bool"
parser_param = [0, 0, 0]

[[array]]
package_num = 2
array_name = "pages"
frame_id = ["page0", "page1"]

[[cmd]]
frame = "status"
cmd_name = "RESET"
ctrl_len = 2
ctrl_data = ["0x5A", "0xA5"]
`

func TestUartFrameTables(t *testing.T) {
	clct := state.NewCollector()
	p := NewUartParser(clct, mustDoc(t, uartDoc), "mcu")
	if n := p.InitErrorCount(); n != 0 {
		t.Fatalf("init errors = %d", n)
	}
	id, ok := p.FrameID("status")
	if !ok {
		t.Fatalf("status frame missing")
	}
	if got := p.FrameDataLen(id); got != 16 {
		t.Fatalf("status width = %d", got)
	}
	// synthetic ids are assigned in declaration order
	if id0, _ := p.FrameID("status"); id0 != 0 {
		t.Fatalf("status id = %d", id0)
	}
	if id1, _ := p.FrameID("page0"); id1 != 1 {
		t.Fatalf("page0 id = %d", id1)
	}
}

func TestUartDecodeVarsAndArray(t *testing.T) {
	p := NewUartParser(nil, mustDoc(t, uartDoc), "mcu")
	m := datamap.New()
	p.Bind(m)

	statusID, _ := p.FrameID("status")
	raw := make([]byte, 16)
	raw[0] = 0x01 // bool bit 0
	raw[10] = 0xFF
	raw[11] = 0x9C // -100 big-endian
	if complete, errFlag := p.Decode(m, statusID, raw); complete || errFlag {
		t.Fatalf("status alone: complete=%v err=%v", complete, errFlag)
	}
	temp, _ := m.Get("temp")
	if temp.I16() != -100 {
		t.Fatalf("temp = %d", temp.I16())
	}
	okv, _ := m.Get("ok")
	if !okv.Bool() {
		t.Fatalf("ok flag not set")
	}

	p0, _ := p.FrameID("page0")
	p1, _ := p.FrameID("page1")
	if complete, _ := p.Decode(m, p0, []byte{1, 2, 3, 4}); complete {
		t.Fatalf("pages incomplete")
	}
	complete, errFlag := p.Decode(m, p1, []byte{5, 6, 7, 8})
	if errFlag {
		t.Fatalf("page1 errored")
	}
	if !complete {
		t.Fatalf("all entries loaded, cycle must complete")
	}
	pages, _ := m.Get("pages")
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for i, b := range want {
		if pages.Bytes()[i] != b {
			t.Fatalf("pages = % X", pages.Bytes())
		}
	}
}

func TestUartEncodeCmd(t *testing.T) {
	p := NewUartParser(nil, mustDoc(t, uartDoc), "mcu")
	id, data, ok := p.EncodeCmd("RESET", []byte{0x07})
	if !ok {
		t.Fatalf("EncodeCmd failed")
	}
	statusID, _ := p.FrameID("status")
	if id != statusID {
		t.Fatalf("cmd frame id = %d", id)
	}
	if len(data) != 16 || data[0] != 0x5A || data[1] != 0xA5 || data[2] != 0x07 {
		t.Fatalf("cmd payload = % X", data)
	}
}

func TestUartEncodeAll(t *testing.T) {
	p := NewUartParser(nil, mustDoc(t, uartDoc), "mcu")
	m := datamap.New()
	p.Bind(m)
	temp, _ := m.Get("temp")
	temp.SetI16(-2)
	pages, _ := m.Get("pages")
	for i := range pages.Bytes() {
		pages.Bytes()[i] = byte(0x10 + i)
	}

	type sent struct {
		id   uint32
		data []byte
	}
	var out []sent
	ok := p.EncodeAll(m, func(id uint32, data []byte) error {
		cp := append([]byte(nil), data...)
		out = append(out, sent{id, cp})
		return nil
	})
	if !ok {
		t.Fatalf("EncodeAll failed")
	}
	if len(out) != 3 { // status + two pages
		t.Fatalf("sent %d frames", len(out))
	}
	status := out[0]
	if len(status.data) != 16 || status.data[10] != 0xFF || status.data[11] != 0xFE {
		t.Fatalf("status frame = % X", status.data)
	}
	if len(out[1].data) != 4 || out[1].data[0] != 0x10 {
		t.Fatalf("page0 = % X", out[1].data)
	}
	if out[2].data[3] != 0x17 {
		t.Fatalf("page1 = % X", out[2].data)
	}
}

func TestUartUnknownFrameReference(t *testing.T) {
	doc := mustDoc(t, `
[[frame]]
frame_name = "a"
data_len = 8

[[var]]
frame = "missing"
var_name = "v"
var_type = "u8"
parser_param = [0, 0]
`)
	clct := state.NewCollector()
	NewUartParser(clct, doc, "mcu")
	if clct.CountOf(state.CodeNoFrameID) == 0 {
		t.Fatalf("unknown frame reference not logged")
	}
}

func TestUartDuplicateFrameName(t *testing.T) {
	doc := mustDoc(t, `
[[frame]]
frame_name = "a"
data_len = 8

[[frame]]
frame_name = "a"
data_len = 8
`)
	clct := state.NewCollector()
	NewUartParser(clct, doc, "mcu")
	if clct.CountOf(state.CodeSameFrameID) == 0 {
		t.Fatalf("duplicate frame name not logged")
	}
}
