package parser

import (
	"bytes"
	"testing"

	"github.com/Karlsx/go-canproto/internal/datamap"
	"github.com/Karlsx/go-canproto/internal/state"
)

const imgDoc = `
[[array]]
can_package_num = 3
array_name = "img"
can_id = ["0x400", "0x401", "0x402"]
`

func payload(b byte) []byte {
	p := make([]byte, 8)
	for i := range p {
		p[i] = b
	}
	return p
}

func TestArrayOrderedCompletion(t *testing.T) {
	p := NewCanParser(nil, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	p.Bind(m)
	e, _ := m.Get("img")
	if e.Size() != 24 {
		t.Fatalf("bound size = %d, want 24", e.Size())
	}

	for i, b := range []byte{0x11, 0x22, 0x33} {
		fr := frame(uint32(0x400+i), payload(b)...)
		complete, errFlag := p.Decode(m, &fr)
		if errFlag {
			t.Fatalf("frame %d: error flag", i)
		}
		if complete != (i == 2) {
			t.Fatalf("frame %d: complete=%v", i, complete)
		}
	}
	want := append(append(payload(0x11), payload(0x22)...), payload(0x33)...)
	if !bytes.Equal(e.Bytes(), want) {
		t.Fatalf("assembled = % X", e.Bytes())
	}
	if e.Loaded {
		t.Fatalf("completion must clear the loaded flag via edge trigger")
	}
}

func TestArrayOutOfOrderResync(t *testing.T) {
	clct := state.NewCollector()
	p := NewCanParser(clct, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	p.Bind(m)

	f0 := frame(0x400, payload(0xAA)...)
	if _, errFlag := p.Decode(m, &f0); errFlag {
		t.Fatalf("first frame errored")
	}
	// skip 0x401: out-of-order, collector must reset without loading
	f2 := frame(0x402, payload(0xBB)...)
	complete, errFlag := p.Decode(m, &f2)
	if complete {
		t.Fatalf("resync must not complete")
	}
	if !errFlag {
		t.Fatalf("out-of-order must set error flag")
	}
	if clct.CountOf(state.CodeRuntimeBadOrder) != 1 {
		t.Fatalf("bad order fault missing")
	}
	e, _ := m.Get("img")
	if e.Loaded {
		t.Fatalf("loaded must stay false after resync")
	}

	// after the reset a full in-order run still completes
	for i, b := range []byte{1, 2, 3} {
		fr := frame(uint32(0x400+i), payload(b)...)
		if complete, _ := p.Decode(m, &fr); complete != (i == 2) {
			t.Fatalf("post-resync frame %d: complete=%v", i, complete)
		}
	}
}

func TestArrayRepeatedCycles(t *testing.T) {
	p := NewCanParser(nil, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	p.Bind(m)
	completions := 0
	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < 3; i++ {
			fr := frame(uint32(0x400+i), payload(byte(cycle))...)
			if complete, _ := p.Decode(m, &fr); complete {
				completions++
			}
		}
	}
	if completions != 3 {
		t.Fatalf("completions = %d, want exactly one per cycle", completions)
	}
}

func TestArrayRestartFromFirstSlot(t *testing.T) {
	clct := state.NewCollector()
	p := NewCanParser(clct, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	p.Bind(m)

	f0 := frame(0x400, payload(1)...)
	p.Decode(m, &f0)
	// first slot again: also out-of-order (expected slot 1), resets
	f0b := frame(0x400, payload(2)...)
	if complete, errFlag := p.Decode(m, &f0b); complete || !errFlag {
		t.Fatalf("repeat of slot 0 must resync")
	}
	if clct.CountOf(state.CodeRuntimeBadOrder) != 1 {
		t.Fatalf("bad order fault missing")
	}
}

func TestArrayEntryTooSmall(t *testing.T) {
	clct := state.NewCollector()
	p := NewCanParser(clct, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	m.Link("img", 8) // needs 24
	fr := frame(0x400, payload(1)...)
	_, errFlag := p.Decode(m, &fr)
	if !errFlag {
		t.Fatalf("undersized entry must set error flag")
	}
	if clct.CountOf(state.CodeArrayParamValue) == 0 {
		t.Fatalf("undersized entry fault missing")
	}
}

func TestArrayEncodeWalk(t *testing.T) {
	p := NewCanParser(nil, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	p.Bind(m)
	e, _ := m.Get("img")
	for i := range e.Bytes() {
		e.Bytes()[i] = byte(i)
	}

	var sink collectSink
	if !p.EncodeAll(m, &sink) {
		t.Fatalf("EncodeAll failed")
	}
	if len(sink.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(sink.frames))
	}
	for i, fr := range sink.frames {
		if fr.ID != uint32(0x400+i) {
			t.Fatalf("frame %d id = %#x", i, fr.ID)
		}
		for j := 0; j < 8; j++ {
			if fr.Data[j] != byte(i*8+j) {
				t.Fatalf("frame %d data = % X", i, fr.Data[:8])
			}
		}
	}
}

func TestArrayEncodeSizeMismatchContinues(t *testing.T) {
	clct := state.NewCollector()
	p := NewCanParser(clct, mustDoc(t, imgDoc), "test")
	m := datamap.New()
	m.Link("img", 16) // declared walk needs 24

	var sink collectSink
	if p.EncodeAll(m, &sink) {
		t.Fatalf("size mismatch must fail EncodeAll")
	}
	if len(sink.frames) != 3 {
		t.Fatalf("mismatch must still send the declared walk, got %d frames", len(sink.frames))
	}
	if clct.CountOf(state.CodeRuntimeSizeMismatch) == 0 {
		t.Fatalf("size mismatch fault missing")
	}
	// the frame beyond the entry carries zero fill
	last := sink.frames[2]
	for j := 0; j < 8; j++ {
		if last.Data[j] != 0 {
			t.Fatalf("tail frame not zero filled: % X", last.Data[:8])
		}
	}
}

func TestArraySpanDeclaration(t *testing.T) {
	doc := mustDoc(t, `
[[array]]
can_package_num = 4
array_name = "blk"
can_id = ["0x300", "0x303"]
`)
	p := NewCanParser(nil, doc, "test")
	m := datamap.New()
	p.Bind(m)
	e, _ := m.Get("blk")
	if e.Size() != 32 {
		t.Fatalf("bound size = %d, want 32", e.Size())
	}
	completions := 0
	for i := 0; i < 4; i++ {
		fr := frame(uint32(0x300+i), payload(byte(i))...)
		if complete, _ := p.Decode(m, &fr); complete {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("completions = %d", completions)
	}
}
