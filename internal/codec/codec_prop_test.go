package codec

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/Karlsx/go-canproto/internal/datamap"
)

// Packing any integer value with a span rule of its native width into a
// zeroed payload and unpacking it again must return the value unchanged.
func TestRoundTripSpanIntegers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom([]VarType{U8, U16, U32, U64, I8, I16, I32, I64, Bool}).Draw(t, "kind")
		w := kind.Size()
		lo := rapid.IntRange(0, 8-w).Draw(t, "lo")
		f := Field{Type: kind, Loc: SpanLoc(uint8(lo), uint8(lo+w-1)), Zoom: 1}

		m := datamap.New()
		src := m.Link("src", w)
		bits := rapid.Uint64().Draw(t, "bits")
		switch kind {
		case Bool:
			src.SetBool(bits&1 != 0)
		case U8:
			src.SetU8(uint8(bits))
		case U16:
			src.SetU16(uint16(bits))
		case U32:
			src.SetU32(uint32(bits))
		case U64:
			src.SetU64(bits)
		case I8:
			src.SetI8(int8(bits))
		case I16:
			src.SetI16(int16(bits))
		case I32:
			src.SetI32(int32(bits))
		case I64:
			src.SetI64(int64(bits))
		}

		raw := make([]byte, 8)
		if err := Pack(raw, src, f); err != nil {
			t.Fatalf("Pack: %v", err)
		}
		dst := m.Link("dst", w)
		if err := Unpack(dst, raw, f); err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		for i := 0; i < w; i++ {
			if src.Bytes()[i] != dst.Bytes()[i] {
				t.Fatalf("round trip mismatch: src=% X dst=% X", src.Bytes(), dst.Bytes())
			}
		}
	})
}

// Any value narrower than its bit field must survive pack-then-unpack.
func TestRoundTripBitField(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		low := rapid.IntRange(0, 7).Draw(t, "low")
		high := rapid.IntRange(low, 7).Draw(t, "high")
		byteIdx := rapid.IntRange(0, 7).Draw(t, "byte")
		width := high - low + 1
		v := uint8(rapid.IntRange(0, 1<<width-1).Draw(t, "v"))

		f := Field{Type: U8, Loc: BitLoc(uint8(byteIdx), uint8(high), uint8(low)), Zoom: 1}
		m := datamap.New()
		src := m.Link("src", 1)
		src.SetU8(v)
		raw := make([]byte, 8)
		if err := Pack(raw, src, f); err != nil {
			t.Fatalf("Pack: %v", err)
		}
		dst := m.Link("dst", 1)
		if err := Unpack(dst, raw, f); err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if dst.U8() != v {
			t.Fatalf("bit round trip: got %d want %d", dst.U8(), v)
		}
	})
}

// Packing one field must never disturb bits claimed by a disjoint field.
func TestDisjointFieldsDoNotInterfere(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// field A: bits [aLow..aHigh] of byte 0; field B: a disjoint range
		aLow := rapid.IntRange(0, 6).Draw(t, "aLow")
		aHigh := rapid.IntRange(aLow, 6).Draw(t, "aHigh")
		bLow := rapid.IntRange(aHigh+1, 7).Draw(t, "bLow")
		bHigh := rapid.IntRange(bLow, 7).Draw(t, "bHigh")

		fa := Field{Type: U8, Loc: BitLoc(0, uint8(aHigh), uint8(aLow)), Zoom: 1}
		fb := Field{Type: U8, Loc: BitLoc(0, uint8(bHigh), uint8(bLow)), Zoom: 1}

		m := datamap.New()
		a := m.Link("a", 1)
		b := m.Link("b", 1)
		a.SetU8(uint8(rapid.IntRange(0, 1<<(aHigh-aLow+1)-1).Draw(t, "va")))
		b.SetU8(uint8(rapid.IntRange(0, 1<<(bHigh-bLow+1)-1).Draw(t, "vb")))

		raw := make([]byte, 8)
		if err := Pack(raw, a, fa); err != nil {
			t.Fatalf("Pack a: %v", err)
		}
		after := raw[0]
		if err := Pack(raw, b, fb); err != nil {
			t.Fatalf("Pack b: %v", err)
		}
		maskA := Mask(uint8(aHigh), uint8(aLow))
		if raw[0]&maskA != after&maskA {
			t.Fatalf("field B disturbed field A: before=%#02x after=%#02x", after, raw[0])
		}
		got := m.Link("chk", 1)
		if err := Unpack(got, raw, fa); err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if got.U8() != a.U8() {
			t.Fatalf("field A changed: got %d want %d", got.U8(), a.U8())
		}
	})
}
