// Package datamap is the host-side registry the codec deposits decoded
// fields into. Each entry owns an explicit little-endian byte buffer; the
// host reads it back through typed accessors instead of handing the codec
// raw pointers into its own structs.
package datamap

import (
	"encoding/binary"
	"math"
)

// Entry is one named storage region. Loaded flips to true when the codec
// has fully determined the value; the parser clears it again when a whole
// reception cycle completes. ExpectIndex is host-owned scratch for drivers
// that stage multi-part reads themselves.
type Entry struct {
	buf         []byte
	Loaded      bool
	ExpectIndex int
}

// Size returns the entry's storage width in bytes.
func (e *Entry) Size() int { return len(e.buf) }

// Bytes exposes the backing buffer. Callers must not resize it.
func (e *Entry) Bytes() []byte { return e.buf }

func (e *Entry) Bool() bool   { return e.buf[0] != 0 }
func (e *Entry) U8() uint8    { return e.buf[0] }
func (e *Entry) U16() uint16  { return binary.LittleEndian.Uint16(e.buf) }
func (e *Entry) U32() uint32  { return binary.LittleEndian.Uint32(e.buf) }
func (e *Entry) U64() uint64  { return binary.LittleEndian.Uint64(e.buf) }
func (e *Entry) I8() int8     { return int8(e.buf[0]) }
func (e *Entry) I16() int16   { return int16(binary.LittleEndian.Uint16(e.buf)) }
func (e *Entry) I32() int32   { return int32(binary.LittleEndian.Uint32(e.buf)) }
func (e *Entry) I64() int64   { return int64(binary.LittleEndian.Uint64(e.buf)) }
func (e *Entry) F32() float32 { return math.Float32frombits(e.U32()) }
func (e *Entry) F64() float64 { return math.Float64frombits(e.U64()) }

func (e *Entry) SetBool(v bool) {
	if v {
		e.buf[0] = 1
	} else {
		e.buf[0] = 0
	}
}
func (e *Entry) SetU8(v uint8)   { e.buf[0] = v }
func (e *Entry) SetU16(v uint16) { binary.LittleEndian.PutUint16(e.buf, v) }
func (e *Entry) SetU32(v uint32) { binary.LittleEndian.PutUint32(e.buf, v) }
func (e *Entry) SetU64(v uint64) { binary.LittleEndian.PutUint64(e.buf, v) }
func (e *Entry) SetI8(v int8)    { e.buf[0] = uint8(v) }
func (e *Entry) SetI16(v int16)  { binary.LittleEndian.PutUint16(e.buf, uint16(v)) }
func (e *Entry) SetI32(v int32)  { binary.LittleEndian.PutUint32(e.buf, uint32(v)) }
func (e *Entry) SetI64(v int64)  { binary.LittleEndian.PutUint64(e.buf, uint64(v)) }
func (e *Entry) SetF32(v float32) { e.SetU32(math.Float32bits(v)) }
func (e *Entry) SetF64(v float64) { e.SetU64(math.Float64bits(v)) }

// SetBytes copies v into the buffer. v must fit.
func (e *Entry) SetBytes(v []byte) { copy(e.buf, v) }

// Map holds the named entries for one protocol instance. The host owns the
// map's lifetime; the codec only mutates entry contents and Loaded flags.
type Map struct {
	entries map[string]*Entry
}

// New returns an empty data map.
func New() *Map { return &Map{entries: make(map[string]*Entry)} }

// Link registers name with size bytes of zeroed storage and returns the
// entry. Linking an existing name replaces its storage.
func (m *Map) Link(name string, size int) *Entry {
	e := &Entry{buf: make([]byte, size)}
	m.entries[name] = e
	return e
}

// Get looks up the entry for name.
func (m *Map) Get(name string) (*Entry, bool) {
	e, ok := m.entries[name]
	return e, ok
}

// Len returns the number of linked entries.
func (m *Map) Len() int { return len(m.entries) }

// Each invokes fn for every entry. Iteration order is unspecified.
func (m *Map) Each(fn func(name string, e *Entry)) {
	for name, e := range m.entries {
		fn(name, e)
	}
}

// AllLoaded reports whether every linked entry has been loaded.
func (m *Map) AllLoaded() bool {
	for _, e := range m.entries {
		if !e.Loaded {
			return false
		}
	}
	return true
}

// ClearLoaded resets every entry's Loaded flag.
func (m *Map) ClearLoaded() {
	for _, e := range m.entries {
		e.Loaded = false
	}
}
