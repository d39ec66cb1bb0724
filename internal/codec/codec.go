// Package codec packs and unpacks typed field values into fixed-size frame
// payloads. Span extractions are big-endian on the wire: the byte at the
// low index is the most significant. That ordering is the wire contract
// shared with the firmware side and must not change.
package codec

import (
	"errors"
	"math"

	"github.com/Karlsx/go-canproto/internal/datamap"
)

// ErrSizeOverflow is returned when a decoded value does not fit the
// destination entry's storage.
var ErrSizeOverflow = errors.New("codec: value larger than destination")

// ErrSizeMismatch is returned on encode when the rule's byte span does not
// equal the value's native width.
var ErrSizeMismatch = errors.New("codec: span width does not match value size")

// ErrFloatWidth is returned for float fields on spans other than 2 or 4 bytes.
var ErrFloatWidth = errors.New("codec: span width cannot carry float")

// ErrDoubleWidth is returned for double fields on spans other than 2, 4 or 8 bytes.
var ErrDoubleWidth = errors.New("codec: span width cannot carry double")

// Mask returns a byte with bits low..high (inclusive) set.
func Mask(high, low uint8) byte {
	var m byte
	for b := low; b <= high && b < 8; b++ {
		m |= 1 << b
	}
	return m
}

// accumulate pulls the raw bits addressed by loc into a 64-bit value.
// Span form folds bytes MSB-first; bit form masks and shifts one byte.
func accumulate(raw []byte, loc Loc) uint64 {
	if loc.Kind == LocBit {
		return uint64(raw[loc.Byte]&Mask(loc.High, loc.Low)) >> loc.Low
	}
	var acc uint64
	for a := int(loc.Lo); a <= int(loc.Hi); a++ {
		acc = acc<<8 | uint64(raw[a])
	}
	return acc
}

// Unpack extracts the field from raw into dst and marks it loaded.
// Integer kinds narrower than the span keep only their low bytes, matching
// the accumulator reinterpretation the wire contract is defined by.
func Unpack(dst *datamap.Entry, raw []byte, f Field) error {
	if f.Type == U8Array {
		w := f.Loc.Width()
		if dst.Size() < w {
			return ErrSizeOverflow
		}
		dst.SetBytes(raw[f.Loc.Lo : int(f.Loc.Hi)+1])
		dst.Loaded = true
		return nil
	}
	if f.Type.Size() > dst.Size() {
		return ErrSizeOverflow
	}
	acc := accumulate(raw, f.Loc)
	switch f.Type {
	case Bool:
		dst.SetBool(uint8(acc) != 0)
	case U8:
		dst.SetU8(uint8(acc))
	case U16:
		dst.SetU16(uint16(acc))
	case U32:
		dst.SetU32(uint32(acc))
	case U64:
		dst.SetU64(acc)
	case I8:
		dst.SetI8(int8(acc))
	case I16:
		dst.SetI16(int16(acc))
	case I32:
		dst.SetI32(int32(acc))
	case I64:
		dst.SetI64(int64(acc))
	case F32:
		v, err := floatFrom(acc, f.Loc)
		if err != nil {
			return err
		}
		dst.SetF32(v * float32(f.Zoom))
	case F64:
		v, err := doubleFrom(acc, f.Loc)
		if err != nil {
			return err
		}
		dst.SetF64(v * f.Zoom)
	}
	dst.Loaded = true
	return nil
}

// floatFrom interprets a span accumulator as float32: 2-byte spans carry a
// scaled signed integer, 4-byte spans the IEEE bits directly.
func floatFrom(acc uint64, loc Loc) (float32, error) {
	if loc.Kind != LocSpan {
		return 0, ErrFloatWidth
	}
	switch loc.Width() {
	case 2:
		return float32(int16(acc)), nil
	case 4:
		return math.Float32frombits(uint32(acc)), nil
	default:
		return 0, ErrFloatWidth
	}
}

// doubleFrom is floatFrom's float64 dual; 8-byte spans are IEEE doubles.
func doubleFrom(acc uint64, loc Loc) (float64, error) {
	if loc.Kind != LocSpan {
		return 0, ErrDoubleWidth
	}
	switch loc.Width() {
	case 2:
		return float64(int16(acc)), nil
	case 4:
		return float64(int32(acc)), nil
	case 8:
		return math.Float64frombits(acc), nil
	default:
		return 0, ErrDoubleWidth
	}
}

// Pack writes the field value from src into raw. Bit-form packing ORs into
// the target byte; the caller zeroes the payload before packing a frame so
// the accumulation is well defined. Span-form packing writes MSB-first.
func Pack(raw []byte, src *datamap.Entry, f Field) error {
	if src.Size() == 0 {
		return ErrSizeOverflow
	}
	if f.Loc.Kind == LocBit {
		switch f.Type {
		case F32:
			return ErrFloatWidth
		case F64:
			return ErrDoubleWidth
		}
		raw[f.Loc.Byte] |= (src.Bytes()[0] << f.Loc.Low) & Mask(f.Loc.High, f.Loc.Low)
		return nil
	}
	w := f.Loc.Width()
	if f.Type == U8Array {
		if src.Size() != w {
			return ErrSizeMismatch
		}
		copy(raw[f.Loc.Lo:int(f.Loc.Hi)+1], src.Bytes())
		return nil
	}
	if f.Type.Size() > src.Size() {
		return ErrSizeOverflow
	}
	bits, err := packBits(src, f, w)
	if err != nil {
		return err
	}
	for a := 0; a < w; a++ {
		raw[int(f.Loc.Lo)+a] = byte(bits >> ((w - 1 - a) * 8))
	}
	return nil
}

// packBits produces the big-endian bit image of the entry value for a span
// of w bytes. Floats on narrow spans divide by zoom and truncate into the
// scaled signed integer form.
func packBits(src *datamap.Entry, f Field, w int) (uint64, error) {
	switch f.Type {
	case F64:
		v := src.F64() / f.Zoom
		switch w {
		case 2:
			return uint64(uint16(int16(v))), nil
		case 4:
			return uint64(uint32(int32(v))), nil
		case 8:
			return math.Float64bits(v), nil
		default:
			return 0, ErrDoubleWidth
		}
	case F32:
		v := src.F32() / float32(f.Zoom)
		switch w {
		case 2:
			return uint64(uint16(int16(v))), nil
		case 4:
			return uint64(math.Float32bits(v)), nil
		default:
			return 0, ErrFloatWidth
		}
	}
	if w != f.Type.Size() {
		return 0, ErrSizeMismatch
	}
	switch f.Type {
	case Bool:
		if src.Bool() {
			return 1, nil
		}
		return 0, nil
	case U8:
		return uint64(src.U8()), nil
	case U16:
		return uint64(src.U16()), nil
	case U32:
		return uint64(src.U32()), nil
	case U64:
		return src.U64(), nil
	case I8:
		return uint64(uint8(src.I8())), nil
	case I16:
		return uint64(uint16(src.I16())), nil
	case I32:
		return uint64(uint32(src.I32())), nil
	case I64:
		return uint64(src.I64()), nil
	}
	return 0, ErrSizeMismatch
}
