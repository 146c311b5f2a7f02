package uasdls

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Kind is the semantic type a tag's value decodes to.
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindString
	KindTimestamp
)

// Value is a decoded field value. The active representation follows Kind;
// the raw wire bytes are always retained.
type Value struct {
	Kind Kind
	Raw  []byte

	u uint64
	i int64
	s string
	t time.Time
}

// Uint returns the value as an unsigned integer (KindUint).
func (v Value) Uint() uint64 { return v.u }

// Int returns the value as a signed integer (KindInt).
func (v Value) Int() int64 { return v.i }

// Str returns the value as a string (KindString).
func (v Value) Str() string { return v.s }

// Time returns the value as a timestamp (KindTimestamp).
func (v Value) Time() time.Time { return v.t }

func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindString:
		return v.s
	case KindTimestamp:
		return v.t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%x", v.Raw)
}

// decodeValue decodes raw per the field definition. ok is false when the
// byte width does not match the tag's defined encoding, in which case the
// field belongs in the residual bucket.
func decodeValue(def fieldDef, raw []byte) (Value, bool) {
	v := Value{Kind: def.kind, Raw: raw}

	switch def.kind {
	case KindString:
		v.s = string(raw)
		return v, true

	case KindTimestamp:
		if len(raw) != def.width {
			return v, false
		}
		// Microseconds since the Unix epoch, big-endian.
		micros := binary.BigEndian.Uint64(raw)
		v.t = time.UnixMicro(int64(micros)).UTC()
		return v, true

	case KindUint:
		if len(raw) != def.width {
			return v, false
		}
		for _, b := range raw {
			v.u = v.u<<8 | uint64(b)
		}
		return v, true

	case KindInt:
		if len(raw) != def.width {
			return v, false
		}
		switch def.width {
		case 1:
			v.i = int64(int8(raw[0]))
		case 2:
			v.i = int64(int16(binary.BigEndian.Uint16(raw)))
		case 4:
			v.i = int64(int32(binary.BigEndian.Uint32(raw)))
		case 8:
			v.i = int64(binary.BigEndian.Uint64(raw))
		default:
			return v, false
		}
		return v, true
	}

	return v, false
}

// Scaled converts the raw integer to engineering units using the tag's
// documented linear mapping (degrees, meters, meters/second). For tags
// without a mapping, and for strings and timestamps, ok is false.
func (v Value) Scaled(tag Tag) (float64, bool) {
	def, known := fields[tag]
	if !known || def.scale == 0 {
		return 0, false
	}
	switch v.Kind {
	case KindUint:
		return float64(v.u)*def.scale + def.offset, true
	case KindInt:
		return float64(v.i)*def.scale + def.offset, true
	}
	return 0, false
}

// AppendValue encodes a decoded value back to its wire form, appending to
// dst. It is the inverse of decodeValue for fixed-width kinds.
func AppendValue(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindString:
		return append(dst, v.s...)
	case KindTimestamp:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.t.UnixMicro()))
		return append(dst, buf[:]...)
	case KindUint, KindInt:
		return append(dst, v.Raw...)
	}
	return dst
}

// UintValue builds a KindUint Value of the given byte width for encoding.
func UintValue(x uint64, width int) Value {
	raw := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		raw[i] = byte(x)
		x >>= 8
	}
	var u uint64
	for _, b := range raw {
		u = u<<8 | uint64(b)
	}
	return Value{Kind: KindUint, Raw: raw, u: u}
}

// IntValue builds a KindInt Value of the given byte width for encoding.
func IntValue(x int64, width int) Value {
	raw := make([]byte, width)
	ux := uint64(x)
	for i := width - 1; i >= 0; i-- {
		raw[i] = byte(ux)
		ux >>= 8
	}
	return Value{Kind: KindInt, Raw: raw, i: x}
}

// StringValue builds a KindString Value for encoding.
func StringValue(s string) Value {
	return Value{Kind: KindString, Raw: []byte(s), s: s}
}

// TimestampValue builds a KindTimestamp Value for encoding.
func TimestampValue(t time.Time) Value {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(t.UnixMicro()))
	return Value{Kind: KindTimestamp, Raw: raw[:], t: t.UTC()}
}
