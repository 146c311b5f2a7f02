package klv

// Unit is one top-level KLV unit: the 16-byte universal key and the content
// region its BER length declared. Raw retains the full encoded unit (key,
// length field, content) so running checksums can cover the header bytes.
type Unit struct {
	Key     [UniversalKeySize]byte
	Content []byte
	Raw     []byte
}

// HeaderSize returns the number of bytes occupied by the key and length
// field, which is the offset of Content within Raw.
func (u *Unit) HeaderSize() int {
	return len(u.Raw) - len(u.Content)
}

// KeyIs reports whether the unit's universal key equals key.
func (u *Unit) KeyIs(key [UniversalKeySize]byte) bool {
	return u.Key == key
}

// ParseUnit decodes the global header of one KLV unit at the start of buf:
// the 16-byte universal key followed by a BER length, yielding exactly that
// many content bytes. The key is not interpreted beyond being captured;
// callers match it against their dictionary with KeyIs.
func ParseUnit(buf []byte) (*Unit, error) {
	if len(buf) < UniversalKeySize+1 {
		return nil, ErrShortBuffer
	}

	u := &Unit{}
	copy(u.Key[:], buf[:UniversalKeySize])

	length, n, err := DecodeLength(buf[UniversalKeySize:])
	if err != nil {
		return nil, err
	}
	start := UniversalKeySize + n
	if length > len(buf)-start {
		return nil, ErrMalformedLength
	}
	u.Content = buf[start : start+length]
	u.Raw = buf[:start+length]
	return u, nil
}

// EncodeUnit appends a KLV unit (key, BER length, content) to dst.
func EncodeUnit(dst []byte, key [UniversalKeySize]byte, content []byte) []byte {
	dst = append(dst, key[:]...)
	dst = AppendLength(dst, len(content))
	return append(dst, content...)
}

// EncodedUnitSize returns the byte size EncodeUnit would produce.
func EncodedUnitSize(content []byte) int {
	return UniversalKeySize + LengthSize(len(content)) + len(content)
}

// KeyFromSlice copies a 16-byte key out of a slice. It panics when the
// slice is not exactly UniversalKeySize bytes; keys are compile-time
// constants or validated configuration by the time they reach here.
func KeyFromSlice(b []byte) [UniversalKeySize]byte {
	if len(b) != UniversalKeySize {
		panic("klv: universal key must be 16 bytes")
	}
	var k [UniversalKeySize]byte
	copy(k[:], b)
	return k
}
