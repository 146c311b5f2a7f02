package klv

// maxLengthOctets bounds long-form BER lengths. Eight big-endian bytes cover
// any length a 64-bit cursor can address; more is malformed.
const maxLengthOctets = 8

// DecodeLength decodes a BER length at the start of buf. It returns the
// length value and the number of bytes the length field occupied.
//
// A first byte with the high bit clear is the short form and is the length
// itself (0-127). Otherwise the low seven bits give the count of following
// big-endian length bytes. The indefinite form (0x80 alone) is not used by
// KLV and decodes as ErrMalformedLength.
func DecodeLength(buf []byte) (length int, n int, err error) {
	if len(buf) == 0 {
		return 0, 0, ErrShortBuffer
	}
	first := buf[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}

	octets := int(first & 0x7F)
	if octets == 0 || octets > maxLengthOctets {
		return 0, 0, ErrMalformedLength
	}
	if len(buf) < 1+octets {
		return 0, 0, ErrMalformedLength
	}

	var v uint64
	for _, b := range buf[1 : 1+octets] {
		v = v<<8 | uint64(b)
	}
	if v > uint64(int(^uint(0)>>1)) {
		return 0, 0, ErrMalformedLength
	}
	return int(v), 1 + octets, nil
}

// AppendLength appends the shortest BER encoding of length to dst.
func AppendLength(dst []byte, length int) []byte {
	if length < 0 {
		panic("klv: negative length")
	}
	if length <= 0x7F {
		return append(dst, byte(length))
	}

	n := 0
	for v := uint64(length); v > 0; v >>= 8 {
		n++
	}
	var tmp [maxLengthOctets]byte
	v := uint64(length)
	for i := n - 1; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	dst = append(dst, 0x80|byte(n))
	return append(dst, tmp[:n]...)
}

// LengthSize returns the encoded size in bytes of a BER length field.
func LengthSize(length int) int {
	if length <= 0x7F {
		return 1
	}
	n := 1
	for v := uint64(length); v > 0; v >>= 8 {
		n++
	}
	return n
}
