package uasdls

// Checksum computes the ST 0601 running 16-bit checksum: a byte-wise sum
// where even-indexed bytes (0-based) land in the high octet and odd-indexed
// bytes in the low octet. Coverage runs from the first byte of the
// universal key through the checksum item's length byte.
func Checksum(buf []byte) uint16 {
	var bcc uint16
	for i, b := range buf {
		bcc += uint16(b) << (8 * uint((i+1)%2))
	}
	return bcc
}
