package uasdls

import "github.com/zsiec/telemux/klv"

// Record is a best-effort decoded telemetry record: typed values for the
// tags the dictionary recognizes, raw bytes for the rest, and advisory
// flags that never block the record itself.
type Record struct {
	// Key is the originating unit's universal key.
	Key [klv.UniversalKeySize]byte

	// Fields maps recognized tags to their decoded values. When a tag
	// repeats within one local set, the last occurrence wins.
	Fields map[Tag]Value

	// Residual holds values for unrecognized tags and for recognized tags
	// whose byte width did not match the dictionary definition.
	Residual map[uint8][]byte

	// ChecksumMismatch is set when a checksum item was present and did
	// not match the running sum over the preceding unit bytes.
	ChecksumMismatch bool

	// DictionaryMismatch is set when the unit's universal key differed
	// from the expected dictionary key. Fields are still decoded on the
	// chance the content is compatible.
	DictionaryMismatch bool
}

// DecodeUnit decodes one KLV unit's local set against the dictionary,
// verifying the unit key against expected. Structural local-set faults
// (klv.ErrTruncatedItem, klv.ErrOverrunItem, klv.ErrMalformedLength) abort
// the unit; unknown tags and width mismatches do not.
func DecodeUnit(u *klv.Unit, expected [klv.UniversalKeySize]byte) (*Record, error) {
	items, err := klv.DecodeLocalSet(u.Content)
	if err != nil {
		return nil, err
	}

	r := &Record{
		Key:                u.Key,
		Fields:             make(map[Tag]Value, len(items)),
		Residual:           make(map[uint8][]byte),
		DictionaryMismatch: !u.KeyIs(expected),
	}

	for _, it := range items {
		tag := Tag(it.Tag)
		def, known := fields[tag]
		if !known {
			r.Residual[it.Tag] = it.Value
			continue
		}
		v, ok := decodeValue(def, it.Value)
		if !ok {
			r.Residual[it.Tag] = it.Value
			continue
		}
		r.Fields[tag] = v

		if tag == TagChecksum {
			covered := u.Raw[:u.HeaderSize()+it.ValueStart()]
			if Checksum(covered) != uint16(v.Uint()) {
				r.ChecksumMismatch = true
			}
		}
	}

	return r, nil
}

// Decode parses buf as a complete KLV unit (key, BER length, local set)
// and decodes it against the standard UAS Datalink key.
func Decode(buf []byte) (*Record, error) {
	u, err := klv.ParseUnit(buf)
	if err != nil {
		return nil, err
	}
	return DecodeUnit(u, UniversalKey)
}

// Encode builds a complete KLV unit from (tag, value) pairs in order,
// appending a trailing checksum item when withChecksum is set. It is the
// inverse of Decode for well-formed records and exists chiefly so capture
// tooling and tests can fabricate wire-exact units.
func Encode(pairs []TagValue, withChecksum bool) []byte {
	var content []byte
	for _, p := range pairs {
		content = klv.EncodeItem(content, uint8(p.Tag), AppendValue(nil, p.Value))
	}
	if withChecksum {
		// Reserve the checksum item; its value is patched after the full
		// unit prefix is known.
		content = klv.EncodeItem(content, uint8(TagChecksum), []byte{0, 0})
	}

	buf := klv.EncodeUnit(nil, UniversalKey, content)
	if withChecksum {
		sum := Checksum(buf[:len(buf)-2])
		buf[len(buf)-2] = byte(sum >> 8)
		buf[len(buf)-1] = byte(sum)
	}
	return buf
}

// TagValue pairs a tag with a value for encoding.
type TagValue struct {
	Tag   Tag
	Value Value
}
