// Package klv decodes Key-Length-Value encoded metadata as carried in the
// private elementary streams of aerial video recorders: a 16-byte universal
// key and a BER-encoded length wrapping a local set of 1-byte-tagged items.
// Encoding counterparts are provided for the same layouts.
package klv

import "errors"

// UniversalKeySize is the length of the fixed key identifying the local-set
// dictionary in use.
const UniversalKeySize = 16

// Structural decode faults. All of them are scoped to the unit or item that
// raised them; callers continue with the next unit.
var (
	// ErrShortBuffer is returned when a buffer cannot hold even the fixed
	// key and a length octet.
	ErrShortBuffer = errors.New("klv: buffer too short")

	// ErrKeyMismatch is returned when a unit's universal key is not the
	// expected dictionary key.
	ErrKeyMismatch = errors.New("klv: universal key mismatch")

	// ErrMalformedLength is returned for a long-form BER length with zero
	// or more than eight length bytes, or one that exceeds the remaining
	// buffer.
	ErrMalformedLength = errors.New("klv: malformed BER length")

	// ErrTruncatedItem is returned when a local-set tag or length header
	// would read past the end of the content region.
	ErrTruncatedItem = errors.New("klv: truncated item header")

	// ErrOverrunItem is returned when a declared item length extends past
	// the end of the content region.
	ErrOverrunItem = errors.New("klv: item value overruns content")
)
