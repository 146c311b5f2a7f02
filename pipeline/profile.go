package pipeline

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/telemux/klv"
	"github.com/zsiec/telemux/uasdls"
)

// Stream type values under which KLV metadata is commonly multiplexed.
const (
	// StreamTypePESPrivateData is H.222.0 "PES packets containing private
	// data" (0x06), the stream type used by the recorders this extractor
	// was written against.
	StreamTypePESPrivateData uint8 = 0x06

	// StreamTypeMetadataInPES is "metadata carried in PES packets" (0x15).
	StreamTypeMetadataInPES uint8 = 0x15
)

// Profile selects which stream and dictionary a session extracts. The
// exact stream type and universal key vary by recording profile, so they
// are configuration rather than hard-coded constants.
type Profile struct {
	// UniversalKey is the dictionary key expected on each KLV unit.
	UniversalKey [klv.UniversalKeySize]byte

	// StreamTypes are the PMT stream_type values that identify the
	// metadata elementary stream.
	StreamTypes []uint8

	// PIDOverride, when nonzero, bypasses PAT/PMT resolution and reads
	// KLV from this PID directly (useful for streams with damaged or
	// absent tables).
	PIDOverride uint16
}

// DefaultProfile matches the MISB ST 0601.8 UAS Datalink Local Set as the
// recorders under test produce it.
func DefaultProfile() Profile {
	return Profile{
		UniversalKey: uasdls.UniversalKey,
		StreamTypes:  []uint8{StreamTypePESPrivateData, StreamTypeMetadataInPES},
	}
}

// profileFile is the YAML form of a Profile. The universal key is a
// 32-digit hex string; stream types are plain integers.
type profileFile struct {
	UniversalKey string `yaml:"universal_key"`
	StreamTypes  []int  `yaml:"stream_types"`
	PID          int    `yaml:"pid"`
}

// LoadProfile reads a profile from a YAML file. Absent fields keep their
// DefaultProfile values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("pipeline: read profile: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return p, fmt.Errorf("pipeline: parse profile: %w", err)
	}

	if pf.UniversalKey != "" {
		key, err := hex.DecodeString(pf.UniversalKey)
		if err != nil {
			return p, fmt.Errorf("pipeline: universal_key: %w", err)
		}
		if len(key) != klv.UniversalKeySize {
			return p, fmt.Errorf("pipeline: universal_key must be %d bytes, got %d", klv.UniversalKeySize, len(key))
		}
		p.UniversalKey = klv.KeyFromSlice(key)
	}

	if len(pf.StreamTypes) > 0 {
		p.StreamTypes = p.StreamTypes[:0]
		for _, st := range pf.StreamTypes {
			if st < 0 || st > 0xFF {
				return p, fmt.Errorf("pipeline: stream type %d out of range", st)
			}
			p.StreamTypes = append(p.StreamTypes, uint8(st))
		}
	}

	if pf.PID != 0 {
		if pf.PID < 0 || pf.PID > 0x1FFF {
			return p, fmt.Errorf("pipeline: pid %d out of range", pf.PID)
		}
		p.PIDOverride = uint16(pf.PID)
	}

	return p, nil
}
