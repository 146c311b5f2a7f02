package pipeline

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/telemux/klv"
	"github.com/zsiec/telemux/uasdls"
)

// Transport stream builders. These fabricate just enough of a valid mux
// (PAT, PMT, PES) to drive the extractor end to end.

func mpegCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func tsPacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | cc&0x0F
	copy(pkt[4:], payload)
	for i := 4 + len(payload); i < 188; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

func patSection(pmtPID uint16) []byte {
	data := []byte{
		0x00,       // table_id
		0xB0, 0x0D, // section_syntax + section_length 13
		0x00, 0x01, // transport_stream_id
		0xC1,       // version 0, current
		0x00, 0x00, // section/last_section number
		0x00, 0x01, // program_number 1
		0xE0 | byte(pmtPID>>8)&0x1F, byte(pmtPID),
	}
	crc := mpegCRC32(data)
	return append(data, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func pmtSection(metadataPID uint16, streamType uint8) []byte {
	data := []byte{
		0x02,       // table_id
		0xB0, 0x12, // section_syntax + section_length 18
		0x00, 0x01, // program_number 1
		0xC1,       // version 0, current
		0x00, 0x00, // section/last_section number
		0xE0 | byte(metadataPID>>8)&0x1F, byte(metadataPID), // PCR PID
		0xF0, 0x00, // program_info_length 0
		streamType,
		0xE0 | byte(metadataPID>>8)&0x1F, byte(metadataPID),
		0xF0, 0x00, // ES_info_length 0
	}
	crc := mpegCRC32(data)
	return append(data, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func psiPacket(pid uint16, cc uint8, section []byte) []byte {
	return tsPacket(pid, cc, true, append([]byte{0x00}, section...))
}

// pesWrap wraps a KLV unit in a private_stream_1 PES packet with a PTS.
func pesWrap(unit []byte, pts int64) []byte {
	packetLength := 3 + 5 + len(unit)
	buf := []byte{
		0x00, 0x00, 0x01, 0xBD,
		byte(packetLength >> 8), byte(packetLength),
		0x80, 0x80, // flags: PTS present
		0x05, // header data length
		0x21 | byte(pts>>29)&0x0E,
		byte(pts >> 22),
		byte(pts>>14)&0xFE | 0x01,
		byte(pts >> 7),
		byte(pts<<1)&0xFE | 0x01,
	}
	return append(buf, unit...)
}

func sampleUnit(t *testing.T) []byte {
	t.Helper()
	return uasdls.Encode([]uasdls.TagValue{
		{Tag: uasdls.TagSensorLatitude, Value: uasdls.IntValue(1, 4)},
	}, false)
}

func collect(t *testing.T, e *Extractor) []*Result {
	t.Helper()
	var results []*Result
	for {
		res, err := e.Next()
		if err == io.EOF {
			return results
		}
		require.NoError(t, err)
		results = append(results, res)
	}
}

func TestExtractor_EndToEnd(t *testing.T) {
	t.Parallel()

	var stream []byte
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)
	stream = append(stream, tsPacket(0x102, 0, true, pesWrap(sampleUnit(t), 90000))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	results := collect(t, e)

	require.Len(t, results, 1)
	res := results[0]
	require.NotNil(t, res.Record)
	require.Empty(t, res.Skip)
	require.Equal(t, uint16(0x102), res.PID)
	require.NotNil(t, res.PTS)
	require.Equal(t, int64(90000), res.PTS.Base)

	require.False(t, res.Record.DictionaryMismatch)
	require.False(t, res.Record.ChecksumMismatch)
	require.Empty(t, res.Record.Residual)
	require.Equal(t, int64(1), res.Record.Fields[uasdls.TagSensorLatitude].Int())

	pid, ok := e.MetadataPID()
	require.True(t, ok)
	require.Equal(t, uint16(0x102), pid)

	stats := e.Stats()
	require.Equal(t, int64(1), stats.Records)
	require.Zero(t, stats.Skips)
}

func TestExtractor_MetadataInPESStreamType(t *testing.T) {
	t.Parallel()

	var stream []byte
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypeMetadataInPES))...)
	stream = append(stream, tsPacket(0x102, 0, true, pesWrap(sampleUnit(t), 0))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	results := collect(t, e)

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Record)
}

func TestExtractor_PendingUnitsReplayed(t *testing.T) {
	t.Parallel()

	// Metadata units arrive before the tables describing them. They must
	// be buffered and replayed in stream order once the PID resolves.
	unitA := uasdls.Encode([]uasdls.TagValue{
		{Tag: uasdls.TagPlatformGroundSpeed, Value: uasdls.UintValue(10, 1)},
	}, false)
	unitB := uasdls.Encode([]uasdls.TagValue{
		{Tag: uasdls.TagPlatformGroundSpeed, Value: uasdls.UintValue(20, 1)},
	}, false)

	var stream []byte
	stream = append(stream, tsPacket(0x102, 0, true, pesWrap(unitA, 0))...)
	stream = append(stream, tsPacket(0x102, 1, true, pesWrap(unitB, 0))...)
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	results := collect(t, e)

	require.Len(t, results, 2)
	require.Equal(t, uint64(10), results[0].Record.Fields[uasdls.TagPlatformGroundSpeed].Uint())
	require.Equal(t, uint64(20), results[1].Record.Fields[uasdls.TagPlatformGroundSpeed].Uint())
}

func TestExtractor_PIDOverride(t *testing.T) {
	t.Parallel()

	// No tables at all: the profile names the PID directly.
	var stream []byte
	stream = append(stream, tsPacket(0x102, 0, true, pesWrap(sampleUnit(t), 0))...)

	profile := DefaultProfile()
	profile.PIDOverride = 0x102

	e := NewExtractor(context.Background(), bytes.NewReader(stream), profile, nil)
	results := collect(t, e)

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Record)
}

func TestExtractor_PIDOverrideRawPayload(t *testing.T) {
	t.Parallel()

	// Damaged-tables scenario the override exists for: no PAT/PMT and the
	// KLV unit sits directly in the elementary payload, no PES header.
	var stream []byte
	stream = append(stream, tsPacket(0x102, 0, true, sampleUnit(t))...)

	profile := DefaultProfile()
	profile.PIDOverride = 0x102

	e := NewExtractor(context.Background(), bytes.NewReader(stream), profile, nil)
	results := collect(t, e)

	require.Len(t, results, 1)
	res := results[0]
	require.NotNil(t, res.Record)
	require.Nil(t, res.PTS)
	require.Equal(t, int64(1), res.Record.Fields[uasdls.TagSensorLatitude].Int())
}

func TestExtractor_IgnoresOtherPIDs(t *testing.T) {
	t.Parallel()

	var stream []byte
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)
	// A PES unit on an unrelated PID must not surface.
	stream = append(stream, tsPacket(0x300, 0, true, pesWrap(sampleUnit(t), 0))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	require.Empty(t, collect(t, e))
}

func TestExtractor_SkipReasons(t *testing.T) {
	t.Parallel()

	otherKey := uasdls.UniversalKey
	otherKey[7] = 0x03

	overrunContent := []byte{13, 0x10, 0x01} // declares 16 value bytes
	truncatedContent := []byte{65, 1, 1, 7}  // trailing lone tag

	malformedUnit := append(append([]byte{}, uasdls.UniversalKey[:]...), 0x89, 0x01)

	tests := []struct {
		name string
		unit []byte
		skip SkipReason
	}{
		{"dictionary_mismatch", klv.EncodeUnit(nil, otherKey, []byte{65, 1, 1}), SkipDictionaryMismatch},
		{"overrun_item", klv.EncodeUnit(nil, uasdls.UniversalKey, overrunContent), SkipOverrunItem},
		{"truncated_item", klv.EncodeUnit(nil, uasdls.UniversalKey, truncatedContent), SkipTruncatedItem},
		{"malformed_length", malformedUnit, SkipMalformedLength},
		{"short_unit", []byte{0x06, 0x0E, 0x2B}, SkipShortUnit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stream []byte
			stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
			stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)
			stream = append(stream, tsPacket(0x102, 0, true, pesWrap(tc.unit, 0))...)

			e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
			results := collect(t, e)

			require.Len(t, results, 1)
			res := results[0]
			require.Nil(t, res.Record)
			require.Equal(t, tc.skip, res.Skip)
			require.Error(t, res.Err)

			require.Equal(t, int64(1), e.Stats().Skips)
		})
	}
}

func TestExtractor_SkipThenRecover(t *testing.T) {
	t.Parallel()

	// A faulty unit is skipped; the next unit on the same PID decodes.
	var stream []byte
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)
	stream = append(stream, tsPacket(0x102, 0, true, pesWrap([]byte{0x06, 0x0E}, 0))...)
	stream = append(stream, tsPacket(0x102, 1, true, pesWrap(sampleUnit(t), 0))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	results := collect(t, e)

	require.Len(t, results, 2)
	require.Equal(t, SkipShortUnit, results[0].Skip)
	require.NotNil(t, results[1].Record)

	stats := e.Stats()
	require.Equal(t, int64(1), stats.Records)
	require.Equal(t, int64(1), stats.Skips)
}

func TestExtractor_EmptyStream(t *testing.T) {
	t.Parallel()
	e := NewExtractor(context.Background(), bytes.NewReader(nil), DefaultProfile(), nil)
	_, err := e.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestExtractor_DemuxStats(t *testing.T) {
	t.Parallel()

	var stream []byte
	stream = append(stream, psiPacket(0, 0, patSection(0x1000))...)
	stream = append(stream, []byte{0x01, 0x02, 0x03}...) // framing garbage
	stream = append(stream, psiPacket(0x1000, 0, pmtSection(0x102, StreamTypePESPrivateData))...)

	e := NewExtractor(context.Background(), bytes.NewReader(stream), DefaultProfile(), nil)
	collect(t, e)

	ds := e.DemuxStats()
	require.Equal(t, int64(1), ds.FramingErrors)
	require.Equal(t, int64(3), ds.BytesSkipped)
	require.Equal(t, int64(2), ds.PacketsRead)
}
