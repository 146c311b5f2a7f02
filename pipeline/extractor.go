// Package pipeline wires the MPEG-TS demuxer to the KLV decoder: it
// resolves the metadata PID from PAT/PMT, reassembles that stream's PES
// units, and decodes each unit into a telemetry record. Faulty units
// become skip results with a reason; the session only ends at end of
// input.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/telemux/klv"
	"github.com/zsiec/telemux/mpegts"
	"github.com/zsiec/telemux/uasdls"
)

// maxPendingUnits bounds how many PES units arriving before table
// completion are buffered for replay once the metadata PID is known.
const maxPendingUnits = 64

// SkipReason classifies why a unit produced no record.
type SkipReason string

const (
	// SkipDictionaryMismatch marks a unit whose universal key was not the
	// profile's; a multiplexed stream can interleave unrelated private data.
	SkipDictionaryMismatch SkipReason = "dictionary_mismatch"

	// SkipMalformedLength marks a unit with an undecodable BER length.
	SkipMalformedLength SkipReason = "malformed_length"

	// SkipTruncatedItem marks a local set cut off inside an item header.
	SkipTruncatedItem SkipReason = "truncated_item"

	// SkipOverrunItem marks an item whose declared length ran past the
	// end of its local set.
	SkipOverrunItem SkipReason = "overrun_item"

	// SkipShortUnit marks a payload too short to hold a KLV unit at all.
	SkipShortUnit SkipReason = "short_unit"
)

// Result is one element of the output stream: a decoded record, or a
// skip marker naming why the unit was dropped. Records are emitted in the
// order their source KLV units appeared in the transport stream.
type Result struct {
	Record *uasdls.Record // nil when the unit was skipped
	Skip   SkipReason     // empty when Record is set
	Err    error          // decode error backing a skip, when any

	PID uint16
	PTS *mpegts.ClockReference // from the PES header, when present
}

// Stats counts the extractor's unit-level outcomes. Transport-level fault
// counters live in the demuxer's own Stats.
type Stats struct {
	Records      int64
	Skips        int64
	PendingDrops int64
}

// Extractor pulls telemetry records out of one MPEG-TS byte source. It is
// single-threaded and owns no goroutines; run independent Extractors for
// independent sources.
type Extractor struct {
	log     *slog.Logger
	dmx     *mpegts.Demuxer
	profile Profile

	metadataPID uint16
	pidResolved bool
	pending     []*mpegts.DemuxerData
	queue       []*Result
	stats       Stats
}

// NewExtractor creates an Extractor reading transport stream bytes from r.
// If log is nil, slog.Default() is used.
func NewExtractor(ctx context.Context, r io.Reader, profile Profile, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "extractor")
	e := &Extractor{
		log:     log,
		profile: profile,
	}
	opts := []func(*mpegts.Demuxer){mpegts.DemuxerOptLogger(log)}
	if profile.PIDOverride != 0 {
		// The override must reach the demuxer too: without tables it has
		// no other way to know raw payloads on this PID are wanted.
		opts = append(opts, mpegts.DemuxerOptForcePID(profile.PIDOverride))
		e.metadataPID = profile.PIDOverride
		e.pidResolved = true
	}
	e.dmx = mpegts.NewDemuxer(ctx, r, opts...)
	return e
}

// Stats returns a snapshot of the unit-level counters.
func (e *Extractor) Stats() Stats {
	return e.stats
}

// DemuxStats returns the transport-level fault counters for the session.
func (e *Extractor) DemuxStats() mpegts.Stats {
	return e.dmx.Stats()
}

// MetadataPID returns the PID records are being read from, once resolved.
func (e *Extractor) MetadataPID() (uint16, bool) {
	return e.metadataPID, e.pidResolved
}

// Next returns the next Result from the stream, or io.EOF once the source
// is exhausted. Transport faults never surface here; they are recovered by
// the demuxer and visible in DemuxStats.
func (e *Extractor) Next() (*Result, error) {
	for {
		if len(e.queue) > 0 {
			res := e.queue[0]
			e.queue = e.queue[1:]
			e.count(res)
			return res, nil
		}

		data, err := e.dmx.NextData()
		if err != nil {
			// Units buffered before table completion are unresolvable if
			// the stream ended without a PMT naming a metadata stream.
			if errors.Is(err, io.EOF) && len(e.pending) > 0 {
				e.log.Warn("stream ended before metadata PID resolved, buffered units dropped",
					"units", len(e.pending))
				e.pending = nil
			}
			return nil, err
		}

		switch {
		case data.PAT != nil:
			e.log.Debug("program association table", "version", data.PAT.Version, "programs", len(data.PAT.Programs))

		case data.PMT != nil:
			e.log.Debug("program map table",
				"program", data.PMT.ProgramNumber,
				"version", data.PMT.Version,
				"streams", len(data.PMT.ElementaryStreams))
			e.resolvePID()

		case data.PES != nil:
			pid := data.FirstPacket.Header.PID
			if !e.pidResolved {
				e.bufferPending(data)
				continue
			}
			if pid != e.metadataPID {
				continue
			}
			res := e.decodeUnit(data)
			e.count(res)
			return res, nil
		}
	}
}

// resolvePID selects the metadata PID once tables allow it, then replays
// any units that arrived beforehand, preserving stream order.
func (e *Extractor) resolvePID() {
	if e.profile.PIDOverride != 0 {
		return
	}
	pid, ok := e.dmx.MetadataPID(e.profile.StreamTypes...)
	if !ok {
		return
	}
	if e.pidResolved && pid == e.metadataPID {
		return
	}
	e.metadataPID = pid
	e.pidResolved = true
	e.log.Info("metadata stream resolved", "pid", pid)

	pending := e.pending
	e.pending = nil
	for _, data := range pending {
		if data.FirstPacket.Header.PID != pid {
			continue
		}
		e.queue = append(e.queue, e.decodeUnit(data))
	}
}

func (e *Extractor) bufferPending(data *mpegts.DemuxerData) {
	if len(e.pending) >= maxPendingUnits {
		// Keep the most recent units; old ones are least likely to matter
		// by the time tables complete.
		copy(e.pending, e.pending[1:])
		e.pending[len(e.pending)-1] = data
		e.stats.PendingDrops++
		return
	}
	e.pending = append(e.pending, data)
}

func (e *Extractor) decodeUnit(data *mpegts.DemuxerData) *Result {
	res := &Result{PID: data.FirstPacket.Header.PID}
	if data.PES.Header != nil && data.PES.Header.OptionalHeader != nil {
		res.PTS = data.PES.Header.OptionalHeader.PTS
	}

	unit, err := klv.ParseUnit(data.PES.Data)
	if err != nil {
		res.Skip, res.Err = skipReason(err), err
		return res
	}
	if !unit.KeyIs(e.profile.UniversalKey) {
		res.Skip = SkipDictionaryMismatch
		res.Err = klv.ErrKeyMismatch
		return res
	}

	record, err := uasdls.DecodeUnit(unit, e.profile.UniversalKey)
	if err != nil {
		res.Skip, res.Err = skipReason(err), err
		return res
	}
	res.Record = record
	return res
}

func (e *Extractor) count(res *Result) {
	if res.Record != nil {
		e.stats.Records++
		return
	}
	e.stats.Skips++
	e.log.Debug("unit skipped", "pid", res.PID, "reason", res.Skip, "error", res.Err)
}

func skipReason(err error) SkipReason {
	switch {
	case errors.Is(err, klv.ErrMalformedLength):
		return SkipMalformedLength
	case errors.Is(err, klv.ErrTruncatedItem):
		return SkipTruncatedItem
	case errors.Is(err, klv.ErrOverrunItem):
		return SkipOverrunItem
	case errors.Is(err, klv.ErrKeyMismatch):
		return SkipDictionaryMismatch
	default:
		return SkipShortUnit
	}
}
