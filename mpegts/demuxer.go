package mpegts

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
)

// defaultResyncWindow bounds how far ahead a single resynchronization scan
// looks for a plausible sync byte before discarding the window wholesale.
const defaultResyncWindow = 32 * PacketSize

// Demuxer reads MPEG-TS packets from a reader and produces DemuxerData
// containing parsed PAT, PMT, and PES payloads. Transport-level faults
// (sync loss, continuity gaps, corrupt sections) are recovered in place
// and counted in Stats; only end-of-input terminates the stream.
type Demuxer struct {
	ctx          context.Context
	log          *slog.Logger
	br           *bufio.Reader
	pool         *packetPool
	table        *programTable
	dataBuffer   []*DemuxerData
	stats        Stats
	resyncWindow int
	eof          bool
	eofData      []*DemuxerData
}

// NewDemuxer creates a new MPEG-TS demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	table := newProgramTable()
	d := &Demuxer{
		ctx:          ctx,
		table:        table,
		resyncWindow: defaultResyncWindow,
	}
	d.pool = newPacketPool(table, func(pid uint16) {
		d.stats.ContinuityGaps++
		if d.log != nil {
			d.log.Debug("continuity gap, unit discarded", "pid", pid)
		}
	})
	for _, opt := range opts {
		opt(d)
	}
	d.br = bufio.NewReaderSize(r, d.resyncWindow+PacketSize)
	return d
}

// DemuxerOptLogger sets a logger for recovered-fault diagnostics.
func DemuxerOptLogger(log *slog.Logger) func(*Demuxer) {
	return func(d *Demuxer) {
		d.log = log
	}
}

// DemuxerOptForcePID marks a PID as a tracked elementary stream without
// waiting for a PMT to declare it, so its payloads are emitted even when
// the stream's tables are damaged or absent.
func DemuxerOptForcePID(pid uint16) func(*Demuxer) {
	return func(d *Demuxer) {
		d.table.forcePID(pid)
	}
}

// DemuxerOptResyncWindow sets the bounded lookahead used when scanning for
// a sync byte after framing is lost.
func DemuxerOptResyncWindow(n int) func(*Demuxer) {
	return func(d *Demuxer) {
		if n >= PacketSize {
			d.resyncWindow = n
		}
	}
}

// Stats returns a snapshot of the fault counters for this session.
func (d *Demuxer) Stats() Stats {
	return d.stats
}

// MetadataPID returns the first elementary PID carrying one of the given
// stream types, once both PAT and the relevant PMT have been observed.
func (d *Demuxer) MetadataPID(streamTypes ...uint8) (uint16, bool) {
	return d.table.resolvePID(streamTypes)
}

// NextData returns the next parsed unit from the stream. Returns io.EOF
// when all data has been consumed.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for {
		// Drain buffered results first.
		if len(d.dataBuffer) > 0 {
			data := d.dataBuffer[0]
			d.dataBuffer = d.dataBuffer[1:]
			return data, nil
		}

		// Drain EOF results.
		if d.eof {
			if len(d.eofData) > 0 {
				data := d.eofData[0]
				d.eofData = d.eofData[1:]
				return data, nil
			}
			return nil, io.EOF
		}

		// Check context.
		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		// Read next packet, resynchronizing on framing loss.
		buf, err := d.readPacket()
		if err != nil {
			if err == io.EOF {
				d.eof = true
				d.drainPool()
				continue
			}
			return nil, err
		}

		pkt, err := parsePacket(buf)
		if err != nil {
			continue // skip corrupt packets
		}
		d.stats.PacketsRead++

		flushed := d.pool.add(pkt)
		if flushed == nil {
			continue
		}

		results, err := d.processPackets(flushed)
		if err != nil {
			d.stats.CorruptSections++
			if d.log != nil {
				d.log.Debug("corrupt section skipped", "pid", pkt.Header.PID, "error", err)
			}
			continue
		}

		results = d.admitResults(results)
		if len(results) == 0 {
			continue
		}

		d.dataBuffer = results[1:]
		return results[0], nil
	}
}

// readPacket returns the next 188 bytes that begin with a sync byte. When
// the expected sync position does not hold 0x47, it scans forward for the
// next byte that both equals 0x47 and is followed by another sync byte one
// packet later (when that much input remains), so isolated corruption costs
// only the bytes it touched.
func (d *Demuxer) readPacket() ([]byte, error) {
	resyncing := false
	for {
		window, err := d.br.Peek(d.resyncWindow)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, err
		}
		if len(window) < PacketSize {
			// Fewer than a full packet remains; a trailing fragment is a
			// framing defect but carries no recoverable payload.
			if len(window) > 0 {
				d.stats.BytesSkipped += int64(len(window))
				d.br.Discard(len(window))
			}
			return nil, io.EOF
		}

		if window[0] == syncByte {
			pkt := make([]byte, PacketSize)
			copy(pkt, window[:PacketSize])
			d.br.Discard(PacketSize)
			return pkt, nil
		}

		if !resyncing {
			resyncing = true
			d.stats.FramingErrors++
			if d.log != nil {
				d.log.Debug("sync byte lost, resynchronizing")
			}
		}

		skip := len(window) // no candidate: drop the whole window
		for off := 1; off < len(window); off++ {
			idx := bytes.IndexByte(window[off:], syncByte)
			if idx < 0 {
				break
			}
			cand := off + idx
			// Plausible only if the 188-byte stride also lands on a sync
			// byte, unless the stream ends before that point.
			if cand+PacketSize < len(window) && window[cand+PacketSize] != syncByte {
				off = cand
				continue
			}
			skip = cand
			break
		}
		d.stats.BytesSkipped += int64(skip)
		d.br.Discard(skip)
	}
}

func (d *Demuxer) drainPool() {
	for _, packets := range d.pool.dump() {
		results, err := d.processPackets(packets)
		if err != nil {
			d.stats.CorruptSections++
			continue
		}
		// Admit PAT results first so PMT PIDs flushed later in the same
		// drain are recognized as PSI.
		d.eofData = append(d.eofData, d.admitResults(results)...)
	}
}

// admitResults applies version gating: PAT/PMT tables repeating the current
// version are redundant and dropped, version changes swap the table state.
func (d *Demuxer) admitResults(results []*DemuxerData) []*DemuxerData {
	admitted := results[:0]
	for _, r := range results {
		switch {
		case r.PAT != nil:
			if !d.table.applyPAT(r.PAT) {
				continue
			}
			d.stats.TableUpdates++
		case r.PMT != nil:
			if !d.table.applyPMT(r.FirstPacket.Header.PID, r.PMT) {
				continue
			}
			d.stats.TableUpdates++
		}
		admitted = append(admitted, r)
	}
	return admitted
}

func (d *Demuxer) processPackets(packets []*Packet) ([]*DemuxerData, error) {
	if len(packets) == 0 {
		return nil, nil
	}

	firstPacket := packets[0]
	pid := firstPacket.Header.PID

	// Concatenate payloads.
	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	if isPSIPayload(pid, d.table) {
		return parsePSI(payload, firstPacket)
	}

	if isPESPayload(payload) {
		pes, err := parsePES(payload)
		if err != nil {
			return nil, err
		}
		return []*DemuxerData{{
			FirstPacket: firstPacket,
			PES:         pes,
		}}, nil
	}

	// Private metadata streams may carry their payload without a PES
	// header; pass tracked elementary payloads through verbatim.
	if d.table.isElementaryPID(pid) {
		return []*DemuxerData{{
			FirstPacket: firstPacket,
			PES:         &PESData{Data: payload},
		}}, nil
	}

	return nil, nil
}
