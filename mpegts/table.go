package mpegts

const pidPAT = 0x0000

// programTable tracks the PAT/PMT state of a demux session: which PIDs carry
// PMT sections and which PIDs carry elementary streams of which stream type.
// Each table is guarded by its version_number; a version change replaces the
// affected mappings wholesale, a repeated version is ignored.
type programTable struct {
	patVersion *uint8
	pmtPIDs    map[uint16]bool

	pmtVersions map[uint16]uint8  // PMT PID -> last accepted version
	streamTypes map[uint16]uint8  // elementary PID -> stream type
	pidOwner    map[uint16]uint16 // elementary PID -> PMT PID that declared it

	// forced PIDs are treated as elementary streams without any PMT
	// declaring them, and survive table swaps.
	forced map[uint16]bool
}

func newProgramTable() *programTable {
	return &programTable{
		pmtPIDs:     make(map[uint16]bool),
		pmtVersions: make(map[uint16]uint8),
		streamTypes: make(map[uint16]uint8),
		pidOwner:    make(map[uint16]uint16),
		forced:      make(map[uint16]bool),
	}
}

func (t *programTable) isPMTPID(pid uint16) bool {
	return t.pmtPIDs[pid]
}

func (t *programTable) isElementaryPID(pid uint16) bool {
	if t.forced[pid] {
		return true
	}
	_, ok := t.streamTypes[pid]
	return ok
}

func (t *programTable) forcePID(pid uint16) {
	t.forced[pid] = true
}

// applyPAT installs a new PAT generation. Returns false when the version
// matches the current one and the table is redundant.
func (t *programTable) applyPAT(pat *PATData) bool {
	if t.patVersion != nil && *t.patVersion == pat.Version {
		return false
	}
	v := pat.Version
	t.patVersion = &v

	// Whole-table swap: stale PMT PIDs from a previous generation are
	// dropped along with the elementary mappings they declared.
	next := make(map[uint16]bool, len(pat.Programs))
	for _, p := range pat.Programs {
		next[p.ProgramMapID] = true
	}
	for pid := range t.pmtPIDs {
		if !next[pid] {
			t.dropPMT(pid)
		}
	}
	t.pmtPIDs = next
	return true
}

// applyPMT installs a new PMT generation for one PMT PID. Returns false for
// a redundant repeat of the current version.
func (t *programTable) applyPMT(pmtPID uint16, pmt *PMTData) bool {
	if v, ok := t.pmtVersions[pmtPID]; ok && v == pmt.Version {
		return false
	}
	t.dropPMT(pmtPID)
	t.pmtVersions[pmtPID] = pmt.Version
	for _, es := range pmt.ElementaryStreams {
		t.streamTypes[es.ElementaryPID] = es.StreamType
		t.pidOwner[es.ElementaryPID] = pmtPID
	}
	return true
}

func (t *programTable) dropPMT(pmtPID uint16) {
	delete(t.pmtVersions, pmtPID)
	for pid, owner := range t.pidOwner {
		if owner == pmtPID {
			delete(t.pidOwner, pid)
			delete(t.streamTypes, pid)
		}
	}
}

// resolvePID returns the first elementary PID whose stream type is one of
// the given values, or false when no such stream has been observed yet.
// Lowest PID wins so the result is stable across map iteration order.
func (t *programTable) resolvePID(streamTypes []uint8) (uint16, bool) {
	var best uint16
	found := false
	for pid, st := range t.streamTypes {
		for _, want := range streamTypes {
			if st == want && (!found || pid < best) {
				best = pid
				found = true
			}
		}
	}
	return best, found
}
