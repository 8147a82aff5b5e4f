package rename

import "math/bits"

// ════════════════════════════════════════════════════════════════════════════════════════════════
// SNAPSHOT RING (Checkpoints)
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// SnapshotRing keeps a bounded number of saved rename states so that the common
// redirect (a mispredicted branch) is absorbed in one step instead of a walk.
//
// SLOT STATE MACHINE:
// ───────────────────
//
//	empty → valid → retired      (triggering instruction committed)
//	              → invalidated  (redirect or walk discarded the trigger)
//
// Valid slots are always the contiguous range [deq, enq): retirement removes from
// the old end, invalidation from the young end, so the ring never fragments.
//
// ADMISSION GATES (checked by the Allocator before Enqueue):
// ──────────────────────────────────────────────────────────
//  1. Ring not full
//  2. Candidate key at least MinDistance keys past the previous checkpoint, which
//     keeps dense branch code from flooding the ring
//
// Hardware: Capacity × (NumClasses cursors + NumClasses alias table copies), plus a
// valid bitmap; selection is a priority encoder over the valid bits.

// Snapshot is the rename state right after the triggering instruction.
type Snapshot struct {
	Key     OrderKey
	Cursors [NumClasses]Cursor
	Tables  [NumClasses][]PhysTag
}

// SlotState is the lifecycle state of one ring slot.
type SlotState uint8

const (
	SlotEmpty SlotState = iota
	SlotValid
	SlotRetired
	SlotInvalidated
)

func (s SlotState) String() string {
	switch s {
	case SlotValid:
		return "valid"
	case SlotRetired:
		return "retired"
	case SlotInvalidated:
		return "invalidated"
	default:
		return "empty"
	}
}

// MaxCheckpoints bounds the ring so the valid set fits one 64-bit bitmap.
const MaxCheckpoints = 64

// SnapshotRing is the checkpoint store.
type SnapshotRing struct {
	slots       []Snapshot
	state       []SlotState
	valid       uint64 // bit i set ⇔ state[i] == SlotValid
	enq         Cursor
	deq         Cursor
	minDistance uint64

	// Key of the youngest checkpoint still standing (valid or retired).
	lastKey OrderKey
	hasLast bool
}

// NewSnapshotRing builds a ring of capacity slots. Capacity 0 disables checkpoints.
func NewSnapshotRing(capacity, minDistance int) *SnapshotRing {
	if capacity < 0 || capacity > MaxCheckpoints || minDistance < 0 {
		panic(bugf("snapshot ring: capacity %d min distance %d", capacity, minDistance))
	}
	return &SnapshotRing{
		slots:       make([]Snapshot, capacity),
		state:       make([]SlotState, capacity),
		minDistance: uint64(minDistance),
	}
}

// Capacity returns the number of slots.
func (r *SnapshotRing) Capacity() int { return len(r.slots) }

// Len returns the number of valid checkpoints.
func (r *SnapshotRing) Len() int { return r.deq.DistanceTo(r.enq) }

// Full reports whether no slot is free.
func (r *SnapshotRing) Full() bool { return r.Len() >= len(r.slots) }

// ValidMask returns the valid bitmap indexed by slot.
func (r *SnapshotRing) ValidMask() uint64 { return r.valid }

// State returns the lifecycle state of slot i.
func (r *SnapshotRing) State(i int) SlotState { return r.state[i] }

// Get returns the snapshot stored in slot i.
func (r *SnapshotRing) Get(i int) *Snapshot { return &r.slots[i] }

// CanEnqueue applies both admission gates for a checkpoint at key.
func (r *SnapshotRing) CanEnqueue(key OrderKey) bool {
	if r.Full() {
		return false
	}
	if r.hasLast && (key <= r.lastKey || uint64(key-r.lastKey) < r.minDistance) {
		return false
	}
	return true
}

// Enqueue stores a snapshot and returns its slot. The ring must not be full.
func (r *SnapshotRing) Enqueue(s Snapshot) int {
	if r.Full() {
		panic(bugf("snapshot ring: enqueue of key %d into a full ring (%d slots)", s.Key, len(r.slots)))
	}
	i := r.enq.Index(len(r.slots))
	r.slots[i] = s
	r.setState(i, SlotValid)
	r.enq = r.enq.Add(1)
	r.lastKey, r.hasLast = s.Key, true
	return i
}

// RetireUpTo retires every checkpoint whose trigger key is at or below committed.
func (r *SnapshotRing) RetireUpTo(committed OrderKey) int {
	n := 0
	for r.Len() > 0 {
		i := r.deq.Index(len(r.slots))
		if r.slots[i].Key > committed {
			break
		}
		r.setState(i, SlotRetired)
		r.slots[i].Tables = [NumClasses][]PhysTag{}
		r.deq = r.deq.Add(1)
		n++
	}
	return n
}

// InvalidateFrom invalidates every checkpoint whose key is at or after resume,
// that is every checkpoint younger than the last surviving instruction.
func (r *SnapshotRing) InvalidateFrom(resume OrderKey) int {
	n := 0
	for r.Len() > 0 {
		i := r.enq.Sub(1).Index(len(r.slots))
		if r.slots[i].Key < resume {
			break
		}
		r.setState(i, SlotInvalidated)
		r.slots[i].Tables = [NumClasses][]PhysTag{}
		r.enq = r.enq.Sub(1)
		n++
	}
	if r.hasLast && r.lastKey >= resume {
		if r.Len() > 0 {
			r.lastKey = r.slots[r.enq.Sub(1).Index(len(r.slots))].Key
		} else {
			r.hasLast = false
		}
	}
	return n
}

// Select scans from newest to oldest valid checkpoint and returns the first whose
// key survives a redirect resuming at resume.
func (r *SnapshotRing) Select(resume OrderKey) (int, bool) {
	for n := r.Len(); n > 0; n-- {
		i := r.deq.Add(n - 1).Index(len(r.slots))
		if r.slots[i].Key < resume {
			return i, true
		}
	}
	return -1, false
}

// Newest returns the slot of the youngest valid checkpoint.
func (r *SnapshotRing) Newest() (int, bool) {
	if r.Len() == 0 {
		return -1, false
	}
	return r.enq.Sub(1).Index(len(r.slots)), true
}

// Check verifies ring invariants.
func (r *SnapshotRing) Check() error {
	if r.Len() > len(r.slots) {
		return bugf("snapshot ring: %d valid entries in %d slots", r.Len(), len(r.slots))
	}
	if got := bits.OnesCount64(r.valid); got != r.Len() {
		return bugf("snapshot ring: valid bitmap has %d bits for %d entries", got, r.Len())
	}
	return nil
}

func (r *SnapshotRing) setState(i int, s SlotState) {
	r.state[i] = s
	if s == SlotValid {
		r.valid |= 1 << uint(i)
	} else {
		r.valid &^= 1 << uint(i)
	}
}
