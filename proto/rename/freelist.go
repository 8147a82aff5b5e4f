package rename

// ════════════════════════════════════════════════════════════════════════════════════════════════
// FREE LIST (Tag Pool)
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// FreeList owns the unassigned physical tags of one register class.
//
// STRUCTURE:
// ──────────
// A positional ring of Capacity slots holding tag numbers, with three cursors:
//
//	archHead ≤ head ≤ tail ≤ archHead + Capacity
//
//	[archHead, head)  tags handed to in-flight (uncommitted) instructions
//	[head, tail)      free tags, allocated strictly in cursor order
//	tail              where commit-time frees are enqueued
//
// Allocation reads slots[head..] and advances head; nothing is erased. That is
// what makes rollback cheap: moving head backward (walk) or setting it to a saved
// value (checkpoint) hands the same tags out again without per-tag bookkeeping,
// because a slot behind head is only overwritten after tail laps around to it, and
// tail never passes archHead + Capacity.
//
// COUNTS:
// ───────
//
//	FreeCount = tail - head
//	SpecCount = head - archHead   (speculatively held new destinations)
//
// Together with the distinct tags referenced by the ArchTable these always sum to
// Capacity (see Engine.CheckConservation).
//
// Hardware: Capacity-entry SRAM plus three pointer registers; allocation of up
// to RenameWidth tags is a read of consecutive entries starting at head.
type FreeList struct {
	class    RegClass
	slots    []PhysTag
	head     Cursor
	tail     Cursor
	archHead Cursor

	// walkPending blocks allocation while the sequencer is walking.
	walkPending bool
}

// NewFreeList builds the pool for one class. Tags [0, reserved) start out as the
// architectural mapping of the logical registers; tags [reserved, capacity) are free.
func NewFreeList(class RegClass, capacity, reserved int) *FreeList {
	if capacity <= 0 || reserved < 0 || reserved > capacity || capacity > int(InvalidTag) {
		panic(bugf("free list %s: capacity %d reserved %d", class, capacity, reserved))
	}
	fl := &FreeList{
		class: class,
		slots: make([]PhysTag, capacity),
	}
	for i := 0; i < capacity-reserved; i++ {
		fl.slots[i] = PhysTag(reserved + i)
	}
	fl.tail = Cursor(capacity - reserved)
	return fl
}

// Capacity returns the pool size.
func (fl *FreeList) Capacity() int { return len(fl.slots) }

// Class returns the register class served by this pool.
func (fl *FreeList) Class() RegClass { return fl.class }

// FreeCount returns the number of tags available for allocation.
func (fl *FreeList) FreeCount() int { return fl.head.DistanceTo(fl.tail) }

// SpecCount returns the number of tags held by uncommitted instructions.
func (fl *FreeList) SpecCount() int { return fl.archHead.DistanceTo(fl.head) }

// Head returns the allocation cursor.
func (fl *FreeList) Head() Cursor { return fl.head }

// ArchHead returns the architectural cursor.
func (fl *FreeList) ArchHead() Cursor { return fl.archHead }

// Tail returns the free enqueue cursor.
func (fl *FreeList) Tail() Cursor { return fl.tail }

// WalkPending reports whether allocation is blocked by an ongoing walk.
func (fl *FreeList) WalkPending() bool { return fl.walkPending }

// SetWalkPending blocks or unblocks allocation.
func (fl *FreeList) SetWalkPending(pending bool) { fl.walkPending = pending }

// CanAllocate reports whether n tags can be granted this step.
// Admission is all-or-nothing, so a shortfall of one tag refuses the whole request.
func (fl *FreeList) CanAllocate(n int) bool {
	if n == 0 {
		return !fl.walkPending
	}
	return !fl.walkPending && fl.FreeCount() >= n
}

// Peek returns the tags Allocate(n) would grant, without changing state.
// The caller must have checked CanAllocate(n).
func (fl *FreeList) Peek(n int) []PhysTag {
	if n > fl.FreeCount() {
		panic(bugf("free list %s: peek %d with %d free", fl.class, n, fl.FreeCount()))
	}
	tags := make([]PhysTag, n)
	for i := range tags {
		tags[i] = fl.slots[fl.head.Add(i).Index(len(fl.slots))]
	}
	return tags
}

// Allocate grants the next n tags in cursor order.
//
// ALGORITHM:
//
//	STEP 1: Refuse (fatal) if fewer than n tags are free or a walk is pending
//	STEP 2: Read slots[head .. head+n)
//	STEP 3: head += n
func (fl *FreeList) Allocate(n int) []PhysTag {
	if !fl.CanAllocate(n) {
		panic(bugf("free list %s: allocate %d with %d free (walk pending %v)",
			fl.class, n, fl.FreeCount(), fl.walkPending))
	}
	tags := fl.Peek(n)
	fl.head = fl.head.Add(n)
	return tags
}

// Free returns a tag released at commit.
func (fl *FreeList) Free(tag PhysTag) {
	if int(tag) >= len(fl.slots) {
		panic(bugf("free list %s: free of out-of-range tag %d", fl.class, tag))
	}
	if fl.archHead.DistanceTo(fl.tail) >= len(fl.slots) {
		panic(bugf("free list %s: free of tag %d overflows the ring (double free?)", fl.class, tag))
	}
	fl.slots[fl.tail.Index(len(fl.slots))] = tag
	fl.tail = fl.tail.Add(1)
}

// Rewind moves head back by n positions (undo walk). The tags become free again
// implicitly; their slots still hold the same tag numbers.
func (fl *FreeList) Rewind(n int) {
	if n > fl.SpecCount() {
		panic(bugf("free list %s: rewind %d past architectural cursor (%d held)",
			fl.class, n, fl.SpecCount()))
	}
	fl.head = fl.head.Sub(n)
}

// Advance re-claims tags during a replay walk. The tags must be exactly the ones
// sitting at head, in order, because the replayed instructions were the ones that
// took them in the first place.
func (fl *FreeList) Advance(tags []PhysTag) {
	if len(tags) > fl.FreeCount() {
		panic(bugf("free list %s: replay of %d tags with %d free", fl.class, len(tags), fl.FreeCount()))
	}
	for _, tag := range tags {
		if got := fl.slots[fl.head.Index(len(fl.slots))]; got != tag {
			panic(bugf("free list %s: replay expected tag %d at cursor %d, found %d",
				fl.class, tag, fl.head, got))
		}
		fl.head = fl.head.Add(1)
	}
}

// CommitAllocated advances the architectural cursor past n retired allocations.
func (fl *FreeList) CommitAllocated(n int) {
	next := fl.archHead.Add(n)
	if next.IsAfter(fl.head) {
		panic(bugf("free list %s: architectural cursor %d passes allocation cursor %d",
			fl.class, next, fl.head))
	}
	fl.archHead = next
}

// CaptureCheckpoint returns the allocation cursor for the snapshot ring.
func (fl *FreeList) CaptureCheckpoint() Cursor { return fl.head }

// RestoreCheckpoint sets the allocation cursor to a saved value: O(1) no matter how
// many speculative tags are discarded.
func (fl *FreeList) RestoreCheckpoint(c Cursor) {
	if fl.archHead.IsAfter(c) || c.IsAfter(fl.head) {
		panic(bugf("free list %s: restore to %d outside [%d, %d]", fl.class, c, fl.archHead, fl.head))
	}
	fl.head = c
}

// RestoreArch discards every speculative allocation.
func (fl *FreeList) RestoreArch() {
	fl.head = fl.archHead
}

// Check verifies the cursor ordering invariants.
func (fl *FreeList) Check() error {
	switch {
	case fl.head.IsAfter(fl.tail):
		return bugf("free list %s: head %d after tail %d", fl.class, fl.head, fl.tail)
	case fl.archHead.IsAfter(fl.head):
		return bugf("free list %s: arch head %d after head %d", fl.class, fl.archHead, fl.head)
	case fl.archHead.DistanceTo(fl.tail) > len(fl.slots):
		return bugf("free list %s: tail %d laps arch head %d", fl.class, fl.tail, fl.archHead)
	}
	return nil
}
