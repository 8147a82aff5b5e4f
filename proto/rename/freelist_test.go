package rename

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX Register Renaming - Tag Pool Tests
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// TEST ORGANIZATION:
// ──────────────────
// 1. CURSORS
//    Index, wrap flag, ordering, distance
//
// 2. ALLOCATION
//    Cursor-order grants, all-or-nothing refusal, walk blocking
//
// 3. ROLLBACK
//    Rewind, checkpoint restore, architectural restore, replay
//
// 4. COMMIT AND FREE
//    Architectural cursor, tail enqueue, wraparound, overflow
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 1. CURSORS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestCursor_IndexAndFlag(t *testing.T) {
	// WHAT: Same slot one lap later differs only in the wrap flag
	// WHY: Full/empty disambiguation in a flag-bit pointer
	// HARDWARE: index = low bits, flag = next bit

	a, b := Cursor(5), Cursor(13)

	require.Equal(t, 5, a.Index(8))
	require.Equal(t, 5, b.Index(8))
	require.False(t, a.Flag(8))
	require.True(t, b.Flag(8))
	require.True(t, b.IsAfter(a))
	require.False(t, a.IsAfter(b))
	require.False(t, a.IsAfter(a))
	require.Equal(t, 8, a.DistanceTo(b))
	require.Equal(t, 0, a.DistanceTo(a))
}

func TestCursor_AddSub(t *testing.T) {
	c := Cursor(3).Add(4)
	require.Equal(t, Cursor(7), c)
	require.Equal(t, Cursor(2), c.Sub(5))
}

func TestCursor_Backward(t *testing.T) {
	// WHAT: Distances and moves that would run a cursor backward past zero are fatal
	// WHY: They mean two cursors crossed, which the pool invariants forbid

	require.Panics(t, func() { Cursor(13).DistanceTo(5) })
	require.Panics(t, func() { Cursor(2).Sub(3) })
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 2. ALLOCATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestFreeList_InitialState(t *testing.T) {
	// WHAT: Tags below reserved back the logical registers, the rest are free
	// WHY: Reset state maps logical i → physical i
	// HARDWARE: Slot SRAM preloaded with reserved..capacity-1

	fl := NewFreeList(ClassInt, 8, 4)

	require.Equal(t, 8, fl.Capacity())
	require.Equal(t, ClassInt, fl.Class())
	require.Equal(t, 4, fl.FreeCount())
	require.Equal(t, 0, fl.SpecCount())
	require.Equal(t, []PhysTag{4, 5, 6, 7}, fl.Peek(4))
	require.NoError(t, fl.Check())
}

func TestFreeList_AllocateInCursorOrder(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)

	require.Equal(t, []PhysTag{4, 5}, fl.Allocate(2))
	require.Equal(t, []PhysTag{6}, fl.Allocate(1))
	require.Equal(t, 1, fl.FreeCount())
	require.Equal(t, 3, fl.SpecCount())
	require.Equal(t, Cursor(3), fl.Head())
	require.Empty(t, fl.Allocate(0))
}

func TestFreeList_PeekHasNoSideEffects(t *testing.T) {
	fl := NewFreeList(ClassFp, 8, 4)

	peeked := fl.Peek(3)
	require.Equal(t, 4, fl.FreeCount())
	require.Equal(t, peeked, fl.Allocate(3))
}

func TestFreeList_AllOrNothing(t *testing.T) {
	// WHAT: A request larger than the free count is refused as a whole
	// WHY: A batch must never be half renamed
	// HARDWARE: Single comparator free >= need gates the grant

	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(2)

	require.True(t, fl.CanAllocate(2))
	require.False(t, fl.CanAllocate(3))
	require.Panics(t, func() { fl.Allocate(3) })

	// Refusal leaves the pool untouched.
	require.Equal(t, 2, fl.FreeCount())
	require.Equal(t, 2, fl.SpecCount())
	require.Equal(t, []PhysTag{6, 7}, fl.Allocate(2))
}

func TestFreeList_WalkPendingBlocks(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)

	fl.SetWalkPending(true)
	require.True(t, fl.WalkPending())
	require.False(t, fl.CanAllocate(0))
	require.False(t, fl.CanAllocate(1))
	require.Panics(t, func() { fl.Allocate(1) })

	fl.SetWalkPending(false)
	require.True(t, fl.CanAllocate(1))
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 3. ROLLBACK
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestFreeList_RewindReissuesSameTags(t *testing.T) {
	// WHAT: Walking back n allocations hands out the same n tags again
	// WHY: Slots behind head are never overwritten until tail laps them
	// HARDWARE: head -= n, no SRAM write

	fl := NewFreeList(ClassInt, 8, 4)
	first := fl.Allocate(3)

	fl.Rewind(3)
	require.Equal(t, 4, fl.FreeCount())
	require.Equal(t, 0, fl.SpecCount())
	require.Equal(t, first, fl.Allocate(3))
}

func TestFreeList_RewindPastArchIsFatal(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(2)
	fl.CommitAllocated(1)

	require.Panics(t, func() { fl.Rewind(2) })
	fl.Rewind(1)
	require.Equal(t, 0, fl.SpecCount())
}

func TestFreeList_CheckpointRestore(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(1)
	c := fl.CaptureCheckpoint()
	younger := fl.Allocate(2)

	fl.RestoreCheckpoint(c)
	require.Equal(t, 1, fl.SpecCount())
	require.Equal(t, 3, fl.FreeCount())
	require.Equal(t, younger, fl.Peek(2))
}

func TestFreeList_CheckpointRestoreIdempotent(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(1)
	c := fl.CaptureCheckpoint()
	fl.Allocate(2)

	fl.RestoreCheckpoint(c)
	head, free := fl.Head(), fl.FreeCount()
	fl.RestoreCheckpoint(c)
	require.Equal(t, head, fl.Head())
	require.Equal(t, free, fl.FreeCount())
}

func TestFreeList_CheckpointOutsideWindowIsFatal(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	before := fl.CaptureCheckpoint()
	fl.Allocate(2)
	fl.CommitAllocated(1)

	// Older than the architectural cursor.
	require.Panics(t, func() { fl.RestoreCheckpoint(before) })
	// Younger than the allocation cursor.
	require.Panics(t, func() { fl.RestoreCheckpoint(fl.Head().Add(1)) })
}

func TestFreeList_RestoreArch(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(3)
	fl.CommitAllocated(1)

	fl.RestoreArch()
	require.Equal(t, 0, fl.SpecCount())
	require.Equal(t, 3, fl.FreeCount())
	require.Equal(t, fl.ArchHead(), fl.Head())
}

func TestFreeList_AdvanceReplays(t *testing.T) {
	// WHAT: Replay re-claims exactly the tags the replayed instructions held
	// WHY: After a restore the survivors must keep their original tags
	// HARDWARE: Compare slot contents against the walk vector, then head += n

	fl := NewFreeList(ClassInt, 8, 4)
	tags := fl.Allocate(2)
	fl.RestoreArch()

	fl.Advance(tags)
	require.Equal(t, 2, fl.SpecCount())
	require.Panics(t, func() { fl.Advance([]PhysTag{7}) })
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// 4. COMMIT AND FREE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestFreeList_FreeEnqueuesAtTail(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(4)
	fl.CommitAllocated(1)

	fl.Free(0)
	require.Equal(t, 1, fl.FreeCount())
	require.Equal(t, []PhysTag{0}, fl.Peek(1))
	require.NoError(t, fl.Check())
}

func TestFreeList_CommitPastHeadIsFatal(t *testing.T) {
	fl := NewFreeList(ClassInt, 8, 4)
	fl.Allocate(1)

	require.Panics(t, func() { fl.CommitAllocated(2) })
}

func TestFreeList_FreeOverflowIsFatal(t *testing.T) {
	// WHAT: Freeing into a pool that already accounts for every tag is fatal
	// WHY: It can only be a double free

	fl := NewFreeList(ClassInt, 8, 0)

	require.Panics(t, func() { fl.Free(3) })
	require.Panics(t, func() { NewFreeList(ClassInt, 8, 4).Free(8) })
}

func TestFreeList_Wraparound(t *testing.T) {
	// WHAT: One logical register redefined over and over cycles through the pool
	// WHY: Cursors wrap; allocation order follows free order
	// HARDWARE: Index bits wrap, flag bit toggles every lap

	fl := NewFreeList(ClassInt, 4, 2)
	old := PhysTag(0)
	var seq []PhysTag

	for i := 0; i < 20; i++ {
		tag := fl.Allocate(1)[0]
		seq = append(seq, tag)
		fl.CommitAllocated(1)
		fl.Free(old)
		old = tag

		require.NoError(t, fl.Check())
		require.Equal(t, 2, fl.FreeCount())
		require.Equal(t, 0, fl.SpecCount())
	}
	require.Equal(t, []PhysTag{2, 3, 0, 2, 3, 0}, seq[:6])
}

func BenchmarkFreeList_AllocateRewind(b *testing.B) {
	fl := NewFreeList(ClassInt, DefaultIntPoolCapacity, DefaultLogicalRegs)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fl.Allocate(DefaultRenameWidth)
		fl.Rewind(DefaultRenameWidth)
	}
}
