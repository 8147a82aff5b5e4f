package rename

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ALIAS TABLE TESTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestAliasTable_Identity(t *testing.T) {
	// WHAT: Reset maps logical i to physical i
	// WHY: Matches the FreeList reserving tags [0, logical)

	rat := NewAliasTable(ClassFp, 32)

	require.Equal(t, 32, rat.Len())
	for r := 0; r < 32; r++ {
		require.Equal(t, PhysTag(r), rat.Read(LogicalReg(r)))
	}
}

func TestAliasTable_ZeroRegister(t *testing.T) {
	// WHAT: Integer r0 always reads tag 0 and cannot be written
	// WHY: Hard-wired zero is never renamed
	// HARDWARE: Read port 0 tied low, write enable masked

	ints := NewAliasTable(ClassInt, 32)
	require.Equal(t, PhysTag(0), ints.Read(ZeroReg))
	require.Panics(t, func() { ints.Write(ZeroReg, 40) })

	// FP register 0 is an ordinary register.
	fps := NewAliasTable(ClassFp, 32)
	fps.Write(0, 40)
	require.Equal(t, PhysTag(40), fps.Read(0))
}

func TestAliasTable_WriteRestore(t *testing.T) {
	rat := NewAliasTable(ClassInt, 32)

	rat.Write(5, 33)
	require.Equal(t, PhysTag(33), rat.Read(5))
	rat.Restore(5, 5)
	require.Equal(t, PhysTag(5), rat.Read(5))
}

func TestAliasTable_SnapshotLoad(t *testing.T) {
	rat := NewAliasTable(ClassInt, 8)
	rat.Write(3, 20)
	snap := rat.Snapshot()

	rat.Write(3, 21)
	rat.Write(4, 22)
	rat.Load(snap)
	require.Equal(t, PhysTag(20), rat.Read(3))
	require.Equal(t, PhysTag(4), rat.Read(4))

	// The snapshot is a copy.
	snap[3] = 99
	require.Equal(t, PhysTag(20), rat.Read(3))
}

func TestAliasTable_Bounds(t *testing.T) {
	rat := NewAliasTable(ClassInt, 8)

	require.Panics(t, func() { rat.Read(8) })
	require.Panics(t, func() { rat.Load(make([]PhysTag, 7)) })
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ARCHITECTURAL TABLE TESTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func TestArchTable_CommitReleasesOldTag(t *testing.T) {
	arch := NewArchTable(ClassInt, 4, 8)

	old, released := arch.Commit(1, 5)
	require.Equal(t, PhysTag(1), old)
	require.True(t, released)
	require.Equal(t, PhysTag(5), arch.Read(1))
	require.Equal(t, 1, arch.Refs(5))
	require.Equal(t, 0, arch.Refs(1))
	require.Equal(t, 4, arch.Live())
}

func TestArchTable_SharedTag(t *testing.T) {
	// WHAT: Two registers share a tag after an eliminated move; the tag is released
	//       only when the second one is redefined
	// WHY: Freeing on the first redefinition would hand out a tag still in use

	arch := NewArchTable(ClassInt, 4, 8)
	arch.Commit(1, 5)

	// r2 = mov r1
	old, released := arch.Commit(2, 5)
	require.Equal(t, PhysTag(2), old)
	require.True(t, released)
	require.Equal(t, 2, arch.Refs(5))
	require.Equal(t, 3, arch.Live())

	// r1 redefined: p5 still named by r2.
	old, released = arch.Commit(1, 6)
	require.Equal(t, PhysTag(5), old)
	require.False(t, released)
	require.Equal(t, 4, arch.Live())

	// r2 redefined: last reference gone.
	old, released = arch.Commit(2, 7)
	require.Equal(t, PhysTag(5), old)
	require.True(t, released)
	require.Equal(t, 0, arch.Refs(5))
	require.Equal(t, 4, arch.Live())
}

func TestArchTable_SelfMove(t *testing.T) {
	arch := NewArchTable(ClassInt, 4, 8)

	old, released := arch.Commit(3, 3)
	require.Equal(t, PhysTag(3), old)
	require.False(t, released)
	require.Equal(t, 1, arch.Refs(3))
}

func TestArchTable_TableIsCopy(t *testing.T) {
	arch := NewArchTable(ClassFp, 4, 8)
	tbl := arch.Table()
	tbl[0] = 7

	require.Equal(t, PhysTag(0), arch.Read(0))
	require.Equal(t, []PhysTag{0, 1, 2, 3}, arch.Table())
}
