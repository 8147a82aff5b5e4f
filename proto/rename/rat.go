package rename

// ════════════════════════════════════════════════════════════════════════════════════════════════
// ALIAS TABLES
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// AliasTable is the speculative logical → physical map read at rename.
// ArchTable is the committed map, updated in commit order.
//
// Unlike a bitmap RAT that keeps every live mapping per register, the speculative
// table holds exactly one tag per logical register. Older mappings live in the
// RenamedInstruction records (OldPDest) and in snapshot copies, which is all a walk or
// a checkpoint restore needs.
//
// Example:
//
//	r5 → p9           initial
//	rename r5 = ...   r5 → p33, instruction records OldPDest = p9
//	walk it back      r5 → p9 (Restore with the recorded old tag)

// AliasTable maps each logical register of one class to its visible tag.
type AliasTable struct {
	class RegClass
	table []PhysTag
}

// NewAliasTable maps logical register i to physical tag i.
func NewAliasTable(class RegClass, numLogical int) *AliasTable {
	t := &AliasTable{class: class, table: make([]PhysTag, numLogical)}
	for i := range t.table {
		t.table[i] = PhysTag(i)
	}
	return t
}

// Len returns the number of logical registers.
func (t *AliasTable) Len() int { return len(t.table) }

// Read returns the mapping as of the end of the previous step.
func (t *AliasTable) Read(r LogicalReg) PhysTag {
	t.check(r)
	if t.class == ClassInt && r == ZeroReg {
		return 0
	}
	return t.table[r]
}

// Write records a new speculative mapping.
func (t *AliasTable) Write(r LogicalReg, tag PhysTag) {
	t.check(r)
	if t.class == ClassInt && r == ZeroReg {
		panic(bugf("alias table: write of p%d to the zero register", tag))
	}
	t.table[r] = tag
}

// Restore puts back a previously recorded mapping during a walk.
func (t *AliasTable) Restore(r LogicalReg, tag PhysTag) {
	t.Write(r, tag)
}

// Snapshot returns a copy of the whole table.
func (t *AliasTable) Snapshot() []PhysTag {
	s := make([]PhysTag, len(t.table))
	copy(s, t.table)
	return s
}

// Load overwrites the table with a snapshot.
func (t *AliasTable) Load(s []PhysTag) {
	if len(s) != len(t.table) {
		panic(bugf("alias table %s: load of %d entries into %d", t.class, len(s), len(t.table)))
	}
	copy(t.table, s)
}

func (t *AliasTable) check(r LogicalReg) {
	if int(r) >= len(t.table) {
		panic(bugf("alias table %s: logical register %d out of range", t.class, r))
	}
}

// ArchTable is the committed mapping of one class with a reference count per tag.
//
// Move elimination lets several logical registers share one tag. A tag is released
// to the FreeList only when the last committed logical register referring to it is
// redefined, so a shared tag is never freed while another register still names it.
type ArchTable struct {
	class RegClass
	table []PhysTag
	refs  []uint16
	live  int // tags with refs > 0
}

// NewArchTable maps logical register i to tag i in a pool of capacity tags.
func NewArchTable(class RegClass, numLogical, capacity int) *ArchTable {
	if numLogical > capacity {
		panic(bugf("arch table %s: %d logical registers in %d tags", class, numLogical, capacity))
	}
	t := &ArchTable{
		class: class,
		table: make([]PhysTag, numLogical),
		refs:  make([]uint16, capacity),
		live:  numLogical,
	}
	for i := range t.table {
		t.table[i] = PhysTag(i)
		t.refs[i] = 1
	}
	return t
}

// Read returns the committed mapping.
func (t *ArchTable) Read(r LogicalReg) PhysTag { return t.table[r] }

// Table returns a copy of the committed mapping.
func (t *ArchTable) Table() []PhysTag {
	s := make([]PhysTag, len(t.table))
	copy(s, t.table)
	return s
}

// Refs returns the number of committed logical registers naming tag.
func (t *ArchTable) Refs(tag PhysTag) int { return int(t.refs[tag]) }

// Live returns the number of distinct tags in the committed mapping.
func (t *ArchTable) Live() int { return t.live }

// Commit retires the mapping r → tag.
//
// ALGORITHM:
//
//	STEP 1: old = table[r]; if old == tag nothing changes (self move)
//	STEP 2: table[r] = tag, refs[tag]++
//	STEP 3: refs[old]--; released when it reaches zero
func (t *ArchTable) Commit(r LogicalReg, tag PhysTag) (old PhysTag, released bool) {
	old = t.table[r]
	if old == tag {
		return old, false
	}
	t.table[r] = tag
	if t.refs[tag] == 0 {
		t.live++
	}
	t.refs[tag]++

	if t.refs[old] == 0 {
		panic(bugf("arch table %s: r%d held p%d with no reference", t.class, r, old))
	}
	t.refs[old]--
	if t.refs[old] == 0 {
		t.live--
		return old, true
	}
	return old, false
}
