package rename

// testConfig is the default engine shrunk to 8 free tags per class beyond the 32
// logical registers, so the first fresh integer tags are p32, p33, ...
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PoolCapacity = [NumClasses]int{40, 40}
	cfg.MinCheckpointDistance = 0
	return cfg
}

// unit is the rename state without an Engine or sequencer in front of it.
type unit struct {
	pools [NumClasses]*FreeList
	rats  [NumClasses]*AliasTable
	arch  [NumClasses]*ArchTable
	ring  *SnapshotRing
	alloc *Allocator
	coord *Coordinator
}

func newUnit(cfg Config) *unit {
	u := &unit{}
	for class := RegClass(0); class < NumClasses; class++ {
		u.pools[class] = NewFreeList(class, cfg.PoolCapacity[class], cfg.LogicalRegs[class])
		u.rats[class] = NewAliasTable(class, cfg.LogicalRegs[class])
		u.arch[class] = NewArchTable(class, cfg.LogicalRegs[class], cfg.PoolCapacity[class])
	}
	u.ring = NewSnapshotRing(cfg.Checkpoints, cfg.MinCheckpointDistance)
	u.alloc = NewAllocator(cfg, u.pools, u.rats, u.ring)
	u.coord = NewCoordinator(u.pools, u.rats, u.arch, u.ring, cfg.logger())
	return u
}

// rename prepares and applies batch. A stall panics.
func (u *unit) rename(batch ...DecodedInstruction) []RenamedInstruction {
	p := u.alloc.Prepare(batch, 0)
	if p.Stall != StallNone {
		panic(bugf("test batch stalled on %s", p.Stall))
	}
	return u.alloc.Apply(&p)
}

func commits(batch []RenamedInstruction) []CommitSlot {
	out := make([]CommitSlot, len(batch))
	for i := range batch {
		out[i] = batch[i].CommitSlot()
	}
	return out
}

// undo builds the undo walk slots for batch, youngest first.
func undo(batch []RenamedInstruction) []WalkSlot {
	out := make([]WalkSlot, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		out = append(out, batch[i].WalkSlot())
	}
	return out
}

func alu(dst LogicalReg, srcs ...LogicalReg) DecodedInstruction {
	in := DecodedInstruction{Valid: true, Dest: Reg(ClassInt, dst)}
	for i, s := range srcs {
		in.Srcs[i] = Reg(ClassInt, s)
	}
	return in
}

func mov(dst, src LogicalReg) DecodedInstruction {
	in := alu(dst, src)
	in.IsMove = true
	return in
}

func branch(srcs ...LogicalReg) DecodedInstruction {
	in := DecodedInstruction{Valid: true, IsBranch: true}
	for i, s := range srcs {
		in.Srcs[i] = Reg(ClassInt, s)
	}
	return in
}
