package rename

// ════════════════════════════════════════════════════════════════════════════════════════════════
// RENAME ALLOCATOR
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// The Allocator turns one batch of decoded instructions into renamed instructions.
// It is split in two halves so the Engine can run the commit/walk side in between:
//
//	Prepare  pure: reads previous-step state, resolves everything, writes nothing
//	Apply    only after the whole batch is admitted: allocates, writes the alias
//	         table, advances the order key counter, enqueues the checkpoint
//
// PREPARE ALGORITHM:
// ──────────────────
// Pass 1 (naive, per slot, against the alias table):
//  1. Classify the destination: no destination, zero register, eliminated move,
//     or a fresh allocation in its class
//  2. Read every source and the destination's old tag
//
// Admission gate: each class must be able to grant its whole request, or the
// batch stalls as a unit.
//
// Pass 2 (in slot order, intra-batch bypass):
//  3. For each source of slot i, the closest earlier slot j < i writing the same
//     logical register supplies its resolved destination instead of the stale read.
//     The old destination tag is bypassed the same way, so a second write to a
//     register within one batch records the first write's tag as its old tag.
//  4. An eliminated move takes its (already bypassed) source tag as destination.
//  5. Fresh tags are handed out in slot order from the peeked FreeList range.
//  6. Order keys come from the running counter: each slot reserves KeyCount keys
//     and is identified by the last one.
//
// Checkpoint candidate: the youngest branch in the batch, if the ring accepts its key.
//
// Example (see TestAllocator_Scenario):
//
//	slot 0: r5 = ...        r5 → pA (fresh)
//	slot 1: r6 = mov r5     r6 → pA (eliminated, bypassed from slot 0)
//	slot 2: r7 = r5 + ...   src r5 → pA (bypassed), r7 → pB (fresh)
//	slot 3: branch          checkpoint after slot 3

// Stall explains why a batch was not admitted. StallNone means it was.
type Stall uint8

const (
	StallNone      Stall = iota
	StallEmpty           // no valid instruction offered
	StallWalk            // a walk is in progress
	StallTags            // a FreeList cannot grant the batch
	StallSequencer       // the sequencer has no room for the batch
	StallFlush           // a redirect or walk this step discarded the batch

	numStalls
)

func (s Stall) String() string {
	switch s {
	case StallNone:
		return "none"
	case StallEmpty:
		return "empty"
	case StallWalk:
		return "walk"
	case StallTags:
		return "tags"
	case StallSequencer:
		return "sequencer"
	case StallFlush:
		return "flush"
	default:
		return "stall(?)"
	}
}

// Plan is the result of Prepare. It is applied only if its epoch is still current.
type Plan struct {
	Epoch      uint64
	Stall      Stall
	StallClass RegClass
	Renamed    []RenamedInstruction
	Need       [NumClasses]int
	Uops       int

	baseKey    OrderKey
	checkpoint int
}

// Allocator performs batch renaming.
type Allocator struct {
	width    int
	moveElim bool
	pools    [NumClasses]*FreeList
	rats     [NumClasses]*AliasTable
	ring     *SnapshotRing
	nextKey  OrderKey
}

// NewAllocator wires the allocator to the per-class pools and tables.
func NewAllocator(cfg Config, pools [NumClasses]*FreeList, rats [NumClasses]*AliasTable, ring *SnapshotRing) *Allocator {
	return &Allocator{
		width:    cfg.RenameWidth,
		moveElim: cfg.MoveElimination,
		pools:    pools,
		rats:     rats,
		ring:     ring,
	}
}

// NextKey returns the order key the next admitted instruction starts at.
func (a *Allocator) NextKey() OrderKey { return a.nextKey }

// Rewind resets the order key counter after a redirect or walk.
func (a *Allocator) Rewind(resume OrderKey) { a.nextKey = resume }

func (a *Allocator) eliminates(in *DecodedInstruction) bool {
	return a.moveElim && in.IsMove && in.Srcs[0].Valid && in.Srcs[0].Class == in.Dest.Class
}

// Prepare resolves a batch against the state left by the previous step.
func (a *Allocator) Prepare(batch []DecodedInstruction, epoch uint64) Plan {
	if len(batch) > a.width {
		panic(bugf("allocator: batch of %d exceeds rename width %d", len(batch), a.width))
	}
	p := Plan{Epoch: epoch, baseKey: a.nextKey, checkpoint: -1}
	for i := range batch {
		if batch[i].Valid {
			p.Renamed = append(p.Renamed, RenamedInstruction{
				Inst:     batch[i],
				PDest:    InvalidTag,
				OldPDest: InvalidTag,
			})
		}
	}
	if len(p.Renamed) == 0 {
		p.Stall = StallEmpty
		return p
	}
	for _, pool := range a.pools {
		if pool.WalkPending() {
			p.Stall = StallWalk
			return p
		}
	}

	// Pass 1: classification and naive reads.
	for i := range p.Renamed {
		ri := &p.Renamed[i]
		in := &ri.Inst
		for s, src := range in.Srcs {
			ri.PSrcs[s] = InvalidTag
			if src.Valid {
				ri.PSrcs[s] = a.rats[src.Class].Read(src.Reg)
			}
		}
		if in.Dest.Writable() {
			ri.HasDest = true
			ri.OldPDest = a.rats[in.Dest.Class].Read(in.Dest.Reg)
			if a.eliminates(in) {
				ri.Eliminated = true
			} else {
				ri.Allocated = true
				p.Need[in.Dest.Class]++
			}
		}
		p.Uops += int(in.KeyCount())
	}

	for class := RegClass(0); class < NumClasses; class++ {
		if !a.pools[class].CanAllocate(p.Need[class]) {
			p.Stall, p.StallClass = StallTags, class
			return p
		}
	}
	var fresh [NumClasses][]PhysTag
	for class := RegClass(0); class < NumClasses; class++ {
		fresh[class] = a.pools[class].Peek(p.Need[class])
	}

	// Pass 2: bypass, move elimination, tag and key assignment.
	var used [NumClasses]int
	key := p.baseKey
	for i := range p.Renamed {
		ri := &p.Renamed[i]
		in := &ri.Inst
		for s, src := range in.Srcs {
			if tag, ok := bypass(p.Renamed[:i], src); ok {
				ri.PSrcs[s] = tag
			}
		}
		if ri.HasDest {
			if tag, ok := bypass(p.Renamed[:i], in.Dest); ok {
				ri.OldPDest = tag
			}
			class := in.Dest.Class
			switch {
			case ri.Eliminated:
				ri.PDest = ri.PSrcs[0]
			case ri.Allocated:
				ri.PDest = fresh[class][used[class]]
				used[class]++
			}
		}
		key += OrderKey(in.KeyCount())
		ri.Key = key - 1
	}

	for i := len(p.Renamed) - 1; i >= 0; i-- {
		if !p.Renamed[i].Inst.IsBranch {
			continue
		}
		// Older branches have smaller keys, so if the youngest fails the
		// distance gate every other candidate fails it too.
		if a.ring.CanEnqueue(p.Renamed[i].Key) {
			p.checkpoint = i
			p.Renamed[i].Checkpoint = true
		}
		break
	}
	return p
}

// bypass returns the destination of the closest earlier writer of op, if any.
func bypass(earlier []RenamedInstruction, op Operand) (PhysTag, bool) {
	if !op.Writable() {
		return InvalidTag, false
	}
	for j := len(earlier) - 1; j >= 0; j-- {
		w := &earlier[j]
		if w.HasDest && w.Inst.Dest.Class == op.Class && w.Inst.Dest.Reg == op.Reg {
			return w.PDest, true
		}
	}
	return InvalidTag, false
}

// Apply commits an admitted plan to the pools, the alias tables and the ring.
func (a *Allocator) Apply(p *Plan) []RenamedInstruction {
	if p.Stall != StallNone {
		panic(bugf("allocator: apply of a plan stalled on %s", p.Stall))
	}
	if p.baseKey != a.nextKey {
		panic(bugf("allocator: plan prepared at key %d applied at key %d", p.baseKey, a.nextKey))
	}

	var base [NumClasses]Cursor
	var tags [NumClasses][]PhysTag
	for class := RegClass(0); class < NumClasses; class++ {
		base[class] = a.pools[class].Head()
		tags[class] = a.pools[class].Allocate(p.Need[class])
	}

	var used [NumClasses]int
	for i := range p.Renamed {
		ri := &p.Renamed[i]
		if ri.HasDest {
			class := ri.Inst.Dest.Class
			if ri.Allocated {
				if tags[class][used[class]] != ri.PDest {
					panic(bugf("allocator: slot %d planned p%d, pool granted p%d", i, ri.PDest, tags[class][used[class]]))
				}
				used[class]++
			}
			a.rats[class].Write(ri.Inst.Dest.Reg, ri.PDest)
		}
		if i == p.checkpoint {
			if !a.ring.CanEnqueue(ri.Key) {
				ri.Checkpoint = false
				continue
			}
			snap := Snapshot{Key: ri.Key}
			for class := RegClass(0); class < NumClasses; class++ {
				snap.Cursors[class] = base[class].Add(used[class])
				snap.Tables[class] = a.rats[class].Snapshot()
			}
			a.ring.Enqueue(snap)
		}
	}
	a.nextKey = p.Renamed[len(p.Renamed)-1].Key + 1
	return p.Renamed
}
