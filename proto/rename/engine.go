package rename

import (
	"fmt"
	"log/slog"
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// ENGINE
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// Engine owns one FreeList, AliasTable and ArchTable per register class, the
// SnapshotRing, the Allocator and the Coordinator, and drives them against an
// external Sequencer once per Step.
//
// STEP ORDER:
// ───────────
//  1. Prepare the offered batch against the state left by the previous step,
//     stamped with the current epoch
//  2. Drain the sequencer: commit vector, walk vector, redirect signal
//  3. Coordinator applies them; a redirect or walk advances the epoch
//  4. After a redirect: rewind the order key counter, hand the Recovery to the
//     sequencer, block renaming while it replays
//  5. Drop a stale plan (StallFlush), then request admission from the sequencer
//  6. Apply the plan and enqueue the renamed batch
//
// Admission is all-or-nothing across every FreeList and the sequencer: either
// every valid instruction of the batch is renamed this step or none is.

// Stats counts engine activity since construction.
type Stats struct {
	Steps         uint64
	Admitted      uint64 // instructions renamed
	Batches       uint64 // batches renamed
	Stalls        [numStalls]uint64
	Eliminated    uint64 // moves satisfied by aliasing
	Allocated     uint64 // fresh tags granted
	Committed     uint64
	Freed         uint64 // tags returned to a FreeList at commit
	Checkpoints   uint64 // snapshots taken
	Redirects     uint64
	Restored      uint64 // redirects absorbed from a checkpoint
	ArchRestores  uint64 // redirects that fell back to the architectural state
	UndoWalked    uint64
	ReplayWalked  uint64
	ReplayPending uint64 // instructions the sequencer announced for replay
}

// StallCount returns how many steps stalled for reason s.
func (s Stats) StallCount(reason Stall) uint64 { return s.Stalls[reason] }

// StepResult reports what one Step did.
type StepResult struct {
	Admitted bool
	Stall    Stall
	// StallClass names the exhausted pool when Stall == StallTags.
	StallClass RegClass
	Renamed    []RenamedInstruction
	Recovery   Recovery
	Epoch      uint64
}

// Engine is the renaming stage.
type Engine struct {
	cfg    Config
	seq    Sequencer
	logger *slog.Logger

	pools [NumClasses]*FreeList
	rats  [NumClasses]*AliasTable
	arch  [NumClasses]*ArchTable
	ring  *SnapshotRing

	alloc *Allocator
	coord *Coordinator

	epoch uint64
	stats Stats
}

// NewEngine validates cfg and builds an engine attached to seq.
func NewEngine(cfg Config, seq Sequencer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, fmt.Errorf("%w: nil sequencer", ErrInvalidConfig)
	}
	e := &Engine{cfg: cfg, seq: seq, logger: cfg.logger()}
	for class := RegClass(0); class < NumClasses; class++ {
		logical, capacity := cfg.LogicalRegs[class], cfg.PoolCapacity[class]
		e.pools[class] = NewFreeList(class, capacity, logical)
		e.rats[class] = NewAliasTable(class, logical)
		e.arch[class] = NewArchTable(class, logical, capacity)
	}
	e.ring = NewSnapshotRing(cfg.Checkpoints, cfg.MinCheckpointDistance)
	e.alloc = NewAllocator(cfg, e.pools, e.rats, e.ring)
	e.coord = NewCoordinator(e.pools, e.rats, e.arch, e.ring, e.logger)
	return e, nil
}

// Step advances the engine by one step, offering batch for renaming.
// batch may be empty, which only drains the sequencer.
func (e *Engine) Step(batch []DecodedInstruction) StepResult {
	e.stats.Steps++
	plan := e.alloc.Prepare(batch, e.epoch)

	in := StepInput{
		Commits: e.seq.CommitVector(),
		Walk:    e.seq.WalkVector(),
	}
	in.Redirect, in.HasRedirect = e.seq.RedirectSignal()
	out := e.coord.Step(in)
	e.account(in, out)

	if out.Flushed {
		e.epoch++
	}
	if out.Recovery.Valid {
		e.alloc.Rewind(out.Recovery.Resume)
		n := e.seq.Recover(out.Recovery)
		if n > 0 {
			e.coord.SetWalkPending(true)
		}
		e.stats.ReplayPending += uint64(n)
	}
	if out.Rewind {
		e.alloc.Rewind(out.RewindKey)
	}

	res := StepResult{Stall: plan.Stall, StallClass: plan.StallClass, Recovery: out.Recovery, Epoch: e.epoch}
	if res.Stall == StallNone && plan.Epoch != e.epoch {
		res.Stall = StallFlush
	}
	if res.Stall == StallNone && !e.seq.RequestAdmission(plan.Uops) {
		res.Stall = StallSequencer
	}
	if res.Stall != StallNone {
		e.stats.Stalls[res.Stall]++
		e.logger.Debug("stall",
			slog.String("reason", res.Stall.String()),
			slog.Uint64("count", e.stats.StallCount(res.Stall)))
		return res
	}

	res.Renamed = e.alloc.Apply(&plan)
	res.Admitted = true
	e.seq.Enqueue(res.Renamed)
	e.coord.NoteAdmission()

	e.stats.Batches++
	e.stats.Admitted += uint64(len(res.Renamed))
	for i := range res.Renamed {
		ri := &res.Renamed[i]
		if ri.Eliminated {
			e.stats.Eliminated++
		}
		if ri.Allocated {
			e.stats.Allocated++
		}
		if ri.Checkpoint {
			e.stats.Checkpoints++
			slot, _ := e.ring.Newest()
			e.logger.Debug("checkpoint",
				slog.Uint64("key", uint64(ri.Key)),
				slog.Uint64("pc", ri.Inst.PC),
				slog.Int("slot", slot))
		}
	}
	return res
}

func (e *Engine) account(in StepInput, out StepOutput) {
	e.stats.Committed += uint64(out.Committed)
	e.stats.Freed += uint64(out.Freed)
	if out.Walked > 0 {
		if in.Walk.Mode == WalkReplay {
			e.stats.ReplayWalked += uint64(out.Walked)
		} else {
			e.stats.UndoWalked += uint64(out.Walked)
		}
	}
	if out.Recovery.Valid {
		e.stats.Redirects++
		if out.Recovery.FromCheckpoint {
			e.stats.Restored++
		} else {
			e.stats.ArchRestores++
		}
	}
}

// CheckConservation verifies, per class, that every physical tag is in exactly one
// of three places: free, held by an uncommitted instruction, or referenced by the
// committed mapping. It also checks cursor ordering and the checkpoint ring.
func (e *Engine) CheckConservation() error {
	for class := RegClass(0); class < NumClasses; class++ {
		pool, arch := e.pools[class], e.arch[class]
		if err := pool.Check(); err != nil {
			return err
		}
		free, spec, live := pool.FreeCount(), pool.SpecCount(), arch.Live()
		if free+spec+live != pool.Capacity() {
			return bugf("%s pool: free %d + speculative %d + committed %d != capacity %d",
				class, free, spec, live, pool.Capacity())
		}
		refs := 0
		for tag := 0; tag < pool.Capacity(); tag++ {
			refs += arch.Refs(PhysTag(tag))
		}
		if refs != e.cfg.LogicalRegs[class] {
			return bugf("%s arch table: %d references for %d logical registers",
				class, refs, e.cfg.LogicalRegs[class])
		}
	}
	return e.ring.Check()
}

// Stats returns a copy of the activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Epoch returns the current flush epoch.
func (e *Engine) Epoch() uint64 { return e.epoch }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Pool returns the FreeList of class.
func (e *Engine) Pool(class RegClass) *FreeList { return e.pools[class] }

// Alias returns the speculative AliasTable of class.
func (e *Engine) Alias(class RegClass) *AliasTable { return e.rats[class] }

// Arch returns the committed ArchTable of class.
func (e *Engine) Arch(class RegClass) *ArchTable { return e.arch[class] }

// Ring returns the checkpoint ring.
func (e *Engine) Ring() *SnapshotRing { return e.ring }

// NextKey returns the order key the next admitted instruction starts at.
func (e *Engine) NextKey() OrderKey { return e.alloc.NextKey() }
