package rename

import (
	"context"
	"fmt"
	"log/slog"
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// COMMIT / WALK COORDINATOR
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// The Coordinator drains the sequencer's feedback once per step:
//
//	commit   oldest first: update ArchTable, release the displaced tag when no
//	         committed register references it any more, advance the architectural
//	         cursor, retire checkpoints
//	undo     youngest first: restore each old mapping, rewind the FreeList by the
//	         number of fresh tags undone, invalidate checkpoints past the walk
//	redirect invalidate checkpoints past the survivors, restore the newest
//	         surviving checkpoint (O(1)) or the architectural state
//	replay   oldest first after a redirect: re-apply the survivors between the
//	         restored point and the redirect target, re-claiming their tags
//
// Redirect and walk never share a step. Walking an instruction in the same direction
// as in the immediately preceding step, with no commit or admission in between,
// means the sequencer lost track of its walk pointer. Both are fatal.

// StepInput is one step's worth of sequencer feedback.
type StepInput struct {
	Commits     []CommitSlot
	Walk        WalkVector
	Redirect    Redirect
	HasRedirect bool
}

// StepOutput tells the Engine what the feedback did to the rename state.
type StepOutput struct {
	// Flushed is set when a redirect or walk changed speculative state; any rename
	// plan prepared before it is stale.
	Flushed bool
	// Recovery is valid when a redirect was absorbed.
	Recovery Recovery
	// Rewind is valid when an undo walk released order keys from RewindKey on.
	Rewind    bool
	RewindKey OrderKey

	Committed int
	Freed     int
	Walked    int
}

// Coordinator applies commits, walks and redirects.
type Coordinator struct {
	pools  [NumClasses]*FreeList
	rats   [NumClasses]*AliasTable
	arch   [NumClasses]*ArchTable
	ring   *SnapshotRing
	logger *slog.Logger

	lastWalked map[OrderKey]struct{}
	lastMode   WalkMode
	lastCommit OrderKey
	committed  bool
}

// NewCoordinator wires the coordinator to the shared rename state.
func NewCoordinator(pools [NumClasses]*FreeList, rats [NumClasses]*AliasTable, arch [NumClasses]*ArchTable, ring *SnapshotRing, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		pools:      pools,
		rats:       rats,
		arch:       arch,
		ring:       ring,
		logger:     logger,
		lastWalked: map[OrderKey]struct{}{},
	}
}

// NoteAdmission records that a batch was admitted, which ends the re-walk window.
func (c *Coordinator) NoteAdmission() {
	clear(c.lastWalked)
}

// SetWalkPending blocks or unblocks allocation in every class.
func (c *Coordinator) SetWalkPending(pending bool) {
	for _, pool := range c.pools {
		pool.SetWalkPending(pending)
	}
}

// Step processes one step of sequencer feedback.
func (c *Coordinator) Step(in StepInput) StepOutput {
	if in.HasRedirect && len(in.Walk.Slots) > 0 {
		panic(bugf("coordinator: redirect to key %d and a %d-slot %s walk in the same step",
			in.Redirect.Target, len(in.Walk.Slots), in.Walk.Mode))
	}

	var out StepOutput
	c.commit(in.Commits, &out)

	switch {
	case in.HasRedirect:
		clear(c.lastWalked)
		out.Flushed = true
		out.Recovery = c.redirect(in.Redirect)
	case len(in.Walk.Slots) > 0:
		out.Flushed = true
		c.walk(in.Walk, &out)
	default:
		clear(c.lastWalked)
		if in.Walk.Done {
			c.SetWalkPending(false)
		}
	}
	return out
}

func (c *Coordinator) commit(slots []CommitSlot, out *StepOutput) {
	for i := range slots {
		s := &slots[i]
		if !s.Valid {
			continue
		}
		if c.committed && s.Key <= c.lastCommit {
			panic(bugf("coordinator: commit of key %d after key %d", s.Key, c.lastCommit))
		}
		c.lastCommit, c.committed = s.Key, true
		out.Committed++

		if !s.HasDest {
			continue
		}
		if s.Allocated {
			c.pools[s.Class].CommitAllocated(1)
		}
		old, released := c.arch[s.Class].Commit(s.Dest, s.NewTag)
		if old != s.OldTag {
			panic(bugf("coordinator: key %d commits %s r%d over p%d, committed mapping is p%d",
				s.Key, s.Class, s.Dest, s.OldTag, old))
		}
		if released {
			c.pools[s.Class].Free(old)
			out.Freed++
		}
	}
	if out.Committed > 0 {
		c.ring.RetireUpTo(c.lastCommit)
		clear(c.lastWalked)
	}
}

// walk applies one walk vector.
//
// ALGORITHM (undo, slots youngest first):
//
//	STEP 1: For each slot with a destination: alias[dest] = OldTag
//	        (youngest first, so the oldest walked writer's old tag wins)
//	STEP 2: Per class, rewind the FreeList by the number of fresh tags undone
//	STEP 3: Rewind key = first key of the oldest walked instruction; invalidate
//	        checkpoints at or past it
//
// ALGORITHM (replay, slots oldest first):
//
//	STEP 1: For each slot with a destination: alias[dest] = NewTag
//	STEP 2: Per class, re-claim the fresh tags in order (FreeList.Advance)
func (c *Coordinator) walk(v WalkVector, out *StepOutput) {
	walked := make(map[OrderKey]struct{}, len(v.Slots))
	var prev, oldest OrderKey
	first := true
	var replayed [NumClasses][]PhysTag
	var rewind [NumClasses]int

	for i := range v.Slots {
		s := &v.Slots[i]
		if !s.Valid {
			continue
		}
		if _, ok := c.lastWalked[s.Key]; ok && v.Mode == c.lastMode {
			panic(bugf("coordinator: key %d %s-walked again in the following step", s.Key, v.Mode))
		}
		if !first {
			if v.Mode == WalkUndo && s.Key >= prev {
				panic(bugf("coordinator: undo walk key %d after %d is not youngest first", s.Key, prev))
			}
			if v.Mode == WalkReplay && s.Key <= prev {
				panic(bugf("coordinator: replay walk key %d after %d is not oldest first", s.Key, prev))
			}
		}
		prev, first = s.Key, false
		if v.Mode == WalkUndo {
			oldest = s.FirstKey()
		}
		walked[s.Key] = struct{}{}
		out.Walked++

		if !s.HasDest {
			continue
		}
		switch v.Mode {
		case WalkUndo:
			c.rats[s.Class].Restore(s.Dest, s.OldTag)
			if s.Allocated {
				rewind[s.Class]++
			}
		case WalkReplay:
			c.rats[s.Class].Write(s.Dest, s.NewTag)
			if s.Allocated {
				replayed[s.Class] = append(replayed[s.Class], s.NewTag)
			}
		}
	}

	for class := RegClass(0); class < NumClasses; class++ {
		switch v.Mode {
		case WalkUndo:
			c.pools[class].Rewind(rewind[class])
		case WalkReplay:
			c.pools[class].Advance(replayed[class])
		}
	}

	if v.Mode == WalkUndo && !first {
		out.Rewind, out.RewindKey = true, oldest
		c.ring.InvalidateFrom(oldest)
	}

	c.lastWalked, c.lastMode = walked, v.Mode
	c.SetWalkPending(!v.Done)
	c.logger.Debug("walk",
		slog.String("mode", v.Mode.String()),
		slog.Int("slots", out.Walked),
		slog.Bool("done", v.Done))
}

// redirect restores the newest surviving checkpoint, or the architectural state
// when none survives.
func (c *Coordinator) redirect(r Redirect) Recovery {
	resume := r.Resume()
	rec := Recovery{Valid: true, Resume: resume, CheckpointIndex: -1}

	dropped := c.ring.InvalidateFrom(resume)
	if i, ok := c.ring.Select(resume); ok {
		snap := c.ring.Get(i)
		for class := RegClass(0); class < NumClasses; class++ {
			c.pools[class].RestoreCheckpoint(snap.Cursors[class])
			c.rats[class].Load(snap.Tables[class])
		}
		rec.FromCheckpoint = true
		rec.CheckpointIndex = i
		rec.CheckpointKey = snap.Key
	} else {
		for class := RegClass(0); class < NumClasses; class++ {
			c.pools[class].RestoreArch()
			c.rats[class].Load(c.arch[class].Table())
		}
	}

	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []any{
			slog.Uint64("target", uint64(r.Target)),
			slog.Bool("flush_target", r.FlushTarget),
			slog.Int("invalidated", dropped),
			slog.Bool("checkpoint", rec.FromCheckpoint),
			slog.Uint64("checkpoint_key", uint64(rec.CheckpointKey)),
			slog.String("valid", fmt.Sprintf("%#x", c.ring.ValidMask())),
		}
		for _, fl := range c.pools {
			n := fl.Capacity()
			attrs = append(attrs, slog.Group(fl.Class().String(),
				slog.Int("head", fl.Head().Index(n)),
				slog.Bool("head_flag", fl.Head().Flag(n)),
				slog.Int("tail", fl.Tail().Index(n)),
				slog.Bool("tail_flag", fl.Tail().Flag(n)),
				slog.Int("free", fl.FreeCount())))
		}
		c.logger.Debug("redirect", attrs...)
	}
	return rec
}
