// ════════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX Reorder Buffer - Reference Sequencer
// ────────────────────────────────────────────────────────────────────────────────────────────────
//
// ROB is a black-box reorder buffer that drives the renaming engine through the
// rename.Sequencer interface. It holds renamed instructions in program order,
// commits completed ones in order, and turns redirects and rollbacks into the walk
// vectors the engine consumes.
//
// RECOVERY FLOWS:
// ───────────────
//
//	Redirect(target, flush)   mispredicted branch
//	  step N:   RedirectSignal drops entries at or past the resume key,
//	            engine restores a checkpoint (or the committed state),
//	            Recover queues the survivors after the restored point
//	  step N+1: WalkVector returns replay slots, oldest first, WalkWidth per step
//
//	Rollback(from)            exception-style discard without a checkpoint
//	  step N..: WalkVector returns undo slots, youngest first, WalkWidth per step
//
// While a redirect or walk is in flight the ROB neither commits nor admits.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rob

import (
	"errors"
	"fmt"

	"github.com/maemowong/suprax/proto/rename"
)

var (
	// ErrInvalidConfig is wrapped by every error Config.Validate returns.
	ErrInvalidConfig = errors.New("invalid rob config")
	// ErrBusy is returned when a redirect or rollback is requested while another
	// recovery is still in flight.
	ErrBusy = errors.New("rob: recovery in progress")
	// ErrUnknownKey is returned for an order key that names no in-flight instruction.
	ErrUnknownKey = errors.New("rob: no in-flight instruction with this key")
)

// DefaultCapacity is the number of order keys the reference ROB holds.
const DefaultCapacity = 256

// Config sizes the ROB.
type Config struct {
	// Capacity bounds the order keys (terminal micro-ops) in flight.
	Capacity int
	// CommitWidth bounds the commit vector.
	CommitWidth int
	// WalkWidth bounds each walk vector.
	WalkWidth int
	// AutoComplete marks instructions complete on enqueue, so they commit as soon
	// as they reach the head.
	AutoComplete bool
}

// DefaultConfig returns a ROB matching the engine's default widths.
func DefaultConfig() Config {
	return Config{
		Capacity:    DefaultCapacity,
		CommitWidth: rename.DefaultCommitWidth,
		WalkWidth:   rename.DefaultCommitWidth,
	}
}

// Validate reports the first inconsistent parameter.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity %d must be > 0", ErrInvalidConfig, c.Capacity)
	case c.CommitWidth <= 0:
		return fmt.Errorf("%w: commit width %d must be > 0", ErrInvalidConfig, c.CommitWidth)
	case c.WalkWidth <= 0:
		return fmt.Errorf("%w: walk width %d must be > 0", ErrInvalidConfig, c.WalkWidth)
	}
	return nil
}

// Stats counts ROB activity.
type Stats struct {
	Enqueued uint64
	Commits  uint64
	Flushed  uint64 // entries dropped by redirects
	Undone   uint64 // entries dropped by rollbacks
	Replayed uint64 // replay slots handed to the engine
}

type entry struct {
	inst      rename.RenamedInstruction
	completed bool
}

// ROB is the reference sequencer.
type ROB struct {
	cfg     Config
	entries []entry

	head  int // oldest instruction (commit)
	tail  int // next free slot (enqueue)
	count int // valid entries
	uops  int // order keys held

	lastKey rename.OrderKey
	hasLast bool

	redirect    rename.Redirect
	hasRedirect bool

	walk     []rename.WalkSlot // queued in walk order
	walkMode rename.WalkMode

	stats Stats
}

// New builds an empty ROB.
func New(cfg Config) (*ROB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ROB{cfg: cfg, entries: make([]entry, cfg.Capacity)}, nil
}

var _ rename.Sequencer = (*ROB)(nil)

// Len returns the number of in-flight instructions.
func (r *ROB) Len() int { return r.count }

// Used returns the number of order keys held.
func (r *ROB) Used() int { return r.uops }

// Stats returns a copy of the activity counters.
func (r *ROB) Stats() Stats { return r.stats }

// Walking reports whether walk slots are still queued.
func (r *ROB) Walking() bool { return len(r.walk) > 0 }

// Busy reports whether a redirect or walk is in flight.
func (r *ROB) Busy() bool { return r.hasRedirect || r.Walking() }

// Entries returns the in-flight instructions, oldest first.
func (r *ROB) Entries() []rename.RenamedInstruction {
	out := make([]rename.RenamedInstruction, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.at(i).inst)
	}
	return out
}

func (r *ROB) at(i int) *entry {
	return &r.entries[(r.head+i)%len(r.entries)]
}

// RequestAdmission reports whether uops more order keys fit.
func (r *ROB) RequestAdmission(uops int) bool {
	return !r.Busy() && r.uops+uops <= r.cfg.Capacity
}

// Enqueue appends an admitted batch in program order.
func (r *ROB) Enqueue(batch []rename.RenamedInstruction) {
	for i := range batch {
		ri := batch[i]
		n := int(ri.Inst.KeyCount())
		if r.uops+n > r.cfg.Capacity {
			panic(fmt.Errorf("BUG: rob: enqueue of key %d overflows %d/%d keys", ri.Key, r.uops, r.cfg.Capacity))
		}
		if r.hasLast && ri.Key <= r.lastKey {
			panic(fmt.Errorf("BUG: rob: enqueue of key %d after key %d", ri.Key, r.lastKey))
		}
		r.entries[r.tail] = entry{inst: ri, completed: r.cfg.AutoComplete}
		r.tail = (r.tail + 1) % len(r.entries)
		r.count++
		r.uops += n
		r.lastKey, r.hasLast = ri.Key, true
		r.stats.Enqueued++
	}
}

// Complete marks the instruction with the given key as executed.
func (r *ROB) Complete(key rename.OrderKey) error {
	for i := 0; i < r.count; i++ {
		if e := r.at(i); e.inst.Key == key {
			e.completed = true
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrUnknownKey, key)
}

// CompleteAll marks every in-flight instruction as executed.
func (r *ROB) CompleteAll() {
	for i := 0; i < r.count; i++ {
		r.at(i).completed = true
	}
}

// CommitVector retires up to CommitWidth completed instructions from the head.
//
// ALGORITHM:
//
//	STEP 1: Nothing commits while a redirect or walk is in flight
//	STEP 2: From the head, stop at the first instruction not yet completed
//	STEP 3: Emit a commit slot per retired instruction, advance head
func (r *ROB) CommitVector() []rename.CommitSlot {
	if r.Busy() {
		return nil
	}
	var out []rename.CommitSlot
	for len(out) < r.cfg.CommitWidth && r.count > 0 {
		e := &r.entries[r.head]
		if !e.completed {
			break
		}
		out = append(out, e.inst.CommitSlot())
		r.uops -= int(e.inst.Inst.KeyCount())
		*e = entry{}
		r.head = (r.head + 1) % len(r.entries)
		r.count--
		r.stats.Commits++
	}
	return out
}

// Redirect schedules a redirect at target. The engine picks it up on its next step.
func (r *ROB) Redirect(target rename.OrderKey, flushTarget bool) error {
	if r.Busy() {
		return ErrBusy
	}
	if !r.holds(target) {
		return fmt.Errorf("%w: %d", ErrUnknownKey, target)
	}
	r.redirect = rename.Redirect{Target: target, FlushTarget: flushTarget}
	r.hasRedirect = true
	return nil
}

// RedirectSignal hands the pending redirect to the engine and drops every entry that
// does not survive it.
func (r *ROB) RedirectSignal() (rename.Redirect, bool) {
	if !r.hasRedirect {
		return rename.Redirect{}, false
	}
	r.hasRedirect = false
	resume := r.redirect.Resume()
	r.stats.Flushed += uint64(len(r.dropFrom(resume)))
	r.resetLast()
	return r.redirect, true
}

// Recover queues replay slots for the survivors younger than the restored point,
// oldest first, and returns how many there are.
func (r *ROB) Recover(rec rename.Recovery) int {
	var slots []rename.WalkSlot
	for i := 0; i < r.count; i++ {
		ri := &r.at(i).inst
		if rec.FromCheckpoint && ri.Key <= rec.CheckpointKey {
			continue
		}
		if ri.Key >= rec.Resume {
			panic(fmt.Errorf("BUG: rob: key %d survived a redirect resuming at %d", ri.Key, rec.Resume))
		}
		slots = append(slots, ri.WalkSlot())
	}
	r.walk, r.walkMode = slots, rename.WalkReplay
	r.stats.Replayed += uint64(len(slots))
	return len(slots)
}

// Rollback discards every in-flight instruction at or past from and queues undo
// slots for them, youngest first.
func (r *ROB) Rollback(from rename.OrderKey) error {
	if r.Busy() {
		return ErrBusy
	}
	dropped := r.dropFrom(from)
	r.resetLast()
	r.walk, r.walkMode = dropped, rename.WalkUndo
	r.stats.Undone += uint64(len(dropped))
	return nil
}

// WalkVector pops up to WalkWidth queued walk slots.
func (r *ROB) WalkVector() rename.WalkVector {
	if r.hasRedirect || len(r.walk) == 0 {
		return rename.WalkVector{}
	}
	n := min(r.cfg.WalkWidth, len(r.walk))
	v := rename.WalkVector{Mode: r.walkMode, Slots: r.walk[:n:n]}
	r.walk = r.walk[n:]
	v.Done = len(r.walk) == 0
	if v.Done {
		r.walk = nil
	}
	return v
}

// dropFrom removes entries whose terminal key is at or past from, youngest first,
// and returns their walk slots in that order.
func (r *ROB) dropFrom(from rename.OrderKey) []rename.WalkSlot {
	var dropped []rename.WalkSlot
	for r.count > 0 {
		last := (r.tail - 1 + len(r.entries)) % len(r.entries)
		e := &r.entries[last]
		if e.inst.Key < from {
			break
		}
		dropped = append(dropped, e.inst.WalkSlot())
		r.uops -= int(e.inst.Inst.KeyCount())
		*e = entry{}
		r.tail = last
		r.count--
	}
	return dropped
}

func (r *ROB) resetLast() {
	if r.count == 0 {
		r.hasLast = false
		return
	}
	r.lastKey = r.at(r.count - 1).inst.Key
}

func (r *ROB) holds(key rename.OrderKey) bool {
	for i := 0; i < r.count; i++ {
		if r.at(i).inst.Key == key {
			return true
		}
	}
	return false
}
