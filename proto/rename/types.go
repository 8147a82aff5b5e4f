// ════════════════════════════════════════════════════════════════════════════════════════════════
// SUPRAX Register Renaming Engine - Hardware Reference Model
// ────────────────────────────────────────────────────────────────────────────────────────────────
//
// This package models the speculative physical-register renaming stage that sits between
// decode and the out-of-order window. Logical (architectural) registers named by the
// instruction stream are mapped onto a larger pool of physical tags so that WAR and WAW
// hazards disappear, while every speculative mapping stays undoable.
//
// UNITS (leaf first):
// ───────────────────
//  1. FreeList     - positional ring of free physical tags, one per register class
//  2. SnapshotRing - bounded ring of saved allocator cursors + alias table copies
//  3. AliasTable   - speculative logical → physical map (ArchTable holds the committed one)
//  4. Allocator    - batch rename: bypass, move elimination, all-or-nothing admission
//  5. Coordinator  - commit frees, undo walk, redirect recovery, replay walk
//  6. Engine       - per-step driver tying the units to an external sequencer (ROB)
//
// STEP MODEL:
// ───────────
// Every unit advances once per Engine.Step. Reads observe the state left by the previous
// step; the only same-step forwarding is the intra-batch bypass inside the Allocator.
// A redirect advances the epoch, and any rename plan computed against an older epoch is
// dropped before it can write state.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rename

import "fmt"

// ════════════════════════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ════════════════════════════════════════════════════════════════════════════════════════════════

// RegClass selects the register file an operand lives in.
// Each class owns an independent FreeList, AliasTable and ArchTable.
type RegClass uint8

const (
	ClassInt RegClass = iota // Integer registers (logical 0 is hard-wired zero)
	ClassFp                  // Floating point registers

	// NumClasses is the number of renamed register classes.
	NumClasses = 2
)

func (c RegClass) String() string {
	switch c {
	case ClassInt:
		return "int"
	case ClassFp:
		return "fp"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// PhysTag names one physical register in a class pool: [0, PoolCapacity).
type PhysTag uint16

// InvalidTag marks "no tag" in fields that are not meaningful for a slot.
const InvalidTag PhysTag = 0xFFFF

// LogicalReg is an architectural register index within a class.
type LogicalReg uint8

// ZeroReg is the hard-wired zero register of ClassInt. It is never renamed:
// reads always return physical tag 0 and writes never allocate.
const ZeroReg LogicalReg = 0

// OrderKey is the sequencer order of a terminal micro-op. Keys increase
// monotonically in program order and are never reused until a redirect or a
// walk rewinds the allocator's counter.
type OrderKey uint64

// MaxSources is the number of source operand slots carried by an instruction.
const MaxSources = 3

// ════════════════════════════════════════════════════════════════════════════════════════════════
// INSTRUCTIONS
// ════════════════════════════════════════════════════════════════════════════════════════════════

// Operand is an optional register reference. Valid=false means the slot is unused.
type Operand struct {
	Valid bool
	Class RegClass
	Reg   LogicalReg
}

// Reg builds a valid operand.
func Reg(class RegClass, r LogicalReg) Operand {
	return Operand{Valid: true, Class: class, Reg: r}
}

// IsZero reports whether the operand names the hard-wired integer zero register.
func (o Operand) IsZero() bool {
	return o.Valid && o.Class == ClassInt && o.Reg == ZeroReg
}

// Writable reports whether a write to this operand creates a new mapping.
func (o Operand) Writable() bool {
	return o.Valid && !o.IsZero()
}

func (o Operand) String() string {
	if !o.Valid {
		return "-"
	}
	if o.Class == ClassFp {
		return fmt.Sprintf("f%d", o.Reg)
	}
	return fmt.Sprintf("r%d", o.Reg)
}

// DecodedInstruction is one slot of a rename batch as delivered by decode.
//
// IsMove marks a register copy Dest <- Srcs[0] that may be eliminated.
// IsBranch marks control instructions eligible for a checkpoint.
// Uops is the number of terminal micro-ops (order keys) the instruction consumes;
// zero is treated as one.
type DecodedInstruction struct {
	Valid    bool
	PC       uint64
	Srcs     [MaxSources]Operand
	Dest     Operand
	IsMove   bool
	IsBranch bool
	Uops     uint8
}

// KeyCount returns the number of order keys the instruction reserves.
func (d *DecodedInstruction) KeyCount() uint64 {
	if d.Uops == 0 {
		return 1
	}
	return uint64(d.Uops)
}

// RenamedInstruction is the record handed downstream and to the sequencer.
//
// FIELDS:
//
//	PSrcs      resolved source tags (RAT read, then same-batch bypass)
//	PDest      destination tag: fresh, or the source tag for an eliminated move
//	OldPDest   tag the destination register held before this rename (bypassed
//	           across the batch); restored on walk, released at commit
//	HasDest    the alias table was written for Inst.Dest
//	Allocated  PDest came out of the FreeList (redefinition with a new tag)
//	Eliminated move satisfied by aliasing, no FreeList allocation
//	Key        order key of the terminal micro-op; the instruction owns
//	           keys (Key-Uops, Key]
//	Checkpoint a snapshot was captured right after this instruction
type RenamedInstruction struct {
	Inst       DecodedInstruction
	PSrcs      [MaxSources]PhysTag
	PDest      PhysTag
	OldPDest   PhysTag
	HasDest    bool
	Allocated  bool
	Eliminated bool
	Key        OrderKey
	Checkpoint bool
}

// FirstKey returns the oldest order key owned by the instruction.
func (ri *RenamedInstruction) FirstKey() OrderKey {
	return ri.Key + 1 - OrderKey(ri.Inst.KeyCount())
}

// CommitSlot builds the commit vector record for this instruction.
func (ri *RenamedInstruction) CommitSlot() CommitSlot {
	return CommitSlot{
		Valid:      true,
		Key:        ri.Key,
		Class:      ri.Inst.Dest.Class,
		Dest:       ri.Inst.Dest.Reg,
		HasDest:    ri.HasDest,
		OldTag:     ri.OldPDest,
		NewTag:     ri.PDest,
		Allocated:  ri.Allocated,
		Eliminated: ri.Eliminated,
	}
}

// WalkSlot builds the walk vector record for this instruction.
func (ri *RenamedInstruction) WalkSlot() WalkSlot {
	return WalkSlot{
		Valid:     true,
		Key:       ri.Key,
		Uops:      uint8(ri.Inst.KeyCount()),
		Class:     ri.Inst.Dest.Class,
		Dest:      ri.Inst.Dest.Reg,
		HasDest:   ri.HasDest,
		OldTag:    ri.OldPDest,
		NewTag:    ri.PDest,
		Allocated: ri.Allocated,
	}
}

// ════════════════════════════════════════════════════════════════════════════════════════════════
// SEQUENCER INTERFACE
// ════════════════════════════════════════════════════════════════════════════════════════════════

// CommitSlot reports one retired instruction, in commit order.
// Allocated=true means the instruction redefined its destination with a genuinely
// new tag (not an eliminated move, not a zero-register write).
type CommitSlot struct {
	Valid      bool
	Key        OrderKey
	Class      RegClass
	Dest       LogicalReg
	HasDest    bool
	OldTag     PhysTag
	NewTag     PhysTag
	Allocated  bool
	Eliminated bool
}

// WalkSlot reports one instruction being walked.
type WalkSlot struct {
	Valid     bool
	Key       OrderKey
	Uops      uint8
	Class     RegClass
	Dest      LogicalReg
	HasDest   bool
	OldTag    PhysTag
	NewTag    PhysTag
	Allocated bool
}

// FirstKey returns the oldest order key the walked instruction occupies.
func (s *WalkSlot) FirstKey() OrderKey {
	n := OrderKey(s.Uops)
	if n == 0 {
		n = 1
	}
	return s.Key + 1 - n
}

// WalkMode selects the direction of a walk vector.
type WalkMode uint8

const (
	// WalkUndo rolls speculative renames back, youngest first.
	WalkUndo WalkMode = iota
	// WalkReplay re-applies surviving renames oldest first after a redirect
	// restored an older point (checkpoint or architectural state).
	WalkReplay
)

func (m WalkMode) String() string {
	if m == WalkReplay {
		return "replay"
	}
	return "undo"
}

// WalkVector is one step's worth of walk slots. Done=true marks the last vector
// of the walk; the FreeLists stop refusing allocation after it.
type WalkVector struct {
	Mode  WalkMode
	Slots []WalkSlot
	Done  bool
}

// Redirect abandons speculative work. FlushTarget=false keeps the target
// instruction and discards everything younger.
type Redirect struct {
	Target      OrderKey
	FlushTarget bool
}

// Resume returns the first order key that does not survive the redirect.
// Survivors are exactly the keys strictly below it.
func (r Redirect) Resume() OrderKey {
	if r.FlushTarget {
		return r.Target
	}
	return r.Target + 1
}

// Recovery describes how a redirect was absorbed.
// When FromCheckpoint is set the state was restored to the point right after
// CheckpointKey and the sequencer must replay surviving instructions with keys in
// (CheckpointKey, Resume). Otherwise the architectural state was restored and every
// uncommitted survivor must be replayed.
type Recovery struct {
	Valid           bool
	Resume          OrderKey
	FromCheckpoint  bool
	CheckpointIndex int
	CheckpointKey   OrderKey
}

// Sequencer is the external reorder buffer as seen by the renaming engine.
//
// Per step the engine calls CommitVector, WalkVector and RedirectSignal once, then,
// if a redirect was absorbed, Recover, and finally RequestAdmission/Enqueue for the
// rename batch. Redirect and a non-empty walk vector in the same step are fatal.
type Sequencer interface {
	// RequestAdmission reports whether uops more order keys fit this step.
	RequestAdmission(uops int) bool
	// Enqueue hands over a fully admitted batch.
	Enqueue(batch []RenamedInstruction)
	// CommitVector returns the instructions retired this step, oldest first.
	CommitVector() []CommitSlot
	// WalkVector returns this step's walk slots.
	WalkVector() WalkVector
	// RedirectSignal returns the pending redirect, if any.
	RedirectSignal() (Redirect, bool)
	// Recover tells the sequencer where the engine restored to and returns the
	// number of instructions it will replay.
	Recover(rec Recovery) int
}
