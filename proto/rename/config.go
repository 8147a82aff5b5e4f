package rename

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/xyproto/env/v2"
)

// ════════════════════════════════════════════════════════════════════════════════════════════════
// PARAMETERS
// ════════════════════════════════════════════════════════════════════════════════════════════════
//
// Defaults describe a 6-wide front end. Pool sizes, ring capacity and checkpoint
// distance are policy, not algorithm, so every one of them can be overridden
// through Config or the environment (ConfigFromEnv).
//
// SystemVerilog equivalent:
//   parameter RENAME_WIDTH   = 6;
//   parameter COMMIT_WIDTH   = 6;
//   parameter INT_PREGS      = 224;
//   parameter FP_PREGS       = 192;
//   parameter SNAPSHOTS      = 4;
//   parameter SNAPSHOT_DIST  = 8;

const (
	// DefaultRenameWidth: instructions renamed per step.
	DefaultRenameWidth = 6

	// DefaultCommitWidth: commit and walk slots per step.
	DefaultCommitWidth = 6

	// DefaultIntPoolCapacity: integer physical registers.
	DefaultIntPoolCapacity = 224

	// DefaultFpPoolCapacity: floating point physical registers.
	DefaultFpPoolCapacity = 192

	// DefaultLogicalRegs: architectural registers per class.
	DefaultLogicalRegs = 32

	// DefaultCheckpoints: snapshot ring capacity.
	DefaultCheckpoints = 4

	// DefaultMinCheckpointDistance: order keys between consecutive checkpoints.
	DefaultMinCheckpointDistance = 8
)

// Environment variables read by ConfigFromEnv.
const (
	EnvRenameWidth        = "SUPRAX_RENAME_WIDTH"
	EnvCommitWidth        = "SUPRAX_COMMIT_WIDTH"
	EnvIntPool            = "SUPRAX_INT_POOL"
	EnvFpPool             = "SUPRAX_FP_POOL"
	EnvIntLogical         = "SUPRAX_INT_LOGICAL"
	EnvFpLogical          = "SUPRAX_FP_LOGICAL"
	EnvCheckpoints        = "SUPRAX_CHECKPOINTS"
	EnvCheckpointDistance = "SUPRAX_CHECKPOINT_DISTANCE"
	EnvNoMoveElimination  = "SUPRAX_NO_MOVE_ELIM"
)

// ErrInvalidConfig is wrapped by every error Config.Validate returns.
var ErrInvalidConfig = errors.New("invalid rename config")

// Config sizes the engine.
type Config struct {
	RenameWidth           int
	CommitWidth           int
	PoolCapacity          [NumClasses]int
	LogicalRegs           [NumClasses]int
	Checkpoints           int
	MinCheckpointDistance int
	MoveElimination       bool

	// Logger receives debug records for recovery events. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		RenameWidth:           DefaultRenameWidth,
		CommitWidth:           DefaultCommitWidth,
		PoolCapacity:          [NumClasses]int{DefaultIntPoolCapacity, DefaultFpPoolCapacity},
		LogicalRegs:           [NumClasses]int{DefaultLogicalRegs, DefaultLogicalRegs},
		Checkpoints:           DefaultCheckpoints,
		MinCheckpointDistance: DefaultMinCheckpointDistance,
		MoveElimination:       true,
	}
}

// ConfigFromEnv returns DefaultConfig with environment overrides applied.
// The environment is reread on every call.
func ConfigFromEnv() Config {
	env.Load()
	c := DefaultConfig()
	c.RenameWidth = env.Int(EnvRenameWidth, c.RenameWidth)
	c.CommitWidth = env.Int(EnvCommitWidth, c.CommitWidth)
	c.PoolCapacity[ClassInt] = env.Int(EnvIntPool, c.PoolCapacity[ClassInt])
	c.PoolCapacity[ClassFp] = env.Int(EnvFpPool, c.PoolCapacity[ClassFp])
	c.LogicalRegs[ClassInt] = env.Int(EnvIntLogical, c.LogicalRegs[ClassInt])
	c.LogicalRegs[ClassFp] = env.Int(EnvFpLogical, c.LogicalRegs[ClassFp])
	c.Checkpoints = env.Int(EnvCheckpoints, c.Checkpoints)
	c.MinCheckpointDistance = env.Int(EnvCheckpointDistance, c.MinCheckpointDistance)
	c.MoveElimination = !env.Bool(EnvNoMoveElimination)
	return c
}

// Validate reports the first inconsistent parameter.
func (c Config) Validate() error {
	if c.RenameWidth <= 0 {
		return fmt.Errorf("%w: rename width %d must be > 0", ErrInvalidConfig, c.RenameWidth)
	}
	if c.CommitWidth <= 0 {
		return fmt.Errorf("%w: commit width %d must be > 0", ErrInvalidConfig, c.CommitWidth)
	}
	for class := RegClass(0); class < NumClasses; class++ {
		logical, capacity := c.LogicalRegs[class], c.PoolCapacity[class]
		if logical <= 0 || logical > 256 {
			return fmt.Errorf("%w: %s logical registers %d must be in [1, 256]", ErrInvalidConfig, class, logical)
		}
		if capacity >= int(InvalidTag) {
			return fmt.Errorf("%w: %s pool capacity %d must be below %d", ErrInvalidConfig, class, capacity, InvalidTag)
		}
		if capacity < logical+c.RenameWidth {
			return fmt.Errorf("%w: %s pool capacity %d cannot back %d logical registers plus a %d-wide batch",
				ErrInvalidConfig, class, capacity, logical, c.RenameWidth)
		}
	}
	if c.Checkpoints < 0 || c.Checkpoints > MaxCheckpoints {
		return fmt.Errorf("%w: checkpoints %d must be in [0, %d]", ErrInvalidConfig, c.Checkpoints, MaxCheckpoints)
	}
	if c.MinCheckpointDistance < 0 {
		return fmt.Errorf("%w: checkpoint distance %d must be >= 0", ErrInvalidConfig, c.MinCheckpointDistance)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// bugf builds the value panicked with on invariant violations. These indicate an
// integration error in the caller, never a recoverable condition.
func bugf(format string, args ...any) error {
	return fmt.Errorf("BUG: "+format, args...)
}
