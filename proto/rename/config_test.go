package rename

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultIsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultRenameWidth, cfg.RenameWidth)
	require.Equal(t, [NumClasses]int{DefaultIntPoolCapacity, DefaultFpPoolCapacity}, cfg.PoolCapacity)
	require.True(t, cfg.MoveElimination)
	require.NotNil(t, cfg.logger())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "zero rename width", modify: func(c *Config) { c.RenameWidth = 0 }},
		{name: "negative commit width", modify: func(c *Config) { c.CommitWidth = -1 }},
		{name: "no logical registers", modify: func(c *Config) { c.LogicalRegs[ClassFp] = 0 }},
		{name: "too many logical registers", modify: func(c *Config) { c.LogicalRegs[ClassInt] = 300 }},
		{name: "pool too small for a batch", modify: func(c *Config) { c.PoolCapacity[ClassInt] = 37 }},
		{name: "pool collides with invalid tag", modify: func(c *Config) { c.PoolCapacity[ClassFp] = int(InvalidTag) }},
		{name: "ring too large", modify: func(c *Config) { c.Checkpoints = MaxCheckpoints + 1 }},
		{name: "negative ring", modify: func(c *Config) { c.Checkpoints = -1 }},
		{name: "negative distance", modify: func(c *Config) { c.MinCheckpointDistance = -1 }},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfig_SmallestPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolCapacity[ClassInt] = DefaultLogicalRegs + DefaultRenameWidth
	cfg.Checkpoints = 0

	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvRenameWidth, "4")
	t.Setenv(EnvIntPool, "64")
	t.Setenv(EnvFpLogical, "16")
	t.Setenv(EnvCheckpoints, "2")
	t.Setenv(EnvCheckpointDistance, "0")
	t.Setenv(EnvNoMoveElimination, "1")

	cfg := ConfigFromEnv()
	require.Equal(t, 4, cfg.RenameWidth)
	require.Equal(t, DefaultCommitWidth, cfg.CommitWidth)
	require.Equal(t, 64, cfg.PoolCapacity[ClassInt])
	require.Equal(t, DefaultFpPoolCapacity, cfg.PoolCapacity[ClassFp])
	require.Equal(t, 16, cfg.LogicalRegs[ClassFp])
	require.Equal(t, 2, cfg.Checkpoints)
	require.Equal(t, 0, cfg.MinCheckpointDistance)
	require.False(t, cfg.MoveElimination)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_Unset(t *testing.T) {
	t.Setenv(EnvNoMoveElimination, "")

	cfg := ConfigFromEnv()
	require.Equal(t, DefaultConfig().Checkpoints, cfg.Checkpoints)
	require.True(t, cfg.MoveElimination)
}

func TestConfigFromEnv_Rereads(t *testing.T) {
	// WHAT: Each call sees the environment as it is now
	// WHY: A second engine built after a change must not reuse stale values

	t.Setenv(EnvCheckpoints, "2")
	require.Equal(t, 2, ConfigFromEnv().Checkpoints)

	t.Setenv(EnvCheckpoints, "7")
	require.Equal(t, 7, ConfigFromEnv().Checkpoints)

	require.NoError(t, os.Unsetenv(EnvCheckpoints))
	require.Equal(t, DefaultCheckpoints, ConfigFromEnv().Checkpoints)
}
