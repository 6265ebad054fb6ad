package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigBuilder(t *testing.T) {
	cfg, err := NewConfigBuilder().
		WithGasLimit(500).
		WithMemoryLimit(64).
		WithInput([]byte{1, 2}).
		WithTransferredValue(9).
		Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cfg.GasLimit)
	assert.Equal(t, uint32(64), cfg.MemoryLimit)
	assert.Equal(t, []byte{1, 2}, cfg.Input)
	assert.Equal(t, uint64(9), cfg.TransferredValue)
}

func TestConfigBuilderTransferredValueOptional(t *testing.T) {
	cfg, err := NewConfigBuilder().WithGasLimit(1).WithMemoryLimit(17).Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cfg.TransferredValue)
}

func TestConfigBuilderMissingGasLimit(t *testing.T) {
	_, err := NewConfigBuilder().WithMemoryLimit(17).Build()
	assert.EqualError(t, err, "Required field gas_limit is not set")
}

func TestConfigBuilderMissingMemoryLimit(t *testing.T) {
	_, err := NewConfigBuilder().WithGasLimit(1).Build()
	assert.EqualError(t, err, "Required field memory_limit is not set")
}
