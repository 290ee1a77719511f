package mlm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, 512, config.SequenceLength)
	assert.Equal(t, 0.15, config.MaskSelectionRate)
	assert.Equal(t, 96, config.MaskSelectionLength)
	assert.Equal(t, 0.8, config.MaskTokenRate)
	assert.Equal(t, 0.1, config.RandomTokenRate)
	assert.True(t, config.AddStartToken)
	assert.True(t, config.AddEndToken)
	assert.Nil(t, config.Seed)
}

func TestLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mlm.yaml")
	content := `
tokenizer_dir: /tmp/bert
sequence_length: 128
mask_selection_rate: 0.2
mask_selection_length: 20
add_end_token: false
seed: 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bert", config.TokenizerDir)
	assert.Equal(t, 128, config.SequenceLength)
	assert.Equal(t, 0.2, config.MaskSelectionRate)
	assert.Equal(t, 20, config.MaskSelectionLength)
	assert.Equal(t, DefaultMaskTokenRate, config.MaskTokenRate)
	assert.True(t, config.AddStartToken)
	assert.False(t, config.AddEndToken)
	require.NotNil(t, config.Seed)
	assert.Equal(t, uint64(7), *config.Seed)

	// Environment variables take precedence over the file.
	t.Setenv("MLM_SEQUENCE_LENGTH", "64")
	t.Setenv("MLM_SEED", "9")
	config, err = LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 64, config.SequenceLength)
	require.NotNil(t, config.Seed)
	assert.Equal(t, uint64(9), *config.Seed)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	configPath := filepath.Join(t.TempDir(), "mlm.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("mask_token_rate: 0.9\nrandom_token_rate: 0.2\n"), 0o644))
	_, err = LoadConfig(configPath)
	require.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("MLM_SEQUENCE_LENGTH", "0")
	_, err = LoadConfig("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
