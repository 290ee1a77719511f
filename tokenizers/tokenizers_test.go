package tokenizers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-preprocessing/tokenizers/wordpiece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bertTokens = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]", "the", "quick", "brown", "fox"}

func writeFile(t *testing.T, dir, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFromDirBert(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, VocabFileName, strings.Join(bertTokens, "\n"))
	writeFile(t, dir, ConfigFileName, `{"tokenizer_class": "BertTokenizer", "do_lower_case": true}`)

	tok, err := FromDir(dir)
	require.NoError(t, err)
	require.IsType(t, &wordpiece.Tokenizer{}, tok)
	assert.Equal(t, []int{5, 6, 7, 8}, tok.Encode("The Quick Brown Fox"))
	id, err := tok.SpecialTokenID(TokMask)
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

func TestGetConfigInference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, VocabFileName, strings.Join(bertTokens, "\n"))
	config, err := GetConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "BertTokenizer", config.TokenizerClass)
	assert.True(t, config.DoLowerCase)
	assert.Equal(t, filepath.Join(dir, VocabFileName), config.VocabFile)
	assert.Empty(t, config.SpModelFile)

	// Without tokenizer_config.json a vocab.txt is loaded as a lowercasing BERT tokenizer.
	tok, err := FromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 8}, tok.Encode("THE FOX"))

	dir = t.TempDir()
	writeFile(t, dir, "spiece.model", "not a real model")
	config, err = GetConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "FNetTokenizer", config.TokenizerClass)
	assert.Equal(t, filepath.Join(dir, "spiece.model"), config.SpModelFile)
	_, err = FromDir(dir)
	require.Error(t, err)
}

func TestFromDirErrors(t *testing.T) {
	_, err := FromDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	// Empty directory.
	_, err = FromDir(t.TempDir())
	require.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, `{"tokenizer_class": "NoSuchTokenizer"}`)
	_, err = FromDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchTokenizer")

	// Missing special tokens in the vocabulary.
	dir = t.TempDir()
	writeFile(t, dir, VocabFileName, "the\nfox\n")
	_, err = FromDir(dir)
	require.ErrorIs(t, err, ErrMissingSpecialToken)
}
