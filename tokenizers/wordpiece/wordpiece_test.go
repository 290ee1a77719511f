package wordpiece

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/gomlx/go-preprocessing/tokenizers/vocabulary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
	"THE", "QUICK", "BROWN", "FOX",
	"the", "quick", "brown", "fox",
	"jump", "##ed",
}

func newVocab(t *testing.T, tokens []string) *vocabulary.Vocabulary {
	vocab, err := vocabulary.New(tokens)
	require.NoError(t, err)
	return vocab
}

func TestEncode(t *testing.T) {
	tok, err := New(newVocab(t, testTokens))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7, 8}, tok.Encode("THE QUICK BROWN FOX"))
	assert.Empty(t, tok.Encode(""))
	assert.Empty(t, tok.Encode("   "))

	tok, err = New(newVocab(t, testTokens), WithLowercase(true))
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10, 11, 12}, tok.Encode("THE QUICK BROWN FOX"))
	assert.Equal(t, []int{9, 13, 14}, tok.Encode("the jumped"))

	// Unknown words map to [UNK].
	assert.Equal(t, []int{9, 1}, tok.Encode("the zebra"))
}

func TestSpecialTokensInStrings(t *testing.T) {
	tok, err := New(newVocab(t, testTokens), WithSpecialTokensInStrings(true))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 4, 8, 3, 0}, tok.Encode("[CLS] THE [MASK] FOX [SEP] [PAD]"))
	assert.Equal(t, []int{4, 4}, tok.Encode("[MASK][MASK]"))

	// Without the option the brackets are split as punctuation.
	tok, err = New(newVocab(t, testTokens))
	require.NoError(t, err)
	ids := tok.Encode("THE [MASK]")
	assert.Equal(t, 5, ids[0])
	assert.NotContains(t, ids, 4)
}

func TestDecode(t *testing.T) {
	tok, err := New(newVocab(t, testTokens), WithLowercase(true))
	require.NoError(t, err)
	assert.Equal(t, "the quick fox jumped", tok.Decode([]int{9, 10, 12, 13, 14}))
	assert.Equal(t, "[CLS] the [UNK]", tok.Decode([]int{2, 9, 100}))
}

func TestSpecialTokenID(t *testing.T) {
	tok, err := New(newVocab(t, testTokens))
	require.NoError(t, err)
	assert.Equal(t, len(testTokens), tok.VocabularySize())

	for token, expected := range map[api.SpecialToken]int{
		api.TokPad:                 0,
		api.TokUnknown:             1,
		api.TokClassification:      2,
		api.TokSeparator:           3,
		api.TokMask:                4,
		api.TokBeginningOfSentence: 2,
		api.TokEndOfSentence:       3,
	} {
		id, err := tok.SpecialTokenID(token)
		require.NoError(t, err, "token %s", token)
		assert.Equal(t, expected, id, "token %s", token)
	}
	_, err = tok.SpecialTokenID(api.SpecialToken(99))
	require.ErrorIs(t, err, api.ErrMissingSpecialToken)
}

func TestMissingSpecialTokens(t *testing.T) {
	_, err := New(newVocab(t, []string{"a", "b", "c"}))
	require.ErrorIs(t, err, api.ErrMissingSpecialToken)

	// Custom special token strings.
	tokens := []string{"<pad>", "<unk>", "<cls>", "<sep>", "<mask>", "fox"}
	_, err = New(newVocab(t, tokens))
	require.ErrorIs(t, err, api.ErrMissingSpecialToken)
	tok, err := New(newVocab(t, tokens), WithSpecialTokensInStrings(true), WithSpecialTokenStrings(map[api.SpecialToken]string{
		api.TokPad:            "<pad>",
		api.TokUnknown:        "<unk>",
		api.TokClassification: "<cls>",
		api.TokSeparator:      "<sep>",
		api.TokMask:           "<mask>",
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 4}, tok.Encode("<cls> fox<mask>"))
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(vocabPath, []byte(strings.Join(testTokens, "\n")), 0o644))

	tok, err := NewFromConfig(&api.Config{VocabFile: vocabPath, DoLowerCase: true}, dir)
	require.NoError(t, err)
	assert.Equal(t, []int{9, 12}, tok.Encode("The Fox"))

	_, err = NewFromConfig(&api.Config{}, dir)
	require.Error(t, err)
}
