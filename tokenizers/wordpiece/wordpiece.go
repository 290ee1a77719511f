// Package wordpiece implements a BERT style tokenizers.Tokenizer over a WordPiece vocabulary.
//
// The vocabulary (and its special tokens) is handled here, while the normalization, pre-tokenization
// and subword splitting are delegated to github.com/sugarme/tokenizer.
package wordpiece

import (
	"os"
	"strings"

	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/gomlx/go-preprocessing/tokenizers/vocabulary"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	tk "github.com/sugarme/tokenizer"
	swordpiece "github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// ContinuingSubwordPrefix marks tokens that continue the previous one within a word.
const ContinuingSubwordPrefix = "##"

// DefaultSpecialTokens used by BERT vocabularies.
var DefaultSpecialTokens = map[api.SpecialToken]string{
	api.TokPad:            "[PAD]",
	api.TokUnknown:        "[UNK]",
	api.TokClassification: "[CLS]",
	api.TokSeparator:      "[SEP]",
	api.TokMask:           "[MASK]",
}

// Tokenizer implements tokenizers.Tokenizer for BERT-like models.
type Tokenizer struct {
	vocab     *vocabulary.Vocabulary
	tokenizer *tk.Tokenizer

	lowercase              bool
	specialTokensInStrings bool
	specialStrings         map[api.SpecialToken]string
	specialIDs             map[api.SpecialToken]int
	// specialByString maps the literal special token strings to their ids, used when
	// specialTokensInStrings is set.
	specialByString map[string]int

	logger zerolog.Logger
}

// Compile time assert that wordpiece.Tokenizer implements tokenizers.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// Option configures a Tokenizer during construction.
type Option func(t *Tokenizer)

// WithLowercase makes the tokenizer lowercase (and strip accents of) the input before splitting.
func WithLowercase(lowercase bool) Option {
	return func(t *Tokenizer) { t.lowercase = lowercase }
}

// WithSpecialTokensInStrings makes literal special tokens in the input text (e.g. "[MASK]") map
// directly to their ids, instead of being split as regular text.
func WithSpecialTokensInStrings(enabled bool) Option {
	return func(t *Tokenizer) { t.specialTokensInStrings = enabled }
}

// WithSpecialTokenStrings overrides the literal strings used for the special tokens.
// Tokens not in the map keep their DefaultSpecialTokens value.
func WithSpecialTokenStrings(strs map[api.SpecialToken]string) Option {
	return func(t *Tokenizer) {
		for token, str := range strs {
			t.specialStrings[token] = str
		}
	}
}

// WithLogger sets the logger used to report tokenization issues. Default is a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tokenizer) { t.logger = logger }
}

// New creates a WordPiece tokenizer for the given vocabulary.
//
// The vocabulary must contain the pad, unknown, classification, separator and mask tokens
// ("[PAD]", "[UNK]", "[CLS]", "[SEP]" and "[MASK]" by default), or an error wrapping
// api.ErrMissingSpecialToken is returned.
func New(vocab *vocabulary.Vocabulary, options ...Option) (*Tokenizer, error) {
	if vocab == nil {
		return nil, errors.New("wordpiece.New requires a vocabulary")
	}
	t := &Tokenizer{
		vocab:          vocab,
		specialStrings: make(map[api.SpecialToken]string, len(DefaultSpecialTokens)),
		logger:         zerolog.Nop(),
	}
	for token, str := range DefaultSpecialTokens {
		t.specialStrings[token] = str
	}
	for _, option := range options {
		option(t)
	}

	// Special tokens must be in the vocabulary.
	tokens := []api.SpecialToken{api.TokPad, api.TokUnknown, api.TokClassification, api.TokSeparator, api.TokMask}
	strs := make([]string, len(tokens))
	for ii, token := range tokens {
		strs[ii] = t.specialStrings[token]
	}
	ids, err := vocab.Require(strs...)
	if err != nil {
		return nil, errors.WithMessage(err, "BERT tokenizer requires special tokens")
	}
	t.specialIDs = make(map[api.SpecialToken]int, len(tokens))
	t.specialByString = make(map[string]int, len(tokens))
	for ii, token := range tokens {
		t.specialIDs[token] = ids[ii]
		t.specialByString[strs[ii]] = ids[ii]
	}

	if err = t.buildSplitter(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewFromFile creates a WordPiece tokenizer from a "vocab.txt" file. See New for details.
func NewFromFile(vocabPath string, options ...Option) (*Tokenizer, error) {
	vocab, err := vocabulary.Load(vocabPath)
	if err != nil {
		return nil, err
	}
	return New(vocab, options...)
}

// buildSplitter creates the underlying sugarme tokenizer.
//
// The WordPiece model can only be loaded from a file, so the (already validated) vocabulary is written
// to a temporary file first. This also guarantees both sides agree on the ids.
func (t *Tokenizer) buildSplitter() error {
	f, err := os.CreateTemp("", "wordpiece_vocab_*.txt")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary vocabulary file")
	}
	tmpPath := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(tmpPath) }()
	if err = t.vocab.WriteFile(tmpPath); err != nil {
		return err
	}

	model, err := swordpiece.NewWordPieceFromFile(tmpPath, t.specialStrings[api.TokUnknown])
	if err != nil {
		return errors.Wrap(err, "can't create WordPiece model")
	}
	t.tokenizer = tk.NewTokenizer(model)
	t.tokenizer.WithNormalizer(normalizer.NewBertNormalizer(true, t.lowercase, true, t.lowercase))
	t.tokenizer.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	return nil
}

// Vocabulary used by the tokenizer.
func (t *Tokenizer) Vocabulary() *vocabulary.Vocabulary {
	return t.vocab
}

// VocabularySize implements tokenizers.Tokenizer.
func (t *Tokenizer) VocabularySize() int {
	return t.vocab.Size()
}

// Encode returns the text encoded into a sequence of ids. No special tokens are added.
func (t *Tokenizer) Encode(text string) []int {
	if !t.specialTokensInStrings {
		return t.encodeSegment(text)
	}
	var ids []int
	for len(text) > 0 {
		start, length, id := t.nextSpecial(text)
		if start < 0 {
			ids = append(ids, t.encodeSegment(text)...)
			break
		}
		ids = append(ids, t.encodeSegment(text[:start])...)
		ids = append(ids, id)
		text = text[start+length:]
	}
	return ids
}

// nextSpecial finds the first (and then longest) literal special token in text.
// It returns start=-1 if there is none.
func (t *Tokenizer) nextSpecial(text string) (start, length, id int) {
	start = -1
	for str, strID := range t.specialByString {
		idx := strings.Index(text, str)
		if idx < 0 {
			continue
		}
		if start < 0 || idx < start || (idx == start && len(str) > length) {
			start, length, id = idx, len(str), strID
		}
	}
	return
}

// encodeSegment splits text without special tokens.
func (t *Tokenizer) encodeSegment(text string) []int {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	encoding, err := t.tokenizer.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		t.logger.Warn().Err(err).Str("text", text).Msg("wordpiece failed to encode text, using unknown token")
		return []int{t.specialIDs[api.TokUnknown]}
	}
	encoded := encoding.GetIds()
	ids := make([]int, len(encoded))
	for ii, id := range encoded {
		ids[ii] = int(id)
	}
	return ids
}

// Decode returns the text from a sequence of ids.
//
// Tokens are joined with spaces, and continuation subwords ("##...") are merged to the previous token.
// Invalid ids are decoded as the unknown token.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for ii, id := range ids {
		token, found := t.vocab.Token(id)
		if !found {
			token = t.specialStrings[api.TokUnknown]
		}
		if strings.HasPrefix(token, ContinuingSubwordPrefix) && ii > 0 {
			sb.WriteString(token[len(ContinuingSubwordPrefix):])
			continue
		}
		if ii > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(token)
	}
	return sb.String()
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
//
// BERT has no separate sentence delimiters: TokBeginningOfSentence maps to the classification token
// and TokEndOfSentence to the separator token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokBeginningOfSentence:
		token = api.TokClassification
	case api.TokEndOfSentence:
		token = api.TokSeparator
	}
	if id, found := t.specialIDs[token]; found {
		return id, nil
	}
	return 0, errors.Wrapf(api.ErrMissingSpecialToken, "BERT tokenizer has no %s token", token)
}

// NewFromConfig creates a WordPiece tokenizer from the vocabulary file in config.VocabFile, configured
// with the lowercasing and special tokens of the config.
//
// It implements a tokenizer.TokenizerConstructor function signature.
func NewFromConfig(config *api.Config, dir string) (api.Tokenizer, error) {
	if config == nil || config.VocabFile == "" {
		return nil, errors.Errorf("WordPiece vocabulary file not found in %q", dir)
	}
	t, err := NewFromFile(config.VocabFile,
		WithLowercase(config.DoLowerCase),
		WithSpecialTokenStrings(config.SpecialTokenStrings()))
	if err != nil {
		return nil, err
	}
	return t, nil
}
