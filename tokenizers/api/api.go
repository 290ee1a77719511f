// Package api defines the Tokenizer API.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tokenizer interface allows one convert test to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	// The error wraps ErrMissingSpecialToken.
	SpecialTokenID(token SpecialToken) (int, error)

	// VocabularySize returns the number of ids the tokenizer can produce: valid ids are in [0, VocabularySize).
	VocabularySize() int
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSeparator
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSeparator:           "separator",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || t >= TokSpecialTokensCount {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}

// ErrMissingSpecialToken is returned (wrapped) whenever a tokenizer doesn't define a required special token.
var ErrMissingSpecialToken = errors.New("missing special token")

// RequireSpecialTokens checks that tok defines all the given special tokens, and returns their ids.
//
// It's meant to be called at construction time of components that depend on special tokens, so
// configuration issues are reported early.
func RequireSpecialTokens(tok Tokenizer, tokens ...SpecialToken) (map[SpecialToken]int, error) {
	if tok == nil {
		return nil, errors.New("nil tokenizer")
	}
	ids := make(map[SpecialToken]int, len(tokens))
	for _, token := range tokens {
		id, err := tok.SpecialTokenID(token)
		if err != nil {
			if !errors.Is(err, ErrMissingSpecialToken) {
				err = errors.Wrapf(ErrMissingSpecialToken, "%s: %v", token, err)
			}
			return nil, err
		}
		if id < 0 || id >= tok.VocabularySize() {
			return nil, errors.Wrapf(ErrMissingSpecialToken, "%s has id %d, outside of vocabulary of size %d",
				token, id, tok.VocabularySize())
		}
		ids[token] = id
	}
	return ids, nil
}
