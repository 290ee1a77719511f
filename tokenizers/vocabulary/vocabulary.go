// Package vocabulary holds the ordered token list used by vocabulary based tokenizers (e.g. WordPiece).
//
// The position of a token in the list is its id. A Vocabulary is created once and never modified.
package vocabulary

import (
	"bufio"
	"os"
	"strings"

	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/pkg/errors"
)

// Vocabulary is an ordered and deduplicated sequence of tokens. It is safe for concurrent use.
type Vocabulary struct {
	tokens []string
	ids    map[string]int
}

// New creates a Vocabulary from the given tokens, in id order.
//
// It returns an error if the list is empty or if a token is repeated.
func New(tokens []string) (*Vocabulary, error) {
	if len(tokens) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	v := &Vocabulary{
		tokens: make([]string, len(tokens)),
		ids:    make(map[string]int, len(tokens)),
	}
	copy(v.tokens, tokens)
	for id, token := range v.tokens {
		if prev, found := v.ids[token]; found {
			return nil, errors.Errorf("token %q repeated in vocabulary, with ids %d and %d", token, prev, id)
		}
		v.ids[token] = id
	}
	return v, nil
}

// Load reads a vocabulary file with one token per line (the "vocab.txt" format used by BERT models).
//
// The line number is the id, so lines are kept as they are: only a trailing "\r" (Windows line ending)
// is stripped.
func Load(filePath string) (*Vocabulary, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary file %q", filePath)
	}
	v, err := New(tokens)
	if err != nil {
		return nil, errors.WithMessagef(err, "read from file %q", filePath)
	}
	return v, nil
}

// WriteFile writes the vocabulary to filePath, one token per line, in the format read by Load.
func (v *Vocabulary) WriteFile(filePath string) error {
	content := strings.Join(v.tokens, "\n") + "\n"
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write vocabulary to %q", filePath)
	}
	return nil
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// ID returns the id of the token, and whether it was found.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, found := v.ids[token]
	return id, found
}

// Token returns the token for the given id, and whether the id is valid.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// Tokens returns a copy of the tokens, in id order.
func (v *Vocabulary) Tokens() []string {
	res := make([]string, len(v.tokens))
	copy(res, v.tokens)
	return res
}

// Require returns the ids of the given tokens, or an error wrapping api.ErrMissingSpecialToken listing
// the ones not present.
func (v *Vocabulary) Require(tokens ...string) ([]int, error) {
	ids := make([]int, len(tokens))
	var missing []string
	for ii, token := range tokens {
		id, found := v.ids[token]
		if !found {
			missing = append(missing, token)
			continue
		}
		ids[ii] = id
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(api.ErrMissingSpecialToken, "vocabulary doesn't contain %q", missing)
	}
	return ids, nil
}
