// Package sentencepiece implements a tokenizers.Tokenizer based on SentencePiece tokenizer.
//
// Besides the special tokens known to the SentencePiece model (pad, unknown, bos and eos), models like
// FNet and ALBERT define "[CLS]", "[SEP]" and "[MASK]" as user defined pieces: they are looked up when the
// tokenizer is created.
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-preprocessing/internal/files"
	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/pkg/errors"
)

// Default pieces used for the special tokens not stored in the SentencePiece model info.
const (
	ClassificationPiece = "[CLS]"
	SeparatorPiece      = "[SEP]"
	MaskPiece           = "[MASK]"
)

// Processor is the subset of esentencepiece.Processor used by the Tokenizer.
type Processor interface {
	Encode(text string) []esentencepiece.Token
	Decode(ids []int) string
	ModelInfo() *esentencepiece.ModelInfo
}

// New creates a SentencePiece tokenizer based on the model file in config.SpModelFile, which must be a
// SentencePiece Model proto.
//
// It implements a tokenizer.TokenizerConstructor function signature.
func New(config *api.Config, dir string) (api.Tokenizer, error) {
	if config == nil || config.SpModelFile == "" || !files.Exists(config.SpModelFile) {
		return nil, errors.Errorf("SentencePiece model file not found in %q", dir)
	}
	p, err := NewFromPath(config.SpModelFile, config.SpecialTokenStrings())
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromPath creates a SentencePiece tokenizer from a model file.
// pieces optionally overrides the pieces used for the classification, separator and mask tokens.
func NewFromPath(modelPath string, pieces map[api.SpecialToken]string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	return NewFromProcessor(proc, pieces)
}

// NewFromProcessor creates a Tokenizer from an already created processor.
func NewFromProcessor(proc Processor, pieces map[api.SpecialToken]string) (*Tokenizer, error) {
	p := &Tokenizer{
		Processor:  proc,
		Info:       proc.ModelInfo(),
		specialIDs: make(map[api.SpecialToken]int),
	}
	if p.Info == nil {
		return nil, errors.New("sentencepiece processor has no model info")
	}
	for token, id := range map[api.SpecialToken]int{
		api.TokUnknown:             p.Info.UnknownID,
		api.TokPad:                 p.Info.PadID,
		api.TokBeginningOfSentence: p.Info.BeginningOfSentenceID,
		api.TokEndOfSentence:       p.Info.EndOfSentenceID,
	} {
		// SentencePiece uses -1 for disabled special tokens.
		if id >= 0 && id < p.Info.VocabularySize {
			p.specialIDs[token] = id
		}
	}
	for token, piece := range map[api.SpecialToken]string{
		api.TokClassification: ClassificationPiece,
		api.TokSeparator:      SeparatorPiece,
		api.TokMask:           MaskPiece,
	} {
		if override, found := pieces[token]; found {
			piece = override
		}
		if id, found := p.pieceID(piece); found {
			p.specialIDs[token] = id
		}
	}
	return p, nil
}

// Tokenizer implements tokenizers.Tokenizer interface based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	Processor
	Info *esentencepiece.ModelInfo

	specialIDs map[api.SpecialToken]int
}

// Compile time assert that sentencepiece.Tokenizer implements tokenizers.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// pieceID returns the id of a piece that the model encodes as a single token (user defined symbols).
// Unknown pieces keep their text, so the unknown id is never a match.
func (p *Tokenizer) pieceID(piece string) (int, bool) {
	for _, token := range p.Processor.Encode(piece) {
		if token.Text == piece && token.ID != p.Info.UnknownID {
			return token.ID, true
		}
	}
	return 0, false
}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) int { return t.ID })
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// VocabularySize implements tokenizers.Tokenizer.
func (p *Tokenizer) VocabularySize() int {
	return p.Info.VocabularySize
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if id, found := p.specialIDs[token]; found {
		return id, nil
	}
	return 0, errors.Wrapf(api.ErrMissingSpecialToken, "sentencepiece model has no %s token", token)
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
