// Package mlm implements the masked language model (MLM) preprocessing pipeline used to pretrain
// BERT-like models (BERT, FNet, ALBERT, ...).
//
// For each input it tokenizes the text, frames it with the classification and separator tokens, selects
// positions to mask, rewrites the selected positions (mask token, random token or unchanged), and pads
// everything to fixed shapes. See MaskedLMPreprocessor.Call.
package mlm

import (
	"math/rand/v2"
	"runtime"
	"sync"

	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/gomlx/go-preprocessing/preprocessing/masking"
	"github.com/gomlx/go-preprocessing/preprocessing/packing"
	"github.com/gomlx/go-preprocessing/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// ErrInvalidConfig is returned (wrapped) by New for invalid parameters.
var ErrInvalidConfig = preprocessing.ErrInvalidConfig

// Default values, the ones used to pretrain BERT.
const (
	DefaultSequenceLength      = 512
	DefaultMaskSelectionRate   = masking.DefaultSelectionRate
	DefaultMaskSelectionLength = masking.DefaultSelectionLength
	DefaultMaskTokenRate       = masking.DefaultMaskTokenRate
	DefaultRandomTokenRate     = masking.DefaultRandomTokenRate
)

// Features fed to the model, one row per example.
type Features struct {
	// TokenIDs after masking, framing and padding: shape [batch, sequenceLength].
	TokenIDs [][]int `json:"token_ids"`
	// SegmentIDs are all 0 for single segment inputs: shape [batch, sequenceLength].
	SegmentIDs [][]int `json:"segment_ids"`
	// MaskPositions are the masked positions, zero padded: shape [batch, maskSelectionLength].
	MaskPositions [][]int `json:"mask_positions"`
}

// Batch is the output of the MaskedLMPreprocessor: features, labels and sample weights.
type Batch struct {
	Features Features `json:"features"`
	// Labels are the original token ids at the masked positions, zero padded: shape [batch, maskSelectionLength].
	Labels [][]int `json:"labels"`
	// SampleWeights are 1 for real masked positions, and 0 for padding: shape [batch, maskSelectionLength].
	SampleWeights [][]float32 `json:"sample_weights"`
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// MaskedLMPreprocessor converts raw text (or token ids) to masked language model training batches.
//
// Create it with New. It is safe for concurrent use.
type MaskedLMPreprocessor struct {
	tokenizer api.Tokenizer
	config    Config
	logger    zerolog.Logger

	padID     int
	packer    *packing.StartEndPacker
	generator *masking.MaskGenerator

	// Master random source: it only generates per-example seeds, in input order.
	muRand sync.Mutex
	rand   *rand.Rand
}

// Option configures a MaskedLMPreprocessor during construction.
type Option func(p *MaskedLMPreprocessor)

// WithSequenceLength sets the length of the token id outputs, including the special tokens.
func WithSequenceLength(length int) Option {
	return func(p *MaskedLMPreprocessor) { p.config.SequenceLength = length }
}

// WithMaskSelectionRate sets the target fraction of eligible tokens to mask.
func WithMaskSelectionRate(rate float64) Option {
	return func(p *MaskedLMPreprocessor) { p.config.MaskSelectionRate = rate }
}

// WithMaskSelectionLength sets the maximum number of masked tokens per example, and the length of the
// mask positions, labels and sample weights outputs.
func WithMaskSelectionLength(length int) Option {
	return func(p *MaskedLMPreprocessor) { p.config.MaskSelectionLength = length }
}

// WithMaskTokenRate sets the probability of a selected token being replaced by the mask token.
func WithMaskTokenRate(rate float64) Option {
	return func(p *MaskedLMPreprocessor) { p.config.MaskTokenRate = rate }
}

// WithRandomTokenRate sets the probability of a selected token being replaced by a random token.
func WithRandomTokenRate(rate float64) Option {
	return func(p *MaskedLMPreprocessor) { p.config.RandomTokenRate = rate }
}

// WithStartToken configures whether the classification token is prepended. Default is true.
func WithStartToken(enabled bool) Option {
	return func(p *MaskedLMPreprocessor) { p.config.AddStartToken = enabled }
}

// WithEndToken configures whether the separator token is appended. Default is true.
func WithEndToken(enabled bool) Option {
	return func(p *MaskedLMPreprocessor) { p.config.AddEndToken = enabled }
}

// WithParallelism sets the maximum number of examples processed in parallel.
// If <= 0 (the default) it uses runtime.NumCPU(). Set to 1 for sequential processing.
func WithParallelism(parallelism int) Option {
	return func(p *MaskedLMPreprocessor) { p.config.Parallelism = parallelism }
}

// WithSeed makes the preprocessor reproducible: the same sequence of calls with the same inputs yields
// the same outputs.
func WithSeed(seed uint64) Option {
	return func(p *MaskedLMPreprocessor) {
		p.config.Seed = &seed
	}
}

// WithRandSource sets the master random source. The preprocessor takes ownership of it.
// It takes precedence over WithSeed.
func WithRandSource(src rand.Source) Option {
	return func(p *MaskedLMPreprocessor) { p.rand = rand.New(src) }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *MaskedLMPreprocessor) { p.logger = logger }
}

// WithConfig sets all the values of config at once. Options given after it override its values.
func WithConfig(config Config) Option {
	return func(p *MaskedLMPreprocessor) { p.config = config }
}

// New creates a MaskedLMPreprocessor for the given tokenizer.
//
// The tokenizer must define the pad and mask special tokens, plus the classification and separator tokens
// if the start and end tokens are enabled. Otherwise, an error wrapping api.ErrMissingSpecialToken is returned.
//
// Invalid parameters (non-positive sequence length, negative selection length, rates outside [0, 1] or
// mask and random token rates adding to more than 1) return an error wrapping ErrInvalidConfig.
func New(tokenizer api.Tokenizer, options ...Option) (*MaskedLMPreprocessor, error) {
	p := &MaskedLMPreprocessor{
		tokenizer: tokenizer,
		config:    DefaultConfig(),
		logger:    zerolog.Nop(),
	}
	for _, option := range options {
		option(p)
	}
	if tokenizer == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "MaskedLMPreprocessor requires a tokenizer")
	}
	if err := p.config.Validate(); err != nil {
		return nil, err
	}

	required := []api.SpecialToken{api.TokPad, api.TokMask}
	if p.config.AddStartToken {
		required = append(required, api.TokClassification)
	}
	if p.config.AddEndToken {
		required = append(required, api.TokSeparator)
	}
	specialIDs, err := api.RequireSpecialTokens(tokenizer, required...)
	if err != nil {
		return nil, errors.WithMessage(err, "MaskedLMPreprocessor tokenizer")
	}

	p.padID = specialIDs[api.TokPad]
	packerOptions := []packing.Option{packing.WithPadValue(specialIDs[api.TokPad])}
	if p.config.AddStartToken {
		packerOptions = append(packerOptions, packing.WithStartValue(specialIDs[api.TokClassification]))
	}
	if p.config.AddEndToken {
		packerOptions = append(packerOptions, packing.WithEndValue(specialIDs[api.TokSeparator]))
	}
	// Classification and separator tokens are never selected, even if not used for framing.
	unselectable := []int{specialIDs[api.TokPad]}
	for _, token := range []api.SpecialToken{api.TokClassification, api.TokSeparator} {
		if id, err := tokenizer.SpecialTokenID(token); err == nil {
			unselectable = append(unselectable, id)
		}
	}
	p.packer, err = packing.New(p.config.SequenceLength, packerOptions...)
	if err != nil {
		return nil, err
	}

	var excluded []int
	if unkID, err := tokenizer.SpecialTokenID(api.TokUnknown); err == nil {
		excluded = append(excluded, unkID)
	}
	p.generator, err = masking.New(tokenizer.VocabularySize(),
		masking.WithSelectionRate(p.config.MaskSelectionRate),
		masking.WithSelectionLength(p.config.MaskSelectionLength),
		masking.WithMaskTokenID(specialIDs[api.TokMask]),
		masking.WithMaskTokenRate(p.config.MaskTokenRate),
		masking.WithRandomTokenRate(p.config.RandomTokenRate),
		masking.WithUnselectableTokenIDs(unselectable...),
		masking.WithExcludedRandomTokenIDs(excluded...))
	if err != nil {
		return nil, err
	}

	if p.rand == nil {
		if p.config.Seed != nil {
			p.rand = rand.New(rand.NewPCG(*p.config.Seed, 0))
		} else {
			p.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	p.logger.Debug().
		Int("sequence_length", p.config.SequenceLength).
		Float64("mask_selection_rate", p.config.MaskSelectionRate).
		Int("mask_selection_length", p.config.MaskSelectionLength).
		Float64("mask_token_rate", p.config.MaskTokenRate).
		Float64("random_token_rate", p.config.RandomTokenRate).
		Msg("created masked LM preprocessor")
	return p, nil
}

// Config returns a copy of the configuration in use.
func (p *MaskedLMPreprocessor) Config() Config {
	return p.config
}

// Tokenizer used by the preprocessor.
func (p *MaskedLMPreprocessor) Tokenizer() api.Tokenizer {
	return p.tokenizer
}

// Call tokenizes and preprocesses a batch of texts. See CallTokenized for details.
func (p *MaskedLMPreprocessor) Call(texts ...string) (*Batch, error) {
	if len(texts) == 0 {
		return nil, errors.New("MaskedLMPreprocessor.Call requires at least one input")
	}
	ids := make([][]int, len(texts))
	for ii, text := range texts {
		ids[ii] = p.tokenizer.Encode(text)
	}
	return p.CallTokenized(ids)
}

// CallTokenized preprocesses a batch of already tokenized inputs (without special tokens).
// The inputs are not modified. Trailing pad ids of pre-padded inputs are dropped before framing, and pad
// ids are never selected for masking.
//
// Each example is framed (classification and separator tokens) and truncated to the sequence length,
// masked and then padded. Examples are processed in parallel, but since each one uses its own random
// generator seeded in input order, results don't depend on the parallelism.
func (p *MaskedLMPreprocessor) CallTokenized(ids [][]int) (*Batch, error) {
	if len(ids) == 0 {
		return nil, errors.New("MaskedLMPreprocessor requires at least one input")
	}
	numExamples := len(ids)
	batch := &Batch{
		Features: Features{
			TokenIDs:      make([][]int, numExamples),
			SegmentIDs:    make([][]int, numExamples),
			MaskPositions: make([][]int, numExamples),
		},
		Labels:        make([][]int, numExamples),
		SampleWeights: make([][]float32, numExamples),
	}
	seeds := p.exampleSeeds(numExamples)

	parallelism := p.config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	masked := make([]int, numExamples)
	workers := pool.New().WithMaxGoroutines(parallelism)
	for exampleIdx := range numExamples {
		workers.Go(func() {
			rng := rand.New(rand.NewPCG(seeds[exampleIdx], uint64(exampleIdx)))
			masked[exampleIdx] = p.processExample(ids[exampleIdx], rng, batch, exampleIdx)
		})
	}
	workers.Wait()

	if e := p.logger.Debug(); e.Enabled() {
		total := 0
		for _, n := range masked {
			total += n
		}
		e.Int("examples", numExamples).Int("masked_tokens", total).Msg("preprocessed batch")
	}
	return batch, nil
}

// exampleSeeds draws one seed per example from the master random source.
func (p *MaskedLMPreprocessor) exampleSeeds(n int) []uint64 {
	p.muRand.Lock()
	defer p.muRand.Unlock()
	seeds := make([]uint64, n)
	for ii := range seeds {
		seeds[ii] = p.rand.Uint64()
	}
	return seeds
}

// processExample writes row exampleIdx of batch, and returns the number of masked positions.
func (p *MaskedLMPreprocessor) processExample(ids []int, rng *rand.Rand, batch *Batch, exampleIdx int) int {
	framed := p.packer.Frame(p.trimPadding(ids))
	plan := p.generator.Plan(framed, rng)
	batch.Features.TokenIDs[exampleIdx] = p.packer.Pad(p.generator.Apply(framed, plan))
	batch.Features.SegmentIDs[exampleIdx] = make([]int, p.config.SequenceLength)
	positions, labels, weights := p.generator.Outputs(plan)
	batch.Features.MaskPositions[exampleIdx] = positions
	batch.Labels[exampleIdx] = labels
	batch.SampleWeights[exampleIdx] = weights
	return min(plan.Len(), p.config.MaskSelectionLength)
}

// trimPadding returns ids without its trailing pad ids.
func (p *MaskedLMPreprocessor) trimPadding(ids []int) []int {
	end := len(ids)
	for end > 0 && ids[end-1] == p.padID {
		end--
	}
	return ids[:end]
}

// NewFromConfig creates a MaskedLMPreprocessor for tokenizer configured with config.
// Extra options are applied after the configuration.
func NewFromConfig(tokenizer api.Tokenizer, config *Config, options ...Option) (*MaskedLMPreprocessor, error) {
	if config == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil config")
	}
	return New(tokenizer, append([]Option{WithConfig(*config)}, options...)...)
}
