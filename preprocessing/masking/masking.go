// Package masking selects and rewrites token positions for masked language model training.
//
// A MaskGenerator is configured once, and then for each (already framed) sequence of token ids it:
//
//  1. Finds the eligible positions: those whose id is not unselectable (pad, classification, separator, mask).
//  2. Picks min(SelectionLength, round(SelectionRate * #eligible)) of them uniformly, without replacement.
//  3. For each picked position draws an action: replace by the mask token, replace by a random token,
//     or keep the original id. In all cases the original id is the label.
//
// Randomness comes only from the *rand.Rand given to MaskGenerator.Plan, so results are reproducible
// under a seeded generator.
package masking

import (
	"math"
	"math/rand/v2"
	"slices"

	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Action taken on a selected position.
type Action int

const (
	// ActionMask replaces the token by the mask token.
	ActionMask Action = iota
	// ActionRandom replaces the token by a random non-special token.
	ActionRandom
	// ActionKeep leaves the token unchanged. It is still a prediction target.
	ActionKeep
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionMask:
		return "mask"
	case ActionRandom:
		return "random"
	case ActionKeep:
		return "keep"
	}
	return "unknown"
}

// Default values, the same used by BERT.
const (
	DefaultSelectionRate   = 0.15
	DefaultSelectionLength = 96
	DefaultMaskTokenRate   = 0.8
	DefaultRandomTokenRate = 0.1
)

// rateTolerance absorbs floating point error when checking that rates add up to at most 1.
const rateTolerance = 1e-9

// Plan holds the masking decisions for one sequence.
type Plan struct {
	// Positions selected, in increasing order.
	Positions []int
	// Actions for each selected position.
	Actions []Action
	// Labels are the original ids at each selected position.
	Labels []int
	// Replacements are the ids written at each selected position: the mask id, a random id or the original id.
	Replacements []int
}

// Len returns the number of selected positions.
func (p *Plan) Len() int {
	return len(p.Positions)
}

// MaskGenerator implements the selection and replacement policy. It is immutable and safe for concurrent
// use, as long as each goroutine uses its own *rand.Rand.
type MaskGenerator struct {
	vocabularySize  int
	selectionRate   float64
	selectionLength int
	maskTokenID     int
	hasMaskToken    bool
	maskTokenRate   float64
	randomTokenRate float64

	unselectable map[int]bool
	// excludedRandom are ids never used as random replacements: unselectable ids plus any extra ones.
	excludedRandom map[int]bool
	actionWeights  []float64
}

// Option configures a MaskGenerator during construction.
type Option func(g *MaskGenerator)

// WithSelectionRate sets the target fraction of eligible positions to select, in [0, 1].
func WithSelectionRate(rate float64) Option {
	return func(g *MaskGenerator) { g.selectionRate = rate }
}

// WithSelectionLength sets the maximum number of positions selected per sequence.
// It is also the length of the outputs of MaskGenerator.Outputs.
func WithSelectionLength(length int) Option {
	return func(g *MaskGenerator) { g.selectionLength = length }
}

// WithMaskTokenID sets the id of the mask token. It is also made unselectable.
func WithMaskTokenID(id int) Option {
	return func(g *MaskGenerator) { g.maskTokenID, g.hasMaskToken = id, true }
}

// WithMaskTokenRate sets the probability of replacing a selected token by the mask token.
func WithMaskTokenRate(rate float64) Option {
	return func(g *MaskGenerator) { g.maskTokenRate = rate }
}

// WithRandomTokenRate sets the probability of replacing a selected token by a random token.
// The remaining probability (1 - maskTokenRate - randomTokenRate) keeps the original token.
func WithRandomTokenRate(rate float64) Option {
	return func(g *MaskGenerator) { g.randomTokenRate = rate }
}

// WithUnselectableTokenIDs sets ids that are never selected (usually padding, classification and separator).
// They are never used as random replacements either.
func WithUnselectableTokenIDs(ids ...int) Option {
	return func(g *MaskGenerator) {
		for _, id := range ids {
			g.unselectable[id] = true
		}
	}
}

// WithExcludedRandomTokenIDs sets extra ids never used as random replacements (e.g. the unknown token),
// while still allowing them to be selected.
func WithExcludedRandomTokenIDs(ids ...int) Option {
	return func(g *MaskGenerator) {
		for _, id := range ids {
			g.excludedRandom[id] = true
		}
	}
}

// New creates a MaskGenerator for a vocabulary with ids in [0, vocabularySize).
//
// It returns an error wrapping preprocessing.ErrInvalidConfig if rates are not in [0, 1], if
// maskTokenRate + randomTokenRate > 1, if the selection length is negative, if a mask token rate is given
// without a valid mask token id, or if random replacement is requested but every id is excluded.
func New(vocabularySize int, options ...Option) (*MaskGenerator, error) {
	g := &MaskGenerator{
		vocabularySize:  vocabularySize,
		selectionRate:   DefaultSelectionRate,
		selectionLength: DefaultSelectionLength,
		maskTokenRate:   DefaultMaskTokenRate,
		randomTokenRate: DefaultRandomTokenRate,
		unselectable:    make(map[int]bool),
		excludedRandom:  make(map[int]bool),
	}
	for _, option := range options {
		option(g)
	}
	if err := g.validate(); err != nil {
		return nil, errors.WithMessage(err, "masking.New")
	}

	if g.hasMaskToken {
		g.unselectable[g.maskTokenID] = true
	}
	for id := range g.unselectable {
		g.excludedRandom[id] = true
	}
	if g.randomTokenRate > 0 {
		excluded := 0
		for id := range g.excludedRandom {
			if id >= 0 && id < g.vocabularySize {
				excluded++
			}
		}
		if excluded >= g.vocabularySize {
			return nil, errors.Wrapf(preprocessing.ErrInvalidConfig,
				"random token rate %g requested, but all %d ids of the vocabulary are special",
				g.randomTokenRate, g.vocabularySize)
		}
	}
	keepRate := max(0, 1-g.maskTokenRate-g.randomTokenRate)
	g.actionWeights = []float64{ActionMask: g.maskTokenRate, ActionRandom: g.randomTokenRate, ActionKeep: keepRate}
	return g, nil
}

func (g *MaskGenerator) validate() error {
	if g.vocabularySize <= 0 {
		return errors.Wrapf(preprocessing.ErrInvalidConfig, "vocabulary size must be positive, got %d", g.vocabularySize)
	}
	for name, rate := range map[string]float64{
		"selection rate":    g.selectionRate,
		"mask token rate":   g.maskTokenRate,
		"random token rate": g.randomTokenRate,
	} {
		if math.IsNaN(rate) || rate < 0 || rate > 1 {
			return errors.Wrapf(preprocessing.ErrInvalidConfig, "%s must be in [0, 1], got %g", name, rate)
		}
	}
	if g.maskTokenRate+g.randomTokenRate > 1+rateTolerance {
		return errors.Wrapf(preprocessing.ErrInvalidConfig,
			"mask token rate (%g) + random token rate (%g) must be <= 1", g.maskTokenRate, g.randomTokenRate)
	}
	if g.selectionLength < 0 {
		return errors.Wrapf(preprocessing.ErrInvalidConfig, "selection length must be >= 0, got %d", g.selectionLength)
	}
	if g.maskTokenRate > 0 && !g.hasMaskToken {
		return errors.Wrapf(preprocessing.ErrInvalidConfig, "mask token rate %g requires a mask token id", g.maskTokenRate)
	}
	if g.hasMaskToken && (g.maskTokenID < 0 || g.maskTokenID >= g.vocabularySize) {
		return errors.Wrapf(preprocessing.ErrInvalidConfig,
			"mask token id %d outside of vocabulary of size %d", g.maskTokenID, g.vocabularySize)
	}
	return nil
}

// SelectionLength is the maximum number of selected positions, and the length of the Outputs.
func (g *MaskGenerator) SelectionLength() int {
	return g.selectionLength
}

// IsSelectable returns whether positions holding id can be selected.
func (g *MaskGenerator) IsSelectable(id int) bool {
	return !g.unselectable[id]
}

// EligiblePositions returns the positions of ids that can be selected, in increasing order.
func (g *MaskGenerator) EligiblePositions(ids []int) []int {
	positions := make([]int, 0, len(ids))
	for pos, id := range ids {
		if !g.unselectable[id] {
			positions = append(positions, pos)
		}
	}
	return positions
}

// TargetCount returns the number of positions to select out of numEligible:
// min(SelectionLength, round(SelectionRate * numEligible)), rounding half to even.
func (g *MaskGenerator) TargetCount(numEligible int) int {
	if numEligible <= 0 || g.selectionLength == 0 {
		return 0
	}
	count := int(math.RoundToEven(g.selectionRate * float64(numEligible)))
	return min(count, g.selectionLength, numEligible)
}

// Plan selects positions of ids to mask and the action for each of them. ids is not modified.
func (g *MaskGenerator) Plan(ids []int, rng *rand.Rand) *Plan {
	eligible := g.EligiblePositions(ids)
	count := g.TargetCount(len(eligible))
	plan := &Plan{
		Positions:    make([]int, count),
		Actions:      make([]Action, count),
		Labels:       make([]int, count),
		Replacements: make([]int, count),
	}
	if count == 0 {
		return plan
	}

	// Indices into eligible, sorted so positions come out in increasing order.
	sampleuv.WithoutReplacement(plan.Positions, len(eligible), rng)
	slices.Sort(plan.Positions)
	actions := distuv.NewCategorical(g.actionWeights, rng)
	for ii, idx := range plan.Positions {
		pos := eligible[idx]
		plan.Positions[ii] = pos
		plan.Labels[ii] = ids[pos]
		action := Action(actions.Rand())
		plan.Actions[ii] = action
		switch action {
		case ActionMask:
			plan.Replacements[ii] = g.maskTokenID
		case ActionRandom:
			plan.Replacements[ii] = g.randomTokenID(rng)
		default:
			plan.Replacements[ii] = ids[pos]
		}
	}
	return plan
}

// randomTokenID draws uniformly from the ids not excluded from random replacement.
// New guarantees there is at least one.
func (g *MaskGenerator) randomTokenID(rng *rand.Rand) int {
	for {
		id := rng.IntN(g.vocabularySize)
		if !g.excludedRandom[id] {
			return id
		}
	}
}

// Apply returns a copy of ids with the plan replacements written.
func (g *MaskGenerator) Apply(ids []int, plan *Plan) []int {
	masked := slices.Clone(ids)
	for ii, pos := range plan.Positions {
		masked[pos] = plan.Replacements[ii]
	}
	return masked
}

// Outputs returns the plan as fixed length (SelectionLength) arrays: the selected positions, their
// labels (original ids) and weights (1 for selected positions). Unused slots are 0.
func (g *MaskGenerator) Outputs(plan *Plan) (positions, labels []int, weights []float32) {
	positions = make([]int, g.selectionLength)
	labels = make([]int, g.selectionLength)
	weights = make([]float32, g.selectionLength)
	n := min(plan.Len(), g.selectionLength)
	copy(positions, plan.Positions[:n])
	copy(labels, plan.Labels[:n])
	for ii := range n {
		weights[ii] = 1
	}
	return
}
