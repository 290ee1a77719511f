package masking

import (
	"math/rand/v2"
	"testing"

	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ids used in tests: 0=[PAD], 1=[UNK], 2=[CLS], 3=[SEP], 4=[MASK], everything else is a regular token.
const (
	padID  = 0
	unkID  = 1
	clsID  = 2
	sepID  = 3
	maskID = 4
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

func TestTargetCount(t *testing.T) {
	testCases := []struct {
		rate        float64
		length      int
		numEligible int
		expected    int
	}{
		{1.0, 4, 4, 4},
		{1.0, 4, 10, 4},
		{0.0, 4, 10, 0},
		{0.5, 10, 0, 0},
		{0.5, 0, 10, 0},
		// Halves round to even.
		{0.25, 10, 10, 2},
		{0.25, 10, 6, 2},
		{0.75, 10, 2, 2},
		{0.5, 10, 7, 4},
		{0.5, 10, 5, 2},
		{0.5, 10, 3, 2},
	}
	for _, tc := range testCases {
		g, err := New(100, WithMaskTokenID(maskID), WithSelectionRate(tc.rate), WithSelectionLength(tc.length))
		require.NoError(t, err)
		assert.Equal(t, tc.expected, g.TargetCount(tc.numEligible),
			"TargetCount(%d) with rate=%g, length=%d", tc.numEligible, tc.rate, tc.length)
	}
}

func TestPlanMaskEverything(t *testing.T) {
	g, err := New(20,
		WithSelectionRate(1),
		WithSelectionLength(4),
		WithMaskTokenID(maskID),
		WithMaskTokenRate(1),
		WithRandomTokenRate(0),
		WithUnselectableTokenIDs(padID, clsID, sepID))
	require.NoError(t, err)

	ids := []int{clsID, 5, 10, 6, 8, sepID, padID, padID}
	plan := g.Plan(ids, newTestRand())
	assert.Equal(t, []int{1, 2, 3, 4}, plan.Positions)
	assert.Equal(t, []int{5, 10, 6, 8}, plan.Labels)
	assert.Equal(t, []Action{ActionMask, ActionMask, ActionMask, ActionMask}, plan.Actions)

	masked := g.Apply(ids, plan)
	assert.Equal(t, []int{clsID, maskID, maskID, maskID, maskID, sepID, padID, padID}, masked)
	// Input is not modified.
	assert.Equal(t, []int{clsID, 5, 10, 6, 8, sepID, padID, padID}, ids)

	positions, labels, weights := g.Outputs(plan)
	assert.Equal(t, []int{1, 2, 3, 4}, positions)
	assert.Equal(t, []int{5, 10, 6, 8}, labels)
	assert.Equal(t, []float32{1, 1, 1, 1}, weights)
}

func TestPlanKeep(t *testing.T) {
	g, err := New(20,
		WithSelectionRate(1),
		WithSelectionLength(6),
		WithMaskTokenID(maskID),
		WithMaskTokenRate(0),
		WithRandomTokenRate(0),
		WithUnselectableTokenIDs(padID, clsID, sepID))
	require.NoError(t, err)

	ids := []int{clsID, 5, 6, sepID}
	plan := g.Plan(ids, newTestRand())
	assert.Equal(t, []Action{ActionKeep, ActionKeep}, plan.Actions)
	assert.Equal(t, ids, g.Apply(ids, plan))

	positions, labels, weights := g.Outputs(plan)
	assert.Equal(t, []int{1, 2, 0, 0, 0, 0}, positions)
	assert.Equal(t, []int{5, 6, 0, 0, 0, 0}, labels)
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0}, weights)
}

func TestPlanRandomTokens(t *testing.T) {
	vocabSize := 12
	g, err := New(vocabSize,
		WithSelectionRate(1),
		WithSelectionLength(8),
		WithMaskTokenID(maskID),
		WithMaskTokenRate(0),
		WithRandomTokenRate(1),
		WithUnselectableTokenIDs(padID, clsID, sepID),
		WithExcludedRandomTokenIDs(unkID))
	require.NoError(t, err)

	rng := newTestRand()
	ids := []int{clsID, 5, 6, 7, 8, 9, 10, 11, sepID}
	for range 100 {
		plan := g.Plan(ids, rng)
		require.Equal(t, 7, plan.Len())
		for ii, replacement := range plan.Replacements {
			assert.Equal(t, ActionRandom, plan.Actions[ii])
			assert.GreaterOrEqual(t, replacement, 5, "random replacement must not be a special token")
			assert.Less(t, replacement, vocabSize)
		}
	}
}

func TestPlanProperties(t *testing.T) {
	rng := newTestRand()
	for _, rate := range []float64{0, 0.1, 0.25, 0.5, 0.9, 1} {
		for _, length := range []int{0, 1, 3, 20} {
			g, err := New(50,
				WithSelectionRate(rate),
				WithSelectionLength(length),
				WithMaskTokenID(maskID),
				WithUnselectableTokenIDs(padID, clsID, sepID),
				WithExcludedRandomTokenIDs(unkID))
			require.NoError(t, err)

			for numContent := range 15 {
				ids := []int{clsID}
				for range numContent {
					ids = append(ids, 5+rng.IntN(45))
				}
				ids = append(ids, sepID, padID, padID)

				plan := g.Plan(ids, rng)
				require.Equal(t, g.TargetCount(numContent), plan.Len())
				seen := make(map[int]bool)
				for ii, pos := range plan.Positions {
					assert.False(t, seen[pos], "position %d selected twice", pos)
					seen[pos] = true
					assert.True(t, g.IsSelectable(ids[pos]), "position %d holds special token %d", pos, ids[pos])
					if ii > 0 {
						assert.Less(t, plan.Positions[ii-1], pos, "positions must be sorted")
					}
				}

				positions, labels, weights := g.Outputs(plan)
				require.Len(t, positions, length)
				require.Len(t, labels, length)
				require.Len(t, weights, length)
				numWeights := 0
				for _, w := range weights {
					if w == 1 {
						numWeights++
					}
				}
				assert.Equal(t, min(plan.Len(), length), numWeights)
			}
		}
	}
}

func TestPlanDeterministic(t *testing.T) {
	g, err := New(50, WithMaskTokenID(maskID), WithSelectionRate(0.5), WithUnselectableTokenIDs(padID, clsID, sepID))
	require.NoError(t, err)
	ids := []int{clsID, 10, 11, 12, 13, 14, 15, 16, 17, sepID}
	plan1 := g.Plan(ids, rand.New(rand.NewPCG(1, 2)))
	plan2 := g.Plan(ids, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, plan1, plan2)
}

func TestNewErrors(t *testing.T) {
	testCases := []struct {
		name      string
		vocabSize int
		options   []Option
	}{
		{"rates sum above 1", 10, []Option{WithMaskTokenID(maskID), WithMaskTokenRate(0.8), WithRandomTokenRate(0.3)}},
		{"selection rate above 1", 10, []Option{WithMaskTokenID(maskID), WithSelectionRate(1.5)}},
		{"negative rate", 10, []Option{WithMaskTokenID(maskID), WithRandomTokenRate(-0.1)}},
		{"negative length", 10, []Option{WithMaskTokenID(maskID), WithSelectionLength(-1)}},
		{"mask rate without mask token", 10, nil},
		{"mask token outside vocabulary", 10, []Option{WithMaskTokenID(10)}},
		{"empty vocabulary", 0, []Option{WithMaskTokenID(0)}},
		{"only special tokens", 3, []Option{WithMaskTokenID(2), WithUnselectableTokenIDs(0, 1)}},
	}
	for _, tc := range testCases {
		_, err := New(tc.vocabSize, tc.options...)
		require.Error(t, err, tc.name)
		assert.ErrorIs(t, err, preprocessing.ErrInvalidConfig, tc.name)
	}

	// Only special tokens is fine if no random replacement is requested.
	_, err := New(3, WithMaskTokenID(2), WithUnselectableTokenIDs(0, 1), WithRandomTokenRate(0))
	require.NoError(t, err)
}
