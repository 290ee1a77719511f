// Package packing frames token id sequences with start/end tokens and pads or truncates them to a
// fixed length.
package packing

import (
	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/pkg/errors"
)

// StartEndPacker packs one segment of token ids into a fixed length sequence:
//
//	[start] content... [end] [pad]...
//
// Content is truncated (from the right) so the start and end tokens always fit.
// It is immutable and safe for concurrent use.
type StartEndPacker struct {
	sequenceLength int
	startValue     int
	endValue       int
	padValue       int
	hasStart       bool
	hasEnd         bool
}

// Option configures a StartEndPacker during construction.
type Option func(p *StartEndPacker)

// WithStartValue prepends the given id to every sequence.
func WithStartValue(id int) Option {
	return func(p *StartEndPacker) {
		p.startValue, p.hasStart = id, true
	}
}

// WithEndValue appends the given id to every sequence, after truncation.
func WithEndValue(id int) Option {
	return func(p *StartEndPacker) {
		p.endValue, p.hasEnd = id, true
	}
}

// WithPadValue sets the id used for padding. Default is 0.
func WithPadValue(id int) Option {
	return func(p *StartEndPacker) {
		p.padValue = id
	}
}

// New creates a StartEndPacker that outputs sequences of exactly sequenceLength ids.
//
// It returns an error wrapping preprocessing.ErrInvalidConfig if sequenceLength is not positive, or if it
// can't hold the start and end tokens.
func New(sequenceLength int, options ...Option) (*StartEndPacker, error) {
	p := &StartEndPacker{sequenceLength: sequenceLength}
	for _, option := range options {
		option(p)
	}
	if sequenceLength <= 0 {
		return nil, errors.Wrapf(preprocessing.ErrInvalidConfig, "sequence length must be positive, got %d", sequenceLength)
	}
	if p.FramingWidth() > sequenceLength {
		return nil, errors.Wrapf(preprocessing.ErrInvalidConfig,
			"sequence length %d can't hold the %d start/end tokens", sequenceLength, p.FramingWidth())
	}
	return p, nil
}

// SequenceLength of the packed outputs.
func (p *StartEndPacker) SequenceLength() int {
	return p.sequenceLength
}

// FramingWidth is the number of positions taken by the start and end tokens.
func (p *StartEndPacker) FramingWidth() int {
	width := 0
	if p.hasStart {
		width++
	}
	if p.hasEnd {
		width++
	}
	return width
}

// MaxContentLength is the number of content ids that fit in one sequence.
func (p *StartEndPacker) MaxContentLength() int {
	return p.sequenceLength - p.FramingWidth()
}

// Frame returns a new slice with ids truncated to MaxContentLength and surrounded by the start and end
// tokens (if configured). The input is not modified.
func (p *StartEndPacker) Frame(ids []int) []int {
	if len(ids) > p.MaxContentLength() {
		ids = ids[:p.MaxContentLength()]
	}
	framed := make([]int, 0, len(ids)+p.FramingWidth())
	if p.hasStart {
		framed = append(framed, p.startValue)
	}
	framed = append(framed, ids...)
	if p.hasEnd {
		framed = append(framed, p.endValue)
	}
	return framed
}

// Pad returns a new slice of exactly SequenceLength ids: ids right-padded with the pad id, or
// truncated if longer.
func (p *StartEndPacker) Pad(ids []int) []int {
	padded := make([]int, p.sequenceLength)
	n := copy(padded, ids)
	for ii := n; ii < p.sequenceLength; ii++ {
		padded[ii] = p.padValue
	}
	return padded
}

// Pack frames and pads ids, see Frame and Pad.
func (p *StartEndPacker) Pack(ids []int) []int {
	return p.Pad(p.Frame(ids))
}
