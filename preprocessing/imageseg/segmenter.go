package imageseg

import (
	"image"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Batch is the output of SegmenterPreprocessor.Call.
type Batch struct {
	// Images converted by the image converter.
	Images []*Image
	// Masks converted with nearest neighbour interpolation, nil if no masks were given.
	Masks []*Image
	// SampleWeights passed through unaltered, nil if none were given.
	SampleWeights []float32
}

// SegmenterPreprocessor prepares images, and optionally their segmentation masks, for an image
// segmentation model.
type SegmenterPreprocessor struct {
	imageConverter *ImageConverter
	maskConverter  *ImageConverter
	logger         zerolog.Logger
}

// NewSegmenterPreprocessor creates a preprocessor using converter for the images, and a copy of it with
// Nearest interpolation for the masks.
//
// If converter is nil, images and masks are converted at their original size without rescaling.
func NewSegmenterPreprocessor(converter *ImageConverter) *SegmenterPreprocessor {
	if converter == nil {
		converter = &ImageConverter{scale: 1}
	}
	return &SegmenterPreprocessor{
		imageConverter: converter,
		maskConverter:  converter.WithInterpolation(Nearest),
		logger:         zerolog.Nop(),
	}
}

// WithLogger sets the logger used by the preprocessor. It returns itself, for chaining calls.
func (p *SegmenterPreprocessor) WithLogger(logger zerolog.Logger) *SegmenterPreprocessor {
	p.logger = logger
	return p
}

// ImageConverter used for the images.
func (p *SegmenterPreprocessor) ImageConverter() *ImageConverter {
	return p.imageConverter
}

// MaskConverter used for the masks.
func (p *SegmenterPreprocessor) MaskConverter() *ImageConverter {
	return p.maskConverter
}

// Call converts the images x, and the masks y if given. sampleWeight, if given, is passed through.
//
// y and sampleWeight must be empty or have the same length as x.
func (p *SegmenterPreprocessor) Call(x []image.Image, y []image.Image, sampleWeight []float32) (*Batch, error) {
	if len(x) == 0 {
		return nil, errors.New("SegmenterPreprocessor.Call requires at least one image")
	}
	if len(y) > 0 && len(y) != len(x) {
		return nil, errors.Errorf("got %d masks for %d images", len(y), len(x))
	}
	if len(sampleWeight) > 0 && len(sampleWeight) != len(x) {
		return nil, errors.Errorf("got %d sample weights for %d images", len(sampleWeight), len(x))
	}

	batch := &Batch{
		Images:        make([]*Image, len(x)),
		SampleWeights: sampleWeight,
	}
	for ii, img := range x {
		if img == nil {
			return nil, errors.Errorf("image #%d is nil", ii)
		}
		batch.Images[ii] = p.imageConverter.Convert(img)
	}
	if len(y) > 0 {
		batch.Masks = make([]*Image, len(y))
		for ii, mask := range y {
			if mask == nil {
				return nil, errors.Errorf("mask #%d is nil", ii)
			}
			batch.Masks[ii] = p.maskConverter.Convert(mask)
		}
	}
	p.logger.Debug().Int("images", len(x)).Int("masks", len(y)).Msg("preprocessed segmentation batch")
	return batch, nil
}
