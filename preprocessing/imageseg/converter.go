// Package imageseg implements preprocessing for image segmentation models.
//
// An ImageConverter resizes and rescales images into float32 arrays. The SegmenterPreprocessor applies a
// converter to the input images and a nearest-neighbour copy of it to the segmentation masks, so mask
// labels are never blended.
package imageseg

import (
	"image"

	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Interpolation used when resizing.
type Interpolation int

const (
	// Bilinear interpolation, the default for images.
	Bilinear Interpolation = iota
	// Nearest neighbour interpolation, required for masks (labels).
	Nearest
)

// String implements fmt.Stringer.
func (i Interpolation) String() string {
	switch i {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	}
	return "unknown"
}

func (i Interpolation) scaler() draw.Scaler {
	if i == Nearest {
		return draw.NearestNeighbor
	}
	return draw.BiLinear
}

// Image holds a converted image as float32 values in HWC (height, width, channels) order.
// Color images have 3 channels (RGB), grayscale images have 1.
type Image struct {
	Height, Width, Channels int
	Data                    []float32
}

// At returns the value at row y, column x and channel c.
func (img *Image) At(y, x, c int) float32 {
	return img.Data[(y*img.Width+x)*img.Channels+c]
}

// ImageConverter resizes images to a fixed size and rescales its values: value*scale + offset, where
// the pixel values are in [0, 255].
//
// It is immutable: the With* methods return modified copies, so a converter can be shared.
type ImageConverter struct {
	height, width int
	interpolation Interpolation
	scale, offset float32
}

// NewImageConverter returns a converter that resizes to height x width, using bilinear interpolation and
// no rescaling. If height or width is 0, images are not resized.
func NewImageConverter(height, width int) (*ImageConverter, error) {
	if height < 0 || width < 0 || (height == 0) != (width == 0) {
		return nil, errors.Wrapf(preprocessing.ErrInvalidConfig,
			"image size must be both positive or both 0, got %dx%d", height, width)
	}
	return &ImageConverter{height: height, width: width, scale: 1}, nil
}

// WithInterpolation returns a copy of the converter using the given interpolation.
func (c *ImageConverter) WithInterpolation(interpolation Interpolation) *ImageConverter {
	derived := *c
	derived.interpolation = interpolation
	return &derived
}

// WithScale returns a copy of the converter that rescales values to value*scale + offset.
// E.g. use WithScale(1.0/255, 0) to get values in [0, 1].
func (c *ImageConverter) WithScale(scale, offset float32) *ImageConverter {
	derived := *c
	derived.scale, derived.offset = scale, offset
	return &derived
}

// Interpolation used by the converter.
func (c *ImageConverter) Interpolation() Interpolation {
	return c.interpolation
}

// Size returns the target height and width, 0 if not resizing.
func (c *ImageConverter) Size() (height, width int) {
	return c.height, c.width
}

// Convert resizes and rescales img. Grayscale images (image.Gray and image.Gray16) yield one channel,
// everything else three (RGB).
func (c *ImageConverter) Convert(img image.Image) *Image {
	srcBounds := img.Bounds()
	height, width := c.height, c.width
	if height == 0 {
		height, width = srcBounds.Dy(), srcBounds.Dx()
	}
	dstBounds := image.Rect(0, 0, width, height)

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		dst := image.NewGray16(dstBounds)
		c.interpolation.scaler().Scale(dst, dstBounds, img, srcBounds, draw.Src, nil)
		out := &Image{Height: height, Width: width, Channels: 1, Data: make([]float32, height*width)}
		for y := range height {
			for x := range width {
				v := dst.Gray16At(x, y).Y
				out.Data[y*width+x] = c.rescale(v)
			}
		}
		return out
	}

	dst := image.NewRGBA64(dstBounds)
	c.interpolation.scaler().Scale(dst, dstBounds, img, srcBounds, draw.Src, nil)
	out := &Image{Height: height, Width: width, Channels: 3, Data: make([]float32, height*width*3)}
	for y := range height {
		for x := range width {
			px := dst.RGBA64At(x, y)
			base := (y*width + x) * 3
			out.Data[base] = c.rescale(px.R)
			out.Data[base+1] = c.rescale(px.G)
			out.Data[base+2] = c.rescale(px.B)
		}
	}
	return out
}

// rescale maps a 16 bits color value to [0, 255] and then applies scale and offset.
func (c *ImageConverter) rescale(v uint16) float32 {
	return float32(v)/257*c.scale + c.offset
}
