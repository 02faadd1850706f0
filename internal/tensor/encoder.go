package tensor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"
	"strings"

	"github.com/nfnt/resize"
)

// ErrEmptyImage is returned when there are no pixels to encode.
var ErrEmptyImage = errors.New("image has no pixels")

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// DefaultFilter is used when no filter is configured.
const DefaultFilter = "bilinear"

// ParseFilter maps a filter name to a resampling function. An empty name
// selects DefaultFilter.
func ParseFilter(name string) (resize.InterpolationFunction, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultFilter
	}
	f, ok := filters[key]
	if !ok {
		return 0, fmt.Errorf("unknown resize filter %q (want one of %s)", name, strings.Join(FilterNames(), ", "))
	}
	return f, nil
}

// FilterNames lists the accepted filter names.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for n := range filters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Encoder resizes rasters and packs them into planar tensors.
type Encoder struct {
	Filter resize.InterpolationFunction
}

// NewEncoder returns an encoder using the named resampling filter.
func NewEncoder(filter string) (*Encoder, error) {
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	return &Encoder{Filter: f}, nil
}

// Encode resamples img to shape's height and width and returns the planar,
// [0,1]-normalized tensor. Images already at the target size are not
// resampled. Alpha is dropped.
func (e *Encoder) Encode(img image.Image, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	width, height := shape.Width, shape.Height
	src := img
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		src = resize.Resize(uint(width), uint(height), img, e.Filter)
	}

	bounds := src.Bounds()
	plane := width * height
	data := make([]float32, shape.Len())

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)

			i := y*width + x
			data[i] = float32(c.R) / 255.0
			data[plane+i] = float32(c.G) / 255.0
			data[2*plane+i] = float32(c.B) / 255.0
		}
	}

	return &Tensor{shape: shape, data: data}, nil
}
