// Package tensor turns decoded images into the planar float32 input
// expected by image-classification networks.
package tensor

import (
	"errors"
	"fmt"
)

// ErrInvalidShape is returned for shapes the encoder cannot produce.
var ErrInvalidShape = errors.New("invalid tensor shape")

// Shape is an NCHW tensor shape.
type Shape struct {
	Batch    int `json:"batch"`
	Channels int `json:"channels"`
	Height   int `json:"height"`
	Width    int `json:"width"`
}

// DefaultShape is the ImageNet input used by SqueezeNet and friends.
var DefaultShape = Shape{Batch: 1, Channels: 3, Height: 224, Width: 224}

// ShapeFromDims builds a Shape from NCHW dimensions such as the ones found in
// model metadata.
func ShapeFromDims(dims []int64) (Shape, error) {
	if len(dims) != 4 {
		return Shape{}, fmt.Errorf("%w: expected 4 dimensions, got %d", ErrInvalidShape, len(dims))
	}
	s := Shape{
		Batch:    int(dims[0]),
		Channels: int(dims[1]),
		Height:   int(dims[2]),
		Width:    int(dims[3]),
	}
	return s, s.Validate()
}

// Validate checks that the shape describes a single RGB image.
func (s Shape) Validate() error {
	if s.Batch != 1 {
		return fmt.Errorf("%w: batch must be 1 (got %d)", ErrInvalidShape, s.Batch)
	}
	if s.Channels != 3 {
		return fmt.Errorf("%w: channels must be 3 (got %d)", ErrInvalidShape, s.Channels)
	}
	if s.Height <= 0 || s.Width <= 0 {
		return fmt.Errorf("%w: height and width must be > 0 (got %dx%d)", ErrInvalidShape, s.Height, s.Width)
	}
	return nil
}

func (s Shape) Len() int {
	return s.Batch * s.Channels * s.Height * s.Width
}

func (s Shape) Dims() []int64 {
	return []int64{int64(s.Batch), int64(s.Channels), int64(s.Height), int64(s.Width)}
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d %d %d %d]", s.Batch, s.Channels, s.Height, s.Width)
}

// Tensor is an immutable planar float32 tensor. Values are laid out as the
// full red plane, then green, then blue, each row-major.
type Tensor struct {
	shape Shape
	data  []float32
}

// New copies data into a tensor of the given shape.
func New(shape Shape, data []float32) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.Len() {
		return nil, fmt.Errorf("%w: shape %s needs %d values, got %d", ErrInvalidShape, shape, shape.Len(), len(data))
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return &Tensor{shape: shape, data: owned}, nil
}

func (t *Tensor) Shape() Shape {
	return t.shape
}

func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns a copy of the tensor values.
func (t *Tensor) Data() []float32 {
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out
}

// CopyTo copies the values into dst and returns the number copied.
func (t *Tensor) CopyTo(dst []float32) int {
	return copy(dst, t.data)
}

// At returns the value at channel c, row y, column x.
func (t *Tensor) At(c, y, x int) float32 {
	plane := t.shape.Height * t.shape.Width
	return t.data[c*plane+y*t.shape.Width+x]
}
