package tensor

import (
	"errors"
	"testing"
)

func TestNewCopiesData(t *testing.T) {
	shape := Shape{Batch: 1, Channels: 3, Height: 1, Width: 2}
	src := []float32{1, 2, 3, 4, 5, 6}

	tn, err := New(shape, src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src[0] = 99
	if tn.At(0, 0, 0) != 1 {
		t.Fatalf("tensor shares caller buffer")
	}

	out := tn.Data()
	out[1] = 99
	if tn.At(0, 0, 1) != 2 {
		t.Fatalf("Data exposes internal buffer")
	}

	dst := make([]float32, 6)
	if n := tn.CopyTo(dst); n != 6 || dst[5] != 6 {
		t.Fatalf("CopyTo copied %d values: %v", n, dst)
	}
}

func TestNewRejectsWrongLength(t *testing.T) {
	if _, err := New(DefaultShape, make([]float32, 10)); !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestShapeFromDims(t *testing.T) {
	s, err := ShapeFromDims([]int64{1, 3, 224, 224})
	if err != nil {
		t.Fatalf("ShapeFromDims: %v", err)
	}
	if s != DefaultShape {
		t.Fatalf("expected %s, got %s", DefaultShape, s)
	}
	if s.Len() != 150528 {
		t.Fatalf("expected 150528 elements, got %d", s.Len())
	}
	if _, err := ShapeFromDims([]int64{1, 1000}); err == nil {
		t.Fatal("expected error for 2D dims")
	}
}
