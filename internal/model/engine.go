package model

import (
	"context"

	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
)

// Engine executes an already loaded network. Implementations own their
// session lifecycle.
type Engine interface {
	// InputShape is the tensor shape the network accepts.
	InputShape() tensor.Shape
	// Execute runs one forward pass and returns labelled probabilities.
	Execute(ctx context.Context, t *tensor.Tensor) ([]Prediction, error)
}
