package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded is the cause when no engine is available.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrShapeMismatch is the cause when a tensor does not fit the model input.
	ErrShapeMismatch = errors.New("tensor shape does not match model input")
	// ErrEmptyOutput is the cause when the engine returns no predictions.
	ErrEmptyOutput = errors.New("engine returned no predictions")
)

// InferenceError reports a failed inference call.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
