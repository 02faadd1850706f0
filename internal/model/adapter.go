package model

import (
	"context"
	"fmt"
	"time"

	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	"go.uber.org/zap"
)

// Adapter hands tensors to an Engine and times the call. It keeps no state
// between calls.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewAdapter wraps engine. A positive timeout bounds each Classify call in
// addition to the caller's context.
func NewAdapter(engine Engine, timeout time.Duration, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{engine: engine, timeout: timeout, logger: logger, now: time.Now}
}

// InputShape reports the shape the engine expects, or tensor.DefaultShape
// when no engine is loaded.
func (a *Adapter) InputShape() tensor.Shape {
	if a == nil || a.engine == nil {
		return tensor.DefaultShape
	}
	return a.engine.InputShape()
}

type execResult struct {
	predictions []Prediction
	err         error
}

// Classify runs t through the engine. Every failure is an *InferenceError.
func (a *Adapter) Classify(ctx context.Context, t *tensor.Tensor) (*Result, error) {
	if a == nil || a.engine == nil {
		return nil, &InferenceError{Op: "execute", Err: ErrModelNotLoaded}
	}
	if t == nil {
		return nil, &InferenceError{Op: "validate", Err: fmt.Errorf("%w: nil tensor", ErrShapeMismatch)}
	}
	if want := a.engine.InputShape(); t.Shape() != want {
		return nil, &InferenceError{Op: "validate", Err: fmt.Errorf("%w: got %s, want %s", ErrShapeMismatch, t.Shape(), want)}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// The engine call itself cannot be interrupted, so it runs on its own
	// goroutine and a cancelled caller stops waiting for it.
	done := make(chan execResult, 1)
	start := a.now()
	go func() {
		p, err := a.engine.Execute(ctx, t)
		done <- execResult{predictions: p, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-ctx.Done():
		a.logger.Warn("inference abandoned", zap.Error(ctx.Err()))
		return nil, &InferenceError{Op: "execute", Err: ctx.Err()}
	}
	elapsed := a.now().Sub(start).Seconds()

	if res.err != nil {
		a.logger.Error("inference failed", zap.Error(res.err), zap.Float64("seconds", elapsed))
		return nil, &InferenceError{Op: "execute", Err: res.err}
	}
	if len(res.predictions) == 0 {
		return nil, &InferenceError{Op: "execute", Err: ErrEmptyOutput}
	}
	if elapsed < 0 {
		elapsed = 0
	}

	predictions := make([]Prediction, len(res.predictions))
	copy(predictions, res.predictions)
	SortPredictions(predictions)

	a.logger.Debug("inference done",
		zap.String("top", predictions[0].Label),
		zap.Float32("probability", predictions[0].Probability),
		zap.Float64("seconds", elapsed))

	return &Result{Predictions: predictions, Elapsed: elapsed}, nil
}
