package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
)

type fakeEngine struct {
	shape       tensor.Shape
	predictions []Prediction
	err         error
	block       chan struct{}
	calls       int
}

func (f *fakeEngine) InputShape() tensor.Shape { return f.shape }

func (f *fakeEngine) Execute(ctx context.Context, t *tensor.Tensor) ([]Prediction, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	return f.predictions, f.err
}

func smallShape() tensor.Shape {
	return tensor.Shape{Batch: 1, Channels: 3, Height: 2, Width: 2}
}

func mustTensor(t *testing.T, s tensor.Shape) *tensor.Tensor {
	t.Helper()
	tn, err := tensor.New(s, make([]float32, s.Len()))
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}
	return tn
}

func requireInferenceError(t *testing.T, err error, cause error) {
	t.Helper()
	var ie *InferenceError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InferenceError, got %T (%v)", err, err)
	}
	if cause != nil && !errors.Is(err, cause) {
		t.Fatalf("expected cause %v, got %v", cause, ie.Err)
	}
}

func TestClassifyTopLabel(t *testing.T) {
	engine := &fakeEngine{
		shape:       smallShape(),
		predictions: []Prediction{{"cat", 0.9}, {"dog", 0.1}},
	}
	a := NewAdapter(engine, 0, nil)

	res, err := a.Classify(context.Background(), mustTensor(t, smallShape()))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	top, ok := res.Top()
	if !ok {
		t.Fatal("expected a top prediction")
	}
	if top.Label != "cat" || top.Probability != 0.9 {
		t.Fatalf("expected cat/0.9, got %s/%v", top.Label, top.Probability)
	}
	if res.Elapsed < 0 {
		t.Fatalf("negative duration %v", res.Elapsed)
	}
}

func TestClassifySortsDescending(t *testing.T) {
	engine := &fakeEngine{
		shape:       smallShape(),
		predictions: []Prediction{{"dog", 0.1}, {"fox", 0.3}, {"cat", 0.6}},
	}
	res, err := NewAdapter(engine, 0, nil).Classify(context.Background(), mustTensor(t, smallShape()))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"cat", "fox", "dog"}
	for i, p := range res.Predictions {
		if p.Label != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], p.Label)
		}
	}
	if engine.predictions[0].Label != "dog" {
		t.Fatal("adapter reordered the engine's slice in place")
	}
}

func TestClassifyMeasuresElapsed(t *testing.T) {
	engine := &fakeEngine{shape: smallShape(), predictions: []Prediction{{"cat", 1}}}
	a := NewAdapter(engine, 0, nil)
	base := time.Unix(100, 0)
	calls := 0
	a.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}

	res, err := a.Classify(context.Background(), mustTensor(t, smallShape()))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Elapsed != 1.5 {
		t.Fatalf("expected 1.5s, got %v", res.Elapsed)
	}
}

func TestClassifyErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewAdapter(nil, 0, nil).Classify(ctx, mustTensor(t, smallShape()))
	requireInferenceError(t, err, ErrModelNotLoaded)

	engine := &fakeEngine{shape: tensor.DefaultShape, predictions: []Prediction{{"cat", 1}}}
	_, err = NewAdapter(engine, 0, nil).Classify(ctx, mustTensor(t, smallShape()))
	requireInferenceError(t, err, ErrShapeMismatch)
	if engine.calls != 0 {
		t.Fatal("engine ran on a mismatched tensor")
	}

	_, err = NewAdapter(engine, 0, nil).Classify(ctx, nil)
	requireInferenceError(t, err, ErrShapeMismatch)

	boom := errors.New("runtime fault")
	failing := &fakeEngine{shape: smallShape(), err: boom}
	_, err = NewAdapter(failing, 0, nil).Classify(ctx, mustTensor(t, smallShape()))
	requireInferenceError(t, err, boom)

	empty := &fakeEngine{shape: smallShape()}
	_, err = NewAdapter(empty, 0, nil).Classify(ctx, mustTensor(t, smallShape()))
	requireInferenceError(t, err, ErrEmptyOutput)
}

func TestClassifyTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	engine := &fakeEngine{shape: smallShape(), predictions: []Prediction{{"cat", 1}}, block: block}

	_, err := NewAdapter(engine, 20*time.Millisecond, nil).Classify(context.Background(), mustTensor(t, smallShape()))
	requireInferenceError(t, err, context.DeadlineExceeded)
}

func TestInputShapeWithoutEngine(t *testing.T) {
	if got := NewAdapter(nil, 0, nil).InputShape(); got != tensor.DefaultShape {
		t.Fatalf("expected default shape, got %s", got)
	}
}
