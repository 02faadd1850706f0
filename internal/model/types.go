package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes the model file next to it: tensor names and shapes,
// class labels and output post-processing.
type Metadata struct {
	InputName    string   `json:"input_name"`
	OutputName   string   `json:"output_name"`
	InputShape   []int64  `json:"input_shape"`
	OutputShape  []int64  `json:"output_shape"`
	Classes      []string `json:"classes"`
	ImageSize    int      `json:"image_size"`
	ApplySoftmax bool     `json:"apply_softmax"`
	TopK         int      `json:"top_k"`
}

// LoadMetadata reads and validates a metadata JSON file, filling defaults
// for optional fields.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if len(metadata.InputShape) != 4 {
		return nil, fmt.Errorf("metadata input_shape must have 4 dimensions, got %v", metadata.InputShape)
	}
	if len(metadata.OutputShape) == 0 {
		return nil, fmt.Errorf("metadata output_shape is empty")
	}
	h, w := int(metadata.InputShape[2]), int(metadata.InputShape[3])
	if metadata.ImageSize == 0 {
		metadata.ImageSize = h
	}
	if metadata.ImageSize != h || metadata.ImageSize != w {
		return nil, fmt.Errorf("metadata image_size %d does not match input_shape %v", metadata.ImageSize, metadata.InputShape)
	}
	if metadata.TopK <= 0 {
		metadata.TopK = 5
	}
	return &metadata, nil
}

// Prediction is one ranked label.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Result is the outcome of one inference call. Predictions are sorted by
// descending probability.
type Result struct {
	Predictions []Prediction `json:"predictions"`
	Elapsed     float64      `json:"inference_seconds"`
}

// Top returns the most probable prediction, or false for an empty result.
func (r *Result) Top() (Prediction, bool) {
	if r == nil || len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	return r.Predictions[0], true
}

// PredictionRequest carries an already encoded planar tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// PredictionResponse is the JSON shape returned by the predict endpoints.
type PredictionResponse struct {
	Class       string       `json:"class"`
	Confidence  float32      `json:"confidence"`
	Predictions []Prediction `json:"predictions"`
	Elapsed     float64      `json:"inference_seconds"`
}

// NewPredictionResponse flattens a Result for the wire.
func NewPredictionResponse(r *Result) PredictionResponse {
	top, _ := r.Top()
	return PredictionResponse{
		Class:       top.Label,
		Confidence:  top.Probability,
		Predictions: r.Predictions,
		Elapsed:     r.Elapsed,
	}
}
