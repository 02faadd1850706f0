package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestRankProbabilities(t *testing.T) {
	got := Rank([]float32{0.1, 0.7, 0.2}, []string{"dog", "cat", "fox"}, 2, false)
	if len(got) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(got))
	}
	if got[0].Label != "cat" || got[1].Label != "fox" {
		t.Fatalf("unexpected order %v", got)
	}
	if math.Abs(float64(got[0].Probability)-0.7) > 1e-6 {
		t.Fatalf("expected 0.7, got %v", got[0].Probability)
	}
}

func TestRankSoftmax(t *testing.T) {
	got := Rank([]float32{1, 3, 2, 1000}, []string{"a", "b", "c"}, 0, true)
	if len(got) != 4 {
		t.Fatalf("expected all 4 predictions, got %d", len(got))
	}
	if got[0].Label != "class_3" {
		t.Fatalf("expected unnamed index to be labelled class_3, got %s", got[0].Label)
	}
	var sum float64
	for i, p := range got {
		if math.IsNaN(float64(p.Probability)) {
			t.Fatalf("prediction %d is NaN", i)
		}
		if i > 0 && p.Probability > got[i-1].Probability {
			t.Fatalf("not descending at %d: %v", i, got)
		}
		sum += float64(p.Probability)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("softmax should sum to 1, got %v", sum)
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil, nil, 5, true); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestLoadMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	raw := `{"input_shape":[1,3,224,224],"output_shape":[1,1000],"classes":["tench","goldfish"]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if m.InputName != "input" || m.OutputName != "output" {
		t.Errorf("unexpected tensor names %q/%q", m.InputName, m.OutputName)
	}
	if m.ImageSize != 224 {
		t.Errorf("expected image size 224, got %d", m.ImageSize)
	}
	if m.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", m.TopK)
	}
}

func TestLoadMetadataErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadMetadata(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"input_shape":[1,1000],"output_shape":[1,1000]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMetadata(bad); err == nil {
		t.Error("expected error for 2D input shape")
	}

	size := filepath.Join(dir, "size.json")
	if err := os.WriteFile(size, []byte(`{"input_shape":[1,3,224,224],"output_shape":[1,1000],"image_size":227}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMetadata(size); err == nil {
		t.Error("expected error for image_size that disagrees with input_shape")
	}
}

func TestBundledMetadataLabels(t *testing.T) {
	m, err := LoadMetadata("../../models/model_metadata.json")
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if len(m.Classes) != 1000 || int64(len(m.Classes)) != m.OutputShape[len(m.OutputShape)-1] {
		t.Fatalf("expected 1000 classes matching output_shape %v, got %d", m.OutputShape, len(m.Classes))
	}

	scores := make([]float32, len(m.Classes))
	scores[949] = 10
	top := Rank(scores, m.Classes, m.TopK, m.ApplySoftmax)
	if top[0].Label != "strawberry" {
		t.Fatalf("expected strawberry for index 949, got %q", top[0].Label)
	}
	for i, want := range map[int]string{0: "tench", 281: "tabby", 650: "microphone", 999: "toilet tissue"} {
		if m.Classes[i] != want {
			t.Errorf("class %d: expected %q, got %q", i, want, m.Classes[i])
		}
	}
}

func TestNewPredictionResponse(t *testing.T) {
	r := &Result{Predictions: []Prediction{{"cat", 0.9}, {"dog", 0.1}}, Elapsed: 0.25}
	resp := NewPredictionResponse(r)
	if resp.Class != "cat" || resp.Confidence != 0.9 || resp.Elapsed != 0.25 {
		t.Fatalf("unexpected response %+v", resp)
	}
}
