// Package app holds the interactive shell: one explicit State value and
// the user actions that move it forward.
package app

import (
	"fmt"
	"strings"

	"github.com/Brownie44l1/squeezenet-api/internal/imageio"
	"github.com/Brownie44l1/squeezenet-api/internal/model"
)

// Source says where the current image came from.
type Source string

const (
	SourceNone    Source = ""
	SourceFile    Source = "file"
	SourceCapture Source = "capture"
	SourceSample  Source = "sample"
)

// Status is the classification status shown to the user.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusInferencing Status = "inferencing"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// User-facing messages.
const (
	MsgNoImage        = "Please select an image first."
	MsgUnreadable     = "Could not read the selected image. Please select another image."
	MsgInferenceError = "Error during inference"
	MsgInferencing    = "Inferencing..."
)

// State is everything the shell displays. Transitions return a new value
// and never modify the receiver.
type State struct {
	Image          string             `json:"-"`
	Source         Source             `json:"source"`
	SampleIndex    int                `json:"sample_index"`
	CaptureEnabled bool               `json:"capture_enabled"`
	Status         Status             `json:"status"`
	Label          string             `json:"label"`
	Confidence     float32            `json:"confidence"`
	InferenceTime  float64            `json:"inference_seconds"`
	Predictions    []model.Prediction `json:"predictions,omitempty"`
	Error          string             `json:"error,omitempty"`
	Generation     uint64             `json:"generation"`
	Version        uint64             `json:"version"`
}

func Initial() State {
	return State{Status: StatusIdle}
}

func (s State) HasImage() bool {
	return s.Image != ""
}

// WithImage selects a new image. A captured frame keeps the camera on for
// the next shot; any other source leaves capture mode.
func (s State) WithImage(ref string, src Source, sampleIndex int) State {
	s.Image = ref
	s.Source = src
	if src == SourceSample {
		s.SampleIndex = sampleIndex
	}
	s.CaptureEnabled = src == SourceCapture
	s.Error = ""
	return s
}

func (s State) WithCapture(enabled bool) State {
	s.CaptureEnabled = enabled
	return s
}

// Inferencing marks classification generation gen as started. The previous
// result stays in place until a new one replaces it.
func (s State) Inferencing(gen uint64) State {
	s.Status = StatusInferencing
	s.Error = ""
	s.Generation = gen
	return s
}

// WithResult records a successful classification.
func (s State) WithResult(gen uint64, r *model.Result) State {
	top, _ := r.Top()
	s.Status = StatusDone
	s.Label = strings.ToUpper(top.Label)
	s.Confidence = top.Probability
	s.InferenceTime = r.Elapsed
	s.Predictions = append([]model.Prediction(nil), r.Predictions...)
	s.Error = ""
	s.Generation = gen
	return s
}

// WithError records a failure. Image and previous result are kept.
func (s State) WithError(msg string) State {
	s.Status = StatusFailed
	s.Error = msg
	return s
}

// View is the rendered form of a State.
type View struct {
	State
	ImageRef      string `json:"image"`
	ResultLabel   string `json:"result_label"`
	ResultConf    string `json:"result_confidence"`
	InferenceText string `json:"inference_text"`
}

func (s State) View() View {
	v := View{State: s, ImageRef: imageio.Describe(s.Image)}
	if s.Status == StatusInferencing {
		v.ResultLabel = MsgInferencing
		return v
	}
	if s.Label == "" {
		return v
	}
	v.ResultLabel = s.Label
	v.ResultConf = fmt.Sprintf("%g", s.Confidence)
	v.InferenceText = fmt.Sprintf("Inference speed: %g seconds", s.InferenceTime)
	return v
}
