package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

type ONNXConfig struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's platform default.
	LibraryPath string
	NumThreads  int
}

// ONNXEngine runs a single-input, single-output classification model
// through ONNX Runtime with pre-bound input and output tensors.
type ONNXEngine struct {
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputShape   tensor.Shape
	logger       *zap.Logger
}

// NewONNXEngine initializes the runtime environment and creates a session
// for cfg.ModelPath.
func NewONNXEngine(cfg ONNXConfig, logger *zap.Logger) (*ONNXEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	inShape, err := tensor.ShapeFromDims(metadata.InputShape)
	if err != nil {
		return nil, fmt.Errorf("metadata input_shape: %w", err)
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			logger.Warn("could not set intra-op threads", zap.Int("threads", cfg.NumThreads), zap.Error(err))
		}
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("onnx model loaded",
		zap.String("model", cfg.ModelPath),
		zap.Stringer("input_shape", inShape),
		zap.Int64s("output_shape", metadata.OutputShape),
		zap.Int("classes", len(metadata.Classes)))

	return &ONNXEngine{
		Metadata:     *metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputShape:   inShape,
		logger:       logger,
	}, nil
}

func (e *ONNXEngine) InputShape() tensor.Shape {
	return e.inputShape
}

// Execute implements Engine. Runs are serialized because the session's
// input and output buffers are shared.
func (e *ONNXEngine) Execute(ctx context.Context, t *tensor.Tensor) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, ErrModelNotLoaded
	}
	if n := t.CopyTo(e.inputTensor.GetData()); n != len(e.inputTensor.GetData()) {
		return nil, fmt.Errorf("%w: copied %d of %d values", ErrShapeMismatch, n, len(e.inputTensor.GetData()))
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return Rank(e.outputTensor.GetData(), e.Metadata.Classes, e.Metadata.TopK, e.Metadata.ApplySoftmax), nil
}

// Close releases the session, tensors and runtime environment.
func (e *ONNXEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		e.logger.Warn("failed to destroy ONNX environment", zap.Error(err))
	}
}
