// Package classify chains image loading, tensor encoding and inference.
package classify

import (
	"context"
	"image"

	"github.com/Brownie44l1/squeezenet-api/internal/imageio"
	"github.com/Brownie44l1/squeezenet-api/internal/model"
	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	"go.uber.org/zap"
)

type Classifier interface {
	InputShape() tensor.Shape
	Classify(ctx context.Context, t *tensor.Tensor) (*model.Result, error)
}

// Pipeline loads an image reference, encodes it for the model and runs it.
type Pipeline struct {
	Loader     *imageio.Loader
	Encoder    *tensor.Encoder
	Classifier Classifier
	Logger     *zap.Logger
}

// Run classifies the image behind ref. Load failures are
// *imageio.DecodeError, engine failures *model.InferenceError.
func (p *Pipeline) Run(ctx context.Context, ref string) (*model.Result, error) {
	img, err := p.Loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.RunImage(ctx, img)
}

// RunImage classifies an already decoded raster.
func (p *Pipeline) RunImage(ctx context.Context, img image.Image) (*model.Result, error) {
	t, err := p.Encode(img)
	if err != nil {
		return nil, err
	}
	return p.RunTensor(ctx, t)
}

// Encode converts img to the classifier's input shape. Encoding failures are
// reported as *imageio.DecodeError since no usable raster exists.
func (p *Pipeline) Encode(img image.Image) (*tensor.Tensor, error) {
	shape := p.Classifier.InputShape()
	t, err := p.Encoder.Encode(img, shape)
	if err != nil {
		return nil, &imageio.DecodeError{Err: err}
	}
	p.logger().Debug("image encoded",
		zap.Int("src_width", img.Bounds().Dx()),
		zap.Int("src_height", img.Bounds().Dy()),
		zap.Stringer("shape", shape))
	return t, nil
}

// RunTensor classifies an already encoded tensor.
func (p *Pipeline) RunTensor(ctx context.Context, t *tensor.Tensor) (*model.Result, error) {
	return p.Classifier.Classify(ctx, t)
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
