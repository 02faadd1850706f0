package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/Brownie44l1/squeezenet-api/internal/imageio"
	"github.com/Brownie44l1/squeezenet-api/internal/model"
	"github.com/Brownie44l1/squeezenet-api/internal/samples"
	"go.uber.org/zap"
)

var (
	// ErrNoImage is the cause when Classify runs without a selected image.
	ErrNoImage = errors.New("no image selected")
	// ErrSuperseded is returned by a Classify call whose result was replaced
	// by a newer one.
	ErrSuperseded = errors.New("classification superseded by a newer request")
	// ErrCaptureDisabled is returned when a frame arrives outside capture mode.
	ErrCaptureDisabled = errors.New("capture mode is not enabled")
)

// Runner classifies the image behind a reference.
type Runner interface {
	Run(ctx context.Context, ref string) (*model.Result, error)
}

// Shell owns the displayed State and serializes the user actions on it.
// Classifications follow cancel-and-replace: starting one cancels the one in
// flight, whose result is then dropped.
type Shell struct {
	runner  Runner
	catalog *samples.Catalog
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	version uint64
	gen     uint64
	cancel  context.CancelFunc
	rng     *rand.Rand

	subMu     sync.Mutex
	subs      []func(State)
	published uint64
}

// NewShell returns a shell in the initial state. catalog may be nil when no
// samples are configured.
func NewShell(runner Runner, catalog *samples.Catalog, seed int64, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{
		runner:  runner,
		catalog: catalog,
		logger:  logger,
		state:   Initial(),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Subscribe registers fn to receive new states in version order. A state
// that is already stale when its turn comes is skipped.
func (s *Shell) Subscribe(fn func(State)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Shell) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Shell) ChooseFile(ref string) State {
	return s.apply(func(st State) State { return st.WithImage(ref, SourceFile, 0) })
}

func (s *Shell) EnableCapture() State {
	return s.apply(func(st State) State { return st.WithCapture(true) })
}

// CancelCapture leaves capture mode without changing the image.
func (s *Shell) CancelCapture() State {
	return s.apply(func(st State) State { return st.WithCapture(false) })
}

// Capture selects a camera frame. Capture mode must be on.
func (s *Shell) Capture(ref string) (State, error) {
	s.mu.Lock()
	if !s.state.CaptureEnabled {
		st := s.state
		s.mu.Unlock()
		return st, ErrCaptureDisabled
	}
	st := s.commit(s.state.WithImage(ref, SourceCapture, 0))
	s.mu.Unlock()

	s.publish(st)
	return st, nil
}

// RandomSample selects a sample image other than the one on display.
func (s *Shell) RandomSample() (State, error) {
	if s.catalog == nil {
		return s.Snapshot(), samples.ErrNoSamples
	}

	s.mu.Lock()
	current := -1
	if s.state.Source == SourceSample {
		current = s.state.SampleIndex
	}
	idx, err := s.catalog.Random(current, s.rng)
	if err != nil {
		st := s.state
		s.mu.Unlock()
		return st, err
	}
	path, err := s.catalog.Path(idx)
	if err != nil {
		st := s.state
		s.mu.Unlock()
		return st, err
	}
	st := s.commit(s.state.WithImage(path, SourceSample, idx))
	s.mu.Unlock()

	s.publish(st)
	return st, nil
}

// Classify runs the current image through the pipeline. It returns the
// resulting state, or ErrSuperseded if a newer Classify replaced this one.
// Load failures are *imageio.DecodeError and engine failures
// *model.InferenceError; in both cases the previous result stays displayed.
func (s *Shell) Classify(ctx context.Context) (State, error) {
	s.mu.Lock()
	if !s.state.HasImage() {
		st := s.commit(s.state.WithError(MsgNoImage))
		s.mu.Unlock()
		s.publish(st)
		return st, &imageio.DecodeError{Err: ErrNoImage}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	ref := s.state.Image
	st := s.commit(s.state.Inferencing(gen))
	s.mu.Unlock()

	s.publish(st)
	res, err := s.runner.Run(runCtx, ref)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		s.logger.Debug("classification superseded", zap.Uint64("generation", gen))
		return State{}, ErrSuperseded
	}
	cancel()
	s.cancel = nil
	if err != nil {
		st = s.commit(s.state.WithError(messageFor(err)))
	} else {
		st = s.commit(s.state.WithResult(gen, res))
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Error during inference",
			zap.String("image", imageio.Describe(ref)),
			zap.Uint64("generation", gen),
			zap.Error(err))
	} else {
		s.logger.Info("classified",
			zap.String("image", imageio.Describe(ref)),
			zap.String("label", st.Label),
			zap.Float32("confidence", st.Confidence),
			zap.Float64("seconds", st.InferenceTime))
	}
	s.publish(st)
	return st, err
}

func (s *Shell) apply(fn func(State) State) State {
	s.mu.Lock()
	st := s.commit(fn(s.state))
	s.mu.Unlock()

	s.publish(st)
	return st
}

// commit stamps st with the next version and makes it current. s.mu must be
// held.
func (s *Shell) commit(st State) State {
	s.version++
	st.Version = s.version
	s.state = st
	return st
}

// publish hands st to subscribers unless a newer version already went out,
// so subscribers never see states out of order.
func (s *Shell) publish(st State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if st.Version <= s.published {
		return
	}
	s.published = st.Version
	for _, fn := range s.subs {
		fn(st)
	}
}

func messageFor(err error) string {
	var de *imageio.DecodeError
	if errors.As(err, &de) {
		if errors.Is(err, ErrNoImage) {
			return MsgNoImage
		}
		return MsgUnreadable
	}
	return MsgInferenceError
}
