// Package imageio loads image references (paths, URLs, data URLs or raw
// bytes) into decoded rasters.
package imageio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps how much is read from a single source.
const DefaultMaxBytes = 20 << 20

var (
	// ErrEmptySource is the cause when a source yields zero bytes.
	ErrEmptySource = errors.New("image source is empty")
	// ErrTooLarge is the cause when a source exceeds the byte limit.
	ErrTooLarge = errors.New("image source exceeds size limit")
)

// DecodeError reports that an image reference could not be turned into a
// raster.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Loader fetches and decodes images.
type Loader struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for http(s) references.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes sets the per-source byte limit.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client:   http.DefaultClient,
		maxBytes: DefaultMaxBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves ref and decodes it. ref may be a data URL, an http(s) URL,
// a file:// URL or a plain filesystem path. Every failure is a *DecodeError.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	data, err := l.read(ctx, ref)
	if err != nil {
		return nil, &DecodeError{Source: Describe(ref), Err: err}
	}
	img, err := l.decode(data)
	if err != nil {
		return nil, &DecodeError{Source: Describe(ref), Err: err}
	}
	return img, nil
}

// Decode decodes raw image bytes.
func (l *Loader) Decode(data []byte) (image.Image, error) {
	if _, err := l.limit(data); err != nil {
		return nil, &DecodeError{Err: err}
	}
	img, err := l.decode(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// DecodeReader reads at most the byte limit from r and decodes it.
func (l *Loader) DecodeReader(r io.Reader) (image.Image, error) {
	data, err := l.readAll(r)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return l.Decode(data)
}

func (l *Loader) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		l.logger.Debug("decoding image", zap.String("format", format), zap.Int("bytes", len(data)))
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptySource
	}
	return img, nil
}

func (l *Loader) read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, ErrEmptySource
	case strings.HasPrefix(ref, "data:"):
		return l.readDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.readHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		return l.readFile(u.Path)
	default:
		return l.readFile(ref)
	}
}

func (l *Loader) readDataURL(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url")
	}
	if !strings.HasSuffix(header, ";base64") {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("unescape data url: %w", err)
		}
		return l.limit([]byte(decoded))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return l.limit(data)
}

func (l *Loader) readHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}
	return l.readAll(resp.Body)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.readAll(f)
}

func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return l.limit(data)
}

func (l *Loader) limit(data []byte) ([]byte, error) {
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	return data, nil
}

// DataURL encodes data as a base64 data URL, the form file uploads and camera
// frames are held in.
func DataURL(mime string, data []byte) string {
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Describe shortens data URLs so errors and logs stay readable.
func Describe(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		header, _, _ := strings.Cut(ref, ",")
		return header + ",..."
	}
	return ref
}
