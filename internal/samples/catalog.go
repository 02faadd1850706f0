// Package samples manages the sample images offered by the "random image"
// action. The images are not part of the repository; they are copied into
// the configured directory at deploy time.
package samples

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultNames are the sample files a deployment is expected to provide.
var DefaultNames = []string{"strawberry.jpg", "cat.jpg", "moon.jpg", "microphone.jpg"}

// ErrNoSamples is returned when the catalog is empty.
var ErrNoSamples = errors.New("no sample images available")

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Catalog lists the image files in a directory.
type Catalog struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	names []string
}

// NewCatalog scans dir once. A missing directory yields an empty catalog.
func NewCatalog(dir string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{dir: dir, logger: logger}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Dir() string {
	return c.dir
}

func (c *Catalog) Rescan() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read samples dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()

	c.logger.Debug("samples scanned", zap.String("dir", c.dir), zap.Strings("names", names))
	return nil
}

// Names returns the sample file names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

func (c *Catalog) Path(i int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.names) {
		return "", fmt.Errorf("sample index %d out of range [0,%d)", i, len(c.names))
	}
	return filepath.Join(c.dir, c.names[i]), nil
}

func (c *Catalog) Lookup(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.names {
		if n == name {
			return filepath.Join(c.dir, n), true
		}
	}
	return "", false
}

// Random picks a sample index different from current. With a single sample
// that sample is returned.
func (c *Catalog) Random(current int, rng *rand.Rand) (int, error) {
	n := c.Len()
	switch {
	case n == 0:
		return 0, ErrNoSamples
	case n == 1:
		return 0, nil
	case current < 0 || current >= n:
		return rng.Intn(n), nil
	}
	i := rng.Intn(n - 1)
	if i >= current {
		i++
	}
	return i, nil
}

// Watch rescans the catalog whenever files in the directory change, until
// ctx is done.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := c.Rescan(); err != nil {
				c.logger.Warn("sample rescan failed", zap.Error(err))
				continue
			}
			c.logger.Info("samples changed", zap.String("event", ev.String()), zap.Int("count", c.Len()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("sample watcher error", zap.Error(err))
		}
	}
}
