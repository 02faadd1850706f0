// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	"gopkg.in/yaml.v2"
)

// Config captures the runtime knobs of the classification service.
type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxUploadBytes int64         `yaml:"max_upload_bytes"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"server"`
	Model struct {
		Dir         string `yaml:"dir"`
		File        string `yaml:"file"`
		Metadata    string `yaml:"metadata"`
		LibraryPath string `yaml:"library_path"`
		NumThreads  int    `yaml:"num_threads"`
	} `yaml:"model"`
	Encoder struct {
		Filter string `yaml:"filter"`
	} `yaml:"encoder"`
	Inference struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"inference"`
	Samples struct {
		Dir   string `yaml:"dir"`
		Watch bool   `yaml:"watch"`
		Seed  int64  `yaml:"seed"`
	} `yaml:"samples"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Overrides captures values supplied through the environment.
type Overrides struct {
	Port        int
	ModelDir    string
	LibraryPath string
}

// Default returns a Config that runs the bundled SqueezeNet model.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Server.Timeout = 30 * time.Second
	c.Server.MaxUploadBytes = 10 << 20
	c.Server.AllowedOrigins = []string{"*"}
	c.Model.Dir = "models"
	c.Model.File = "squeezenet1_1.onnx"
	c.Model.Metadata = "model_metadata.json"
	c.Encoder.Filter = tensor.DefaultFilter
	c.Samples.Dir = "samples"
	c.Samples.Watch = true
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvOverrides reads PORT, MODEL_DIR and ONNXRUNTIME_LIB.
func EnvOverrides() Overrides {
	var o Overrides
	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", &o.Port)
	}
	o.ModelDir = os.Getenv("MODEL_DIR")
	o.LibraryPath = os.Getenv("ONNXRUNTIME_LIB")
	return o
}

func (c *Config) ApplyOverrides(o Overrides) {
	if o.Port > 0 {
		c.Server.Port = o.Port
	}
	if o.ModelDir != "" {
		c.Model.Dir = o.ModelDir
	}
	if o.LibraryPath != "" {
		c.Model.LibraryPath = o.LibraryPath
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	if c.Model.File == "" {
		return errors.New("model.file must be set")
	}
	if c.Model.Metadata == "" {
		return errors.New("model.metadata must be set")
	}
	if c.Inference.Timeout < 0 {
		return fmt.Errorf("inference.timeout must be >= 0 (got %s)", c.Inference.Timeout)
	}
	if _, err := tensor.ParseFilter(c.Encoder.Filter); err != nil {
		return fmt.Errorf("encoder.filter: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console (got %q)", c.Log.Format)
	}
	return nil
}

// ModelPath is the absolute or working-directory relative model file.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Model.Dir, c.Model.File)
}

func (c *Config) MetadataPath() string {
	return filepath.Join(c.Model.Dir, c.Model.Metadata)
}
