package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  timeout: 15s
model:
  dir: /opt/models
  file: resnet50.onnx
encoder:
  filter: lanczos3
inference:
  timeout: 2s
log:
  level: debug
  format: console
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Timeout != 15*time.Second {
		t.Errorf("unexpected server section %+v", cfg.Server)
	}
	if cfg.ModelPath() != filepath.Join("/opt/models", "resnet50.onnx") {
		t.Errorf("unexpected model path %s", cfg.ModelPath())
	}
	if cfg.MetadataPath() != filepath.Join("/opt/models", "model_metadata.json") {
		t.Errorf("metadata default lost: %s", cfg.MetadataPath())
	}
	if cfg.Inference.Timeout != 2*time.Second {
		t.Errorf("unexpected inference timeout %s", cfg.Inference.Timeout)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("upload limit default lost: %d", cfg.Server.MaxUploadBytes)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Encoder.Filter != "bilinear" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad filter": "encoder:\n  filter: sinc\n",
		"bad port":   "server:\n  port: 70000\n",
		"bad format": "log:\n  format: xml\n",
		"no model":   "model:\n  file: \"\"\n",
		"bad yaml":   "server: [\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{Port: 3000, LibraryPath: "/usr/lib/libonnxruntime.so"})
	if cfg.Server.Port != 3000 || cfg.Model.LibraryPath != "/usr/lib/libonnxruntime.so" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Model.Dir != "models" {
		t.Fatalf("empty override replaced model dir: %s", cfg.Model.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "4321")
	t.Setenv("MODEL_DIR", "/srv/models")
	t.Setenv("ONNXRUNTIME_LIB", "")

	o := EnvOverrides()
	if o.Port != 4321 || o.ModelDir != "/srv/models" || o.LibraryPath != "" {
		t.Fatalf("unexpected overrides %+v", o)
	}
}
