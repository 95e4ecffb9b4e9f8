package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xtxerr/batcha/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Container.Title != "datastore" {
		t.Errorf("expected default title datastore, got %q", cfg.Container.Title)
	}
	if cfg.Arrays.Compression != "zstd" || cfg.Arrays.Level != 1 {
		t.Errorf("expected zstd level 1, got %s level %d", cfg.Arrays.Compression, cfg.Arrays.Level)
	}
	if cfg.Export.Workers <= 0 {
		t.Error("expected positive export workers")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"array compression", func(c *Config) { c.Arrays.Compression = "brotli" }},
		{"array level", func(c *Config) { c.Arrays.Level = 40 }},
		{"lz4 level", func(c *Config) {
			c.Arrays.Compression = "lz4"
			c.Arrays.Level = 10
		}},
		{"negative level", func(c *Config) { c.Arrays.Level = -1 }},
		{"export dir", func(c *Config) { c.Export.Dir = "" }},
		{"export compression", func(c *Config) { c.Export.Compression = "rar" }},
		{"export workers", func(c *Config) { c.Export.Workers = 0 }},
		{"summary accuracy", func(c *Config) { c.Summary.Accuracy = 1.5 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsValidation(err) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Export.Workers = -1
	cfg.Summary.Accuracy = 0

	err := cfg.Validate()
	var v *errors.ValidationErrors
	if !errors.As(err, &v) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(v.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(v.Errors), err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batcha.yaml")

	content := `
container:
  title: run-42
arrays:
  compression: lz4
  level: 9
export:
  workers: 8
logging:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("BATCHA_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := DefaultConfig()
	want.Container.Title = "run-42"
	want.Arrays.Compression = "lz4"
	want.Arrays.Level = 9
	want.Export.Workers = 8
	want.Logging.Format = "json"
	want.Logging.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("export: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("export:\n  workers: 0\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(invalid); err == nil {
		t.Error("expected validation error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BATCHA_CONTAINER_READONLY": "true",
		"BATCHA_EXPORT_WORKERS":     "2",
		"BATCHA_SUMMARY_ACCURACY":   "0.05",
		"BATCHA_EXPORT_DIR":         "/tmp/out",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if !cfg.Container.ReadOnly || cfg.Export.Workers != 2 || cfg.Summary.Accuracy != 0.05 || cfg.Export.Dir != "/tmp/out" {
		t.Errorf("env not applied: %+v", cfg)
	}

	env["BATCHA_EXPORT_WORKERS"] = "many"
	if err := DefaultConfig().ApplyEnv(lookup); err == nil {
		t.Error("expected error for non-numeric workers")
	}
}
