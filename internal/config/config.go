// Package config loads the batcha configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	defaults "github.com/xtxerr/batcha/config"
)

// Config represents the complete batcha configuration.
type Config struct {
	// Container configures the container file.
	Container ContainerConfig `yaml:"container"`

	// Arrays configures array entry storage.
	Arrays ArraysConfig `yaml:"arrays"`

	// Export configures Parquet export.
	Export ExportConfig `yaml:"export"`

	// Summary configures column summaries.
	Summary SummaryConfig `yaml:"summary"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ContainerConfig configures the container file.
type ContainerConfig struct {
	// ReadOnly opens the file without write access.
	ReadOnly bool `yaml:"readonly"`

	// Title is stored on the root group when the file is created.
	Title string `yaml:"title"`
}

// ArraysConfig configures array entry storage.
type ArraysConfig struct {
	// Compression is the codec: zstd, s2, lz4, none.
	Compression string `yaml:"compression"`

	// Level is the compression level: 0-22 for zstd, 0-9 for lz4.
	Level int `yaml:"level"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Dir is the output directory.
	Dir string `yaml:"dir"`

	// Compression is the Parquet codec: zstd, snappy, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// Workers is the number of tables exported in parallel.
	Workers int `yaml:"workers"`
}

// SummaryConfig configures column summaries.
type SummaryConfig struct {
	// Accuracy is the relative accuracy of percentiles (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text, json or pretty.
	Format string `yaml:"format"`
}

// Load loads configuration from a YAML file, applies BATCHA_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Container: ContainerConfig{
			Title: defaults.DefaultTitle,
		},
		Arrays: ArraysConfig{
			Compression: defaults.DefaultArrayCompression,
			Level:       defaults.DefaultArrayCompressionLevel,
		},
		Export: ExportConfig{
			Dir:         defaults.DefaultExportDir,
			Compression: defaults.DefaultExportCompression,
			Workers:     defaults.DefaultExportWorkers,
		},
		Summary: SummaryConfig{
			Accuracy: defaults.DefaultSummaryAccuracy,
		},
		Logging: LoggingConfig{
			Level:  defaults.DefaultLogLevel,
			Format: defaults.DefaultLogFormat,
		},
	}
}

// ApplyEnv overrides fields from BATCHA_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"BATCHA_CONTAINER_TITLE":    &c.Container.Title,
		"BATCHA_ARRAYS_COMPRESSION": &c.Arrays.Compression,
		"BATCHA_EXPORT_DIR":         &c.Export.Dir,
		"BATCHA_EXPORT_COMPRESSION": &c.Export.Compression,
		"BATCHA_LOG_LEVEL":          &c.Logging.Level,
		"BATCHA_LOG_FORMAT":         &c.Logging.Format,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("BATCHA_CONTAINER_READONLY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BATCHA_CONTAINER_READONLY: %w", err)
		}
		c.Container.ReadOnly = b
	}
	for key, dst := range map[string]*int{
		"BATCHA_ARRAYS_LEVEL":   &c.Arrays.Level,
		"BATCHA_EXPORT_WORKERS": &c.Export.Workers,
	} {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("BATCHA_SUMMARY_ACCURACY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BATCHA_SUMMARY_ACCURACY: %w", err)
		}
		c.Summary.Accuracy = f
	}
	return nil
}
