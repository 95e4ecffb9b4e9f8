package config

import (
	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/export"
	"github.com/xtxerr/batcha/internal/logging"
)

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	if comp, err := container.ParseCompression(c.Arrays.Compression); err != nil {
		v.AddField("arrays.compression", "must be one of: zstd, s2, lz4, none")
	} else {
		v.Add(container.CheckLevel(comp, c.Arrays.Level))
	}

	if c.Export.Dir == "" {
		v.AddMissing("export.dir")
	}
	if _, err := export.ParseCompression(c.Export.Compression); err != nil {
		v.AddField("export.compression", "must be one of: zstd, snappy, lz4, gzip, none")
	}
	if c.Export.Workers <= 0 {
		v.AddField("export.workers", "must be positive")
	}

	if c.Summary.Accuracy <= 0 || c.Summary.Accuracy >= 1 {
		v.AddField("summary.accuracy", "must be between 0 and 1")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		v.AddField("logging.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		v.AddField("logging.format", err.Error())
	}

	return v.Err()
}
