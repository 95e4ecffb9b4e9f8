// Package config provides configuration defaults for batcha.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via a YAML config file or BATCHA_*
// environment variables.
package config

// =============================================================================
// Container Defaults
// =============================================================================

const (
	// DefaultTitle is stored as the TITLE attribute of the root group when
	// a container file is created.
	// Override via config: container.title
	DefaultTitle = "datastore"

	// DefaultStringWidth is the width of string columns created for
	// metadata tables. Longer values are truncated.
	DefaultStringWidth = 64
)

// =============================================================================
// Array Defaults
// =============================================================================

const (
	// DefaultArrayCompression is the codec applied to array entries.
	// Options: zstd, s2, lz4, none
	// Override via config: arrays.compression
	DefaultArrayCompression = "zstd"

	// DefaultArrayCompressionLevel favours speed over ratio.
	// Range: 1-22 for zstd; lz4 switches to its high compression mode above 1.
	// Override via config: arrays.level
	DefaultArrayCompressionLevel = 1
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportDir is where exported Parquet files are written.
	// Override via config: export.dir
	DefaultExportDir = "export"

	// DefaultExportCompression is the Parquet page compression.
	// Options: zstd, snappy, lz4, gzip, none
	// Override via config: export.compression
	DefaultExportCompression = "zstd"

	// DefaultExportWorkers is the number of tables exported in parallel.
	// Override via config: export.workers
	DefaultExportWorkers = 4
)

// =============================================================================
// Summary Defaults
// =============================================================================

const (
	// DefaultSummaryAccuracy is the relative accuracy of percentile
	// estimates (0.01 = 1% error).
	// Override via config: summary.accuracy
	DefaultSummaryAccuracy = 0.01
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level logged.
	// Options: debug, info, warn, error
	// Override via config: logging.level
	DefaultLogLevel = "info"

	// DefaultLogFormat is the log encoding.
	// Options: text, json, pretty
	// Override via config: logging.format
	DefaultLogFormat = "text"
)

// =============================================================================
// Analysis Defaults
// =============================================================================

const (
	// ProgressSteps is how many progress messages a run logs while
	// processing frames.
	ProgressSteps = 10
)
