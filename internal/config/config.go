package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen to stay comfortably below typical per-client
// throttling thresholds while keeping batch throughput usable.
const (
	// DefaultBaseDelay is the minimum spacing between outbound requests.
	// Two seconds keeps request rates well inside what most sources treat
	// as organic traffic. Can be adjusted via the --base-delay CLI flag.
	DefaultBaseDelay = 2 * time.Second

	// DefaultJitterRange is the random spread added on top of the base
	// delay so request timing never forms a detectable fixed cadence.
	DefaultJitterRange = 750 * time.Millisecond

	// DefaultMaxDelay caps the exponential backoff growth. Five minutes is
	// long enough to outlast most temporary throttling windows without
	// stalling a session indefinitely.
	DefaultMaxDelay = 5 * time.Minute

	// DefaultBackoffCap bounds the backoff multiplier at 6x the base
	// delay; anything past that is covered by DefaultMaxDelay anyway.
	DefaultBackoffCap = 6

	// DefaultMaxWorkers of 4 concurrent workers balances throughput with
	// detection risk. All workers share one limiter, so concurrency does
	// not raise the request rate, only the overlap of in-flight work.
	DefaultMaxWorkers = 4

	// DefaultMaxRetries is the per-item retry budget. Three attempts
	// absorbs transient failures without hammering persistently broken
	// items.
	DefaultMaxRetries = 3

	// DefaultRPSCeiling is the absolute requests-per-second ceiling applied
	// on top of the limiter's pacing.
	DefaultRPSCeiling = 1.0

	// AppName is the application name used for XDG directory paths.
	AppName = "harvestd"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 2MB is sufficient for most record pages while preventing memory
	// exhaustion from unexpectedly large responses.
	DefaultMaxBodySize = 2 * 1024 * 1024 // 2MB

	// DefaultMinBodySize is the plausibility floor used for soft-block
	// detection. Responses smaller than this are treated as interstitials.
	DefaultMinBodySize = 512
)

// Config holds all configuration options for harvestd.
// This struct is designed to be populated from CLI flags and the optional
// config file, then passed through the application via dependency injection
// rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., PacingConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
// If the configuration grows significantly, consider refactoring into sub-structs.
type Config struct {
	// BaseDelay is the minimum spacing between outbound requests.
	// All workers share this floor globally, not per worker.
	BaseDelay time.Duration

	// JitterRange is the random spread added to BaseDelay per request.
	JitterRange time.Duration

	// MaxDelay caps the backoff-inflated delay.
	MaxDelay time.Duration

	// BackoffCap bounds the exponential backoff multiplier.
	BackoffCap int

	// MaxWorkers is the worker pool size per session run.
	MaxWorkers int

	// MaxRetries is the per-item retry budget.
	MaxRetries int

	// RPSCeiling is the absolute requests-per-second ceiling.
	RPSCeiling float64

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .harvestd in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SourceConfigs holds per-source configurations loaded from the config
	// file. This is populated by LoadConfigFile and used when sessions run.
	SourceConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of
	// human-readable format. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Items is the list of item names to harvest.
	Items []string

	// DBDir is the directory path for storing the SQLite session database.
	// Defaults to the XDG data directory (~/.local/share/harvestd on Linux).
	DBDir string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated to prevent memory exhaustion.
	// Set to 0 to use the default (2MB).
	MaxBodySize int64

	// MinBodySize is the soft-block plausibility floor in bytes.
	// Set to 0 to use the default (512).
	MinBodySize int
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., delays, worker
// counts). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		BaseDelay:   DefaultBaseDelay,
		JitterRange: DefaultJitterRange,
		MaxDelay:    DefaultMaxDelay,
		BackoffCap:  DefaultBackoffCap,
		MaxWorkers:  DefaultMaxWorkers,
		MaxRetries:  DefaultMaxRetries,
		RPSCeiling:  DefaultRPSCeiling,
		MaxBodySize: DefaultMaxBodySize,
		MinBodySize: DefaultMinBodySize,
		DBDir:       XDGDataDir(),
	}
}

// EffectiveBaseDelay resolves the pacing base delay for a run. An explicit
// command-line value wins, then the override persisted in the session's
// config, then the per-source override from the config file, then the
// global value.
func (c *Config) EffectiveBaseDelay(flagSet bool, sessionMillis int, sc SourceConfig) time.Duration {
	if flagSet {
		return c.BaseDelay
	}
	if sessionMillis > 0 {
		return time.Duration(sessionMillis) * time.Millisecond
	}
	if sc.BaseDelayMillis > 0 {
		return time.Duration(sc.BaseDelayMillis) * time.Millisecond
	}
	return c.BaseDelay
}

// XDGDataDir returns the XDG data directory for harvestd.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/harvestd
// On macOS: ~/Library/Application Support/harvestd
// On Windows: %LOCALAPPDATA%\harvestd
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for harvestd.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.config/harvestd
// On macOS: ~/Library/Application Support/harvestd
// On Windows: %APPDATA%\harvestd
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for harvestd.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.cache/harvestd
// On macOS: ~/Library/Caches/harvestd
// On Windows: %LOCALAPPDATA%\harvestd\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any session work begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.BaseDelay <= 0 {
		return ErrInvalidBaseDelay
	}

	if c.JitterRange < 0 {
		return ErrInvalidJitter
	}

	if c.MaxDelay < c.BaseDelay {
		return ErrInvalidMaxDelay
	}

	if c.MaxWorkers <= 0 {
		return ErrInvalidMaxWorkers
	}

	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.RPSCeiling <= 0 {
		return ErrInvalidRPSCeiling
	}

	// JSONReport and MarkdownReport are mutually exclusive
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
