// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for conductor.
type Config struct {
	Log  LogConfig  `description:"Logging configuration" koanf:"log"`
	Scan ScanConfig `description:"Scan session configuration" koanf:"scan"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level (trace, debug, info, warn, error)" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format"`
}

// ScanConfig holds the session inputs read by 'conductor run' and 'conductor plan'.
type ScanConfig struct {
	// Selection
	Manifests   []string `description:"Plugin manifest files or directories" koanf:"manifests"`
	Plugins     []string `description:"Allow-list of plugin names (empty = all)" koanf:"plugins"`
	AllowActive bool     `description:"Include active (intrusive) plugins" koanf:"allow_active"`

	// Execution
	Parallel   bool   `description:"Run independent plugins concurrently" koanf:"parallel"`
	MaxWorkers int    `description:"Worker pool size in parallel mode" koanf:"max_workers"`
	DryRun     bool   `description:"Preview plugins without running them" koanf:"dry_run"`
	ReportOnly bool   `description:"Rebuild results from previous raw output" koanf:"report_only"`
	OutputDir  string `description:"Session output directory" koanf:"output_dir"`

	// Timing
	DefaultTimeout time.Duration `description:"Run timeout for plugins without their own" koanf:"default_timeout"`
	Timeouts       []string      `description:"Per-plugin timeout overrides as name=duration" koanf:"timeouts"`
	DependencyWait time.Duration `description:"Max wait for dependencies in parallel mode (0 = unbounded)" koanf:"dependency_wait"`
	KillGrace      time.Duration `description:"Grace period for a cancelled plugin to stop" koanf:"kill_grace"`

	// Policy
	MissingDependency string `description:"Dependencies outside the session: skip | run" koanf:"missing_dependency"`

	// Outputs
	MetricsFile string `description:"Write Prometheus metrics to this file after the run" koanf:"metrics_file"`
}
