// pkg/config/config.go
package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/vulntor/conductor/pkg/stringutil"
)

// Manager handles loading and accessing configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager with an empty koanf instance.
func NewManager() *Manager {
	return &Manager{
		koanfInstance: koanf.New("."),
	}
}

// DefaultConfig returns the baseline configuration used when no other
// source overrides a value.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Scan: ScanConfig{
			Manifests:         []string{},
			Plugins:           []string{},
			MaxWorkers:        4,
			OutputDir:         "conductor-output",
			DefaultTimeout:    30 * time.Minute,
			Timeouts:          []string{},
			KillGrace:         5 * time.Second,
			MissingDependency: "skip",
		},
	}
}

// Load loads defaults, the optional config file, CONDUCTOR_* environment
// variables and flags, in that order of precedence.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(customConfigFilePath, flags, debug))
}

// LoadWithSources loads sources in ascending priority and unmarshals the
// merged result.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	for _, src := range ordered {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := m.currentConfig
	cfg.Scan.Manifests = append([]string(nil), cfg.Scan.Manifests...)
	cfg.Scan.Plugins = append([]string(nil), cfg.Scan.Plugins...)
	cfg.Scan.Timeouts = append([]string(nil), cfg.Scan.Timeouts...)
	return cfg
}

// Koanf exposes the merged key space, e.g. for 'config show'-style dumps.
func (m *Manager) Koanf() *koanf.Koanf {
	return m.koanfInstance
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys so every key
// exists before files, env and flags are applied.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"scan.manifests":          def.Scan.Manifests,
		"scan.plugins":            def.Scan.Plugins,
		"scan.allow_active":       def.Scan.AllowActive,
		"scan.parallel":           def.Scan.Parallel,
		"scan.max_workers":        def.Scan.MaxWorkers,
		"scan.dry_run":            def.Scan.DryRun,
		"scan.report_only":        def.Scan.ReportOnly,
		"scan.output_dir":         def.Scan.OutputDir,
		"scan.default_timeout":    def.Scan.DefaultTimeout,
		"scan.timeouts":           def.Scan.Timeouts,
		"scan.dependency_wait":    def.Scan.DependencyWait,
		"scan.kill_grace":         def.Scan.KillGrace,
		"scan.missing_dependency": def.Scan.MissingDependency,
		"scan.metrics_file":       def.Scan.MetricsFile,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":          "log.level",
	"log-format":         "log.format",
	"manifest":           "scan.manifests",
	"plugins":            "scan.plugins",
	"allow-active":       "scan.allow_active",
	"parallel":           "scan.parallel",
	"max-workers":        "scan.max_workers",
	"dry-run":            "scan.dry_run",
	"report-only":        "scan.report_only",
	"output":             "scan.output_dir",
	"default-timeout":    "scan.default_timeout",
	"timeout":            "scan.timeouts",
	"dependency-wait":    "scan.dependency_wait",
	"kill-grace":         "scan.kill_grace",
	"missing-dependency": "scan.missing_dependency",
	"metrics-file":       "scan.metrics_file",
}

// FlagKey returns the configuration key bound to a flag name, or "".
func FlagKey(flag string) string {
	return flagKeys[flag]
}

// BindFlags defines the global flags shared by every command.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")
	flags.String("log-level", defaults.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "Log format (text, json)")
}

// BindManifestFlags defines the flag naming plugin manifests.
func BindManifestFlags(flags *pflag.FlagSet) {
	flags.StringSliceP("manifest", "m", nil, "Plugin manifest file or directory (repeatable)")
}

// BindSelectionFlags defines the flags that choose which plugins take part.
func BindSelectionFlags(flags *pflag.FlagSet) {
	BindManifestFlags(flags)
	flags.StringSliceP("plugins", "p", nil, "Only run these plugins (comma separated)")
	flags.Bool("allow-active", false, "Include active (intrusive) plugins")
	flags.String("missing-dependency", DefaultConfig().Scan.MissingDependency, "Dependencies outside the session: skip or run")
}

// BindScanFlags defines the flags that control execution.
func BindScanFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig().Scan
	flags.Bool("parallel", false, "Run independent plugins concurrently")
	flags.Int("max-workers", defaults.MaxWorkers, "Worker pool size in parallel mode")
	flags.Bool("dry-run", false, "Preview plugins without running them")
	flags.Bool("report-only", false, "Rebuild results from previous raw output")
	flags.StringP("output", "o", defaults.OutputDir, "Session output directory")
	flags.Duration("default-timeout", defaults.DefaultTimeout, "Run timeout for plugins without their own")
	flags.StringSlice("timeout", nil, "Per-plugin timeout override as name=duration (repeatable)")
	flags.Duration("dependency-wait", 0, "Max wait for dependencies in parallel mode (0 = unbounded)")
	flags.Duration("kill-grace", defaults.KillGrace, "Grace period for a cancelled plugin to stop")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
}

// TimeoutOverrides parses "name=duration" entries. A bare number is read as
// seconds.
func (s ScanConfig) TimeoutOverrides() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(s.Timeouts))
	for _, entry := range s.Timeouts {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, raw, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid timeout override %q (want name=duration)", entry)
		}

		d, err := stringutil.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout override %q: %w", entry, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid timeout override %q: must be positive", entry)
		}
		out[name] = d
	}
	return out, nil
}
