package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_HasOwnKoanf(t *testing.T) {
	m1 := NewManager()
	m2 := NewManager()
	require.NotNil(t, m1.Koanf())
	assert.NotSame(t, m1.Koanf(), m2.Koanf(), "managers must not share state")
	assert.Equal(t, ".", m1.Koanf().Delim())
}

func TestDefaultConfig_ReturnsExpectedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Scan.MaxWorkers)
	assert.Equal(t, 30*time.Minute, cfg.Scan.DefaultTimeout)
	assert.Equal(t, 5*time.Second, cfg.Scan.KillGrace)
	assert.Equal(t, "skip", cfg.Scan.MissingDependency)
	assert.False(t, cfg.Scan.AllowActive)
}

func TestManager_Load_LoadsDefaultsWhenNoFlags(t *testing.T) {
	manager := NewManager()
	require.NoError(t, manager.Load(nil, ""))

	cfg := manager.Get()
	assert.Equal(t, DefaultConfig().Log, cfg.Log)
	assert.Equal(t, 4, cfg.Scan.MaxWorkers)
	assert.Equal(t, 30*time.Minute, cfg.Scan.DefaultTimeout)
	assert.Equal(t, "conductor-output", cfg.Scan.OutputDir)
}

func TestManager_Load_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	content := `
log:
  level: info
scan:
  max_workers: 8
  parallel: true
  output_dir: /from/file
  default_timeout: 10m
  timeouts:
    - nmap=15m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONDUCTOR_SCAN_MAX_WORKERS", "16")
	t.Setenv("CONDUCTOR_SCAN_OUTPUT_DIR", "/from/env")

	flags := newTestFlagSet()
	require.NoError(t, flags.Set("output", "/from/flag"))

	manager := NewManager()
	require.NoError(t, manager.Load(flags, path))
	cfg := manager.Get()

	assert.Equal(t, "info", cfg.Log.Level, "file overrides defaults")
	assert.True(t, cfg.Scan.Parallel, "file overrides defaults")
	assert.Equal(t, 10*time.Minute, cfg.Scan.DefaultTimeout, "file durations are decoded")
	assert.Equal(t, []string{"nmap=15m"}, cfg.Scan.Timeouts)
	assert.Equal(t, 16, cfg.Scan.MaxWorkers, "env overrides file")
	assert.Equal(t, "/from/flag", cfg.Scan.OutputDir, "flags override env")
}

func TestManager_Load_UnchangedFlagsKeepLowerSources(t *testing.T) {
	t.Setenv("CONDUCTOR_SCAN_MAX_WORKERS", "12")

	manager := NewManager()
	require.NoError(t, manager.Load(newTestFlagSet(), ""))

	assert.Equal(t, 12, manager.Get().Scan.MaxWorkers)
}

func TestManager_Load_FlagsOverride(t *testing.T) {
	flags := newTestFlagSet()
	require.NoError(t, flags.Set("log-format", "json"))
	require.NoError(t, flags.Set("parallel", "true"))
	require.NoError(t, flags.Set("max-workers", "2"))
	require.NoError(t, flags.Set("plugins", "dns,http"))
	require.NoError(t, flags.Set("timeout", "nmap=5m"))
	require.NoError(t, flags.Set("timeout", "zap=90"))
	require.NoError(t, flags.Set("dependency-wait", "45s"))

	manager := NewManager()
	require.NoError(t, manager.Load(flags, ""))
	cfg := manager.Get()

	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Scan.Parallel)
	assert.Equal(t, 2, cfg.Scan.MaxWorkers)
	assert.Equal(t, []string{"dns", "http"}, cfg.Scan.Plugins)
	assert.Equal(t, []string{"nmap=5m", "zap=90"}, cfg.Scan.Timeouts)
	assert.Equal(t, 45*time.Second, cfg.Scan.DependencyWait)
}

func TestManager_Load_DebugFlagSetsLogLevelToDebug(t *testing.T) {
	flags := newTestFlagSet()
	require.NoError(t, flags.Set("debug", "true"))

	manager := NewManager()
	require.NoError(t, manager.Load(flags, ""))
	assert.Equal(t, "debug", manager.Get().Log.Level)
}

func TestManager_Get_ReturnsCopy(t *testing.T) {
	flags := newTestFlagSet()
	require.NoError(t, flags.Set("plugins", "dns"))

	manager := NewManager()
	require.NoError(t, manager.Load(flags, ""))

	cfg := manager.Get()
	cfg.Scan.Plugins[0] = "changed"
	assert.Equal(t, []string{"dns"}, manager.Get().Scan.Plugins)
}

func TestBindFlags_AddsDebugFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	debugFlag := flags.Lookup("debug")
	require.NotNil(t, debugFlag)
	assert.Equal(t, "Enable debug logging", debugFlag.Usage)
	assert.Equal(t, "false", debugFlag.DefValue)
}

func TestBoundFlagsHaveKeys(t *testing.T) {
	flags := newTestFlagSet()
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "debug" {
			return
		}
		assert.NotEmpty(t, FlagKey(f.Name), "flag %s has no config key", f.Name)
	})
}

func TestTimeoutOverrides(t *testing.T) {
	got, err := ScanConfig{Timeouts: []string{"nmap=15m", " zap = 90 ", "", "nikto=1h30m", "whatweb=010"}}.TimeoutOverrides()
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Duration{
		"nmap":    15 * time.Minute,
		"zap":     90 * time.Second,
		"nikto":   90 * time.Minute,
		"whatweb": 10 * time.Second,
	}, got, "bare numbers are decimal seconds")

	for _, bad := range []string{"nmap", "=5m", "nmap=soon", "nmap=0", "nmap=-5s", "nmap=1.5", "nmap=0x10"} {
		_, err := ScanConfig{Timeouts: []string{bad}}.TimeoutOverrides()
		assert.Error(t, err, bad)
	}
}

func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	BindSelectionFlags(flags)
	BindScanFlags(flags)
	return flags
}
