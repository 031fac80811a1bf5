package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSource_Load(t *testing.T) {
	k := koanf.New(".")
	src := &DefaultSource{}
	assert.Equal(t, 10, src.Priority())
	assert.Equal(t, "defaults", src.Name())

	require.NoError(t, src.Load(k))
	assert.Equal(t, "warn", k.String("log.level"))
	assert.Equal(t, 4, k.Int("scan.max_workers"))
	assert.Equal(t, "skip", k.String("scan.missing_dependency"))
}

func TestFileSource(t *testing.T) {
	src := &FileSource{Path: "/tmp/test.yaml"}
	assert.Equal(t, 20, src.Priority())
	assert.Equal(t, "file:/tmp/test.yaml", src.Name())

	k := koanf.New(".")
	require.NoError(t, (&FileSource{}).Load(k), "empty path should skip silently")
	require.NoError(t, (&FileSource{Path: "/nonexistent/conductor.yaml"}).Load(k), "missing file should skip silently")
}

func TestFileSource_Load_ValidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "conductor.yaml")
	configContent := `
log:
  level: error
  format: json
scan:
  max_workers: 9
  plugins: [dns, http]
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	k := koanf.New(".")
	require.NoError(t, (&FileSource{Path: configPath}).Load(k))

	assert.Equal(t, "error", k.String("log.level"))
	assert.Equal(t, "json", k.String("log.format"))
	assert.Equal(t, 9, k.Int("scan.max_workers"))
	assert.Equal(t, []string{"dns", "http"}, k.Strings("scan.plugins"))
}

func TestFileSource_Load_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("scan: [unclosed"), 0o644))

	err := (&FileSource{Path: configPath}).Load(koanf.New("."))
	require.Error(t, err)
	assert.Contains(t, err.Error(), configPath)
}

func TestEnvSource_Load(t *testing.T) {
	t.Setenv("CONDUCTOR_LOG_LEVEL", "error")
	t.Setenv("CONDUCTOR_SCAN_MAX_WORKERS", "8")
	t.Setenv("CONDUCTOR_SCAN_MISSING_DEPENDENCY", "run")

	k := koanf.New(".")
	src := &EnvSource{}
	assert.Equal(t, 30, src.Priority())
	assert.Equal(t, "env", src.Name())
	require.NoError(t, src.Load(k))

	assert.Equal(t, "error", k.String("log.level"))
	assert.Equal(t, 8, k.Int("scan.max_workers"))
	assert.Equal(t, "run", k.String("scan.missing_dependency"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "scan.max_workers", envKey("CONDUCTOR_", "CONDUCTOR_SCAN_MAX_WORKERS"))
	assert.Equal(t, "log.level", envKey("CONDUCTOR_", "CONDUCTOR_LOG_LEVEL"))
	assert.Equal(t, "debug", envKey("CONDUCTOR_", "CONDUCTOR_DEBUG"))
}

func TestFlagSource_Load(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindScanFlags(flags)
	require.NoError(t, flags.Set("max-workers", "3"))

	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))

	src := &FlagSource{Flags: flags}
	assert.Equal(t, 40, src.Priority())
	require.NoError(t, src.Load(k))

	assert.Equal(t, 3, k.Int("scan.max_workers"))
	assert.False(t, k.Exists("max-workers"), "flag names must be mapped to config keys")
}

func TestFlagSource_Load_DebugFlag(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&FlagSource{Debug: true}).Load(k))
	assert.Equal(t, "debug", k.String("log.level"))
}

func TestDefaultSources_Order(t *testing.T) {
	sources := DefaultSources("/tmp/conductor.yaml", nil, false)

	require.Len(t, sources, 4)
	assert.Equal(t, "defaults", sources[0].Name())
	assert.Equal(t, "file:/tmp/conductor.yaml", sources[1].Name())
	assert.Equal(t, "env", sources[2].Name())
	assert.Equal(t, "flags", sources[3].Name())

	for i := 1; i < len(sources); i++ {
		assert.Greater(t, sources[i].Priority(), sources[i-1].Priority())
	}
}

func TestLoadWithSources_CustomSource(t *testing.T) {
	customSource := &mockConfigSource{
		name:     "custom",
		priority: 25,
		loadFunc: func(k *koanf.Koanf) error {
			return k.Set("log.level", "custom-level")
		},
	}

	manager := NewManager()
	err := manager.LoadWithSources([]ConfigSource{
		&DefaultSource{},
		customSource,
		&EnvSource{},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-level", manager.Get().Log.Level)
}

func TestLoadWithSources_PriorityOrdering(t *testing.T) {
	t.Setenv("CONDUCTOR_LOG_LEVEL", "from-env")

	manager := NewManager()
	err := manager.LoadWithSources([]ConfigSource{
		&EnvSource{},     // priority 30
		&DefaultSource{}, // priority 10, loaded first despite order
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", manager.Get().Log.Level)
}

// mockConfigSource is a test helper for custom config sources
type mockConfigSource struct {
	name     string
	priority int
	loadFunc func(k *koanf.Koanf) error
}

func (m *mockConfigSource) Name() string  { return m.name }
func (m *mockConfigSource) Priority() int { return m.priority }
func (m *mockConfigSource) Load(k *koanf.Koanf) error {
	if m.loadFunc != nil {
		return m.loadFunc(k)
	}
	return nil
}
