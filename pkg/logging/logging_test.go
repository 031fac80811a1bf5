package logging

import (
	"bytes"
	stdLog "log"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetFormat("text")

	ConfigureGlobal(zerolog.DebugLevel)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	logger := Component("session")
	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"session"`)
	assert.Contains(t, buf.String(), `"caller"`)
}

func TestConfigureGlobalLogging_ParsesLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetFormat("text")

	require.NoError(t, ConfigureGlobalLogging("WARN"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	err := ConfigureGlobalLogging("nonsense")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nonsense"`)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel(), "a bad level keeps the previous one")

	require.NoError(t, ConfigureGlobalLogging(""))
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestStdLogIsRedirected(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	defer SetFormat("text")
	ConfigureGlobal(zerolog.DebugLevel)

	stdLog.Print("from the standard library")
	assert.Contains(t, buf.String(), "from the standard library")
	assert.Contains(t, buf.String(), `"level":"debug"`)

	log.Logger = zerolog.Nop()
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "warn"},
		{1, "info"},
		{2, "debug"},
		{3, "trace"},
		{7, "trace"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityLevel(tt.count, "warn"))
	}
}
