// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/report"
)

func TestPrintData(t *testing.T) {
	tests := []struct {
		name     string
		mode     OutputMode
		data     any
		expected string
	}{
		{"json object", ModeJSON, map[string]string{"name": "nmap"}, "{\n  \"name\": \"nmap\"\n}\n"},
		{"json nil", ModeJSON, nil, "null\n"},
		{"yaml list", ModeYAML, []string{"a", "b"}, "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			f := New(&stdout, &stderr, tt.mode, false, false)
			require.NoError(t, f.PrintData(tt.data))
			assert.Equal(t, tt.expected, stdout.String())
			assert.Empty(t, stderr.String())
		})
	}
}

func TestPrintTable(t *testing.T) {
	headers := []string{"Name", "Category"}
	rows := [][]string{{"dns-enum", "passive"}, {"nmap", "active"}}

	t.Run("table", func(t *testing.T) {
		var stdout bytes.Buffer
		f := New(&stdout, &bytes.Buffer{}, ModeTable, false, false)
		require.NoError(t, f.PrintTable(headers, rows))
		assert.Equal(t, "NAME      CATEGORY\ndns-enum  passive\nnmap      active\n", stdout.String())
	})

	t.Run("json", func(t *testing.T) {
		var stdout bytes.Buffer
		f := New(&stdout, &bytes.Buffer{}, ModeJSON, false, false)
		require.NoError(t, f.PrintTable(headers, rows))

		var items []map[string]string
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &items))
		assert.Equal(t, []map[string]string{
			{"name": "dns-enum", "category": "passive"},
			{"name": "nmap", "category": "active"},
		}, items)
	})

	t.Run("json empty", func(t *testing.T) {
		var stdout bytes.Buffer
		f := New(&stdout, &bytes.Buffer{}, ModeJSON, false, false)
		require.NoError(t, f.PrintTable(headers, nil))
		assert.Equal(t, "[]\n", stdout.String())
	})
}

func TestPrintSummary(t *testing.T) {
	t.Run("table to stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, false, false).PrintSummary("done"))
		assert.Equal(t, "done\n", stdout.String())
		assert.Empty(t, stderr.String())
	})

	t.Run("structured to stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeJSON, false, false).PrintSummary("done"))
		assert.Empty(t, stdout.String())
		assert.Equal(t, "done\n", stderr.String())
	})

	t.Run("quiet", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, true, false).PrintSummary("done"))
		assert.Empty(t, stdout.String())
		assert.Empty(t, stderr.String())
	})
}

func TestPrintError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, false, false).PrintError(nil))
		assert.Empty(t, stderr.String())
	})

	t.Run("table with suggestions", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := &engine.CyclicDependencyError{Cycle: []string{"a", "b", "a"}}
		require.NoError(t, New(&stdout, &stderr, ModeTable, false, false).PrintError(err))

		out := stderr.String()
		assert.Contains(t, out, "Error: cyclic dependency detected: a -> b -> a")
		assert.Contains(t, out, "💡 Suggestions:")
		assert.Contains(t, out, "conductor plan --format yaml")
		assert.Empty(t, stdout.String())
	})

	t.Run("json", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := fmt.Errorf("load: %w", plugin.ErrConfig)
		require.NoError(t, New(&stdout, &stderr, ModeJSON, false, false).PrintError(err))

		var got map[string]any
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
		assert.Equal(t, false, got["success"])
		assert.Equal(t, "CONFIG_INVALID", got["error_code"])
	})

	t.Run("no suggestions for generic errors", func(t *testing.T) {
		var stderr bytes.Buffer
		require.NoError(t, New(&bytes.Buffer{}, &stderr, ModeTable, false, false).PrintError(errors.New("boom")))
		assert.Equal(t, "Error: boom\n", stderr.String())
	})
}

func TestPrintSession(t *testing.T) {
	summary := sampleSummary(t)

	t.Run("table", func(t *testing.T) {
		var stdout bytes.Buffer
		require.NoError(t, New(&stdout, &bytes.Buffer{}, ModeTable, false, false).PrintSession(summary))

		out := stdout.String()
		assert.Contains(t, out, "PLUGIN")
		assert.Contains(t, out, "/out/dns/artifact.json")
		assert.Contains(t, out, "✓ Succeeded: 1")
		assert.Contains(t, out, "⏱ Timed out: 1")
		assert.Contains(t, out, "⚠ Skipped:   1")
		assert.NotContains(t, out, "✗ Failed")
		assert.Contains(t, out, "- nmap: plugin 'nmap' exceeded timeout of 1s")
		assert.Contains(t, out, "--timeout <plugin>=<duration>")
		assert.Contains(t, out, "--missing-dependency run")
	})

	t.Run("json", func(t *testing.T) {
		var stdout bytes.Buffer
		require.NoError(t, New(&stdout, &bytes.Buffer{}, ModeJSON, false, false).PrintSession(summary))

		var got report.Summary
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
		assert.Equal(t, summary.SessionID, got.SessionID)
		assert.Equal(t, 1, got.Count(plugin.TimedOut))
	})

	t.Run("quiet or nil", func(t *testing.T) {
		var stdout bytes.Buffer
		require.NoError(t, New(&stdout, &bytes.Buffer{}, ModeTable, true, false).PrintSession(summary))
		require.NoError(t, New(&stdout, &bytes.Buffer{}, ModeTable, false, false).PrintSession(nil))
		assert.Empty(t, stdout.String())
	})

	t.Run("truncates failures", func(t *testing.T) {
		results := make(map[string]plugin.Result)
		var order []string
		for i := 0; i < maxErrorsToShow+2; i++ {
			name := fmt.Sprintf("p%d", i)
			order = append(order, name)
			results[name] = plugin.Result{Plugin: name, Disposition: plugin.Fail, Error: "boom", ErrorCode: "EXECUTION_FAILED"}
		}
		s, err := report.Assemble(report.Input{SessionID: "s", Order: order, Results: results})
		require.NoError(t, err)

		var stdout bytes.Buffer
		require.NoError(t, New(&stdout, &bytes.Buffer{}, ModeTable, false, false).PrintSession(s))
		assert.Contains(t, stdout.String(), "... and 2 more")
	})
}

func TestValidateAndParseMode(t *testing.T) {
	for _, m := range []string{"table", "json", "yaml", "JSON"} {
		assert.NoError(t, ValidateMode(m), m)
	}
	assert.Error(t, ValidateMode("xml"))

	assert.Equal(t, ModeJSON, ParseMode("json"))
	assert.Equal(t, ModeYAML, ParseMode("yml"))
	assert.Equal(t, ModeTable, ParseMode("anything"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.2s", formatDuration(1234*time.Millisecond))
}

func sampleSummary(t *testing.T) *report.Summary {
	t.Helper()
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	results := map[string]plugin.Result{
		"dns": {
			Plugin: "dns", Disposition: plugin.Success, Artifact: "/out/dns/artifact.json",
			StartedAt: start, FinishedAt: start.Add(time.Second),
		},
		"nmap": {
			Plugin: "nmap", Disposition: plugin.TimedOut,
			Error: "plugin 'nmap' exceeded timeout of 1s", ErrorCode: "EXECUTION_TIMEOUT",
			StartedAt: start.Add(time.Second), FinishedAt: start.Add(2 * time.Second),
		},
		"zap": {
			Plugin: "zap", Disposition: plugin.Skipped,
			Error: "dependency 'web' is not part of this session", ErrorCode: "DEPENDENCY_MISSING",
		},
	}
	s, err := report.Assemble(report.Input{
		SessionID:  "sess-1",
		Target:     "example.com",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Order:      []string{"dns", "nmap", "zap"},
		Results:    results,
	})
	require.NoError(t, err)
	return s
}
