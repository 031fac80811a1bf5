// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/conductor/pkg/plugin"
)

func TestCommandPlugin_IsAvailable(t *testing.T) {
	found := &CommandPlugin{Binary: "nmap", lookPath: func(string) (string, error) { return "/usr/bin/nmap", nil }}
	missing := &CommandPlugin{Binary: "nmap", lookPath: func(string) (string, error) { return "", errors.New("not found") }}

	assert.True(t, found.IsAvailable(context.Background()))
	assert.False(t, missing.IsAvailable(context.Background()))
	assert.False(t, (&CommandPlugin{Binary: "conductor-no-such-binary-xyz"}).IsAvailable(context.Background()))
}

func TestCommandPlugin_Preview(t *testing.T) {
	p := &CommandPlugin{
		Binary:     "nmap",
		Args:       []string{"-sV", "-oX", "{output}", "{target}"},
		OutputFile: "nmap.xml",
	}
	assert.Equal(t, "nmap -sV -oX /out/nmap/nmap.xml example.com", p.Preview("example.com", "/out/nmap"))
}

func TestCommandPlugin_RunAndPostProcess(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	p := &CommandPlugin{
		Name:       "echo",
		Binary:     "sh",
		Args:       []string{"-c", "echo scanning {target}; echo done > {output}"},
		OutputFile: "out.txt",
	}

	raw, err := p.Run(context.Background(), plugin.RunRequest{Target: "example.com", OutputDir: dir})
	require.NoError(t, err)
	require.True(t, raw.Succeeded, raw.Detail)

	log, err := os.ReadFile(filepath.Join(dir, RawLogFile))
	require.NoError(t, err)
	assert.Equal(t, "scanning example.com\n", string(log))
	assert.FileExists(t, filepath.Join(dir, "out.txt"))

	path, err := p.PostProcess(context.Background(), raw, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ArtifactFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var art Artifact
	require.NoError(t, json.Unmarshal(data, &art))
	assert.Equal(t, "echo", art.Plugin)
	assert.Equal(t, 0, art.ExitCode)
	assert.Equal(t, filepath.Join(dir, "out.txt"), art.Output)
	assert.Equal(t, filepath.Join(dir, RawLogFile), art.RawLog)
	assert.False(t, art.Reused)
}

func TestCommandPlugin_RunFailureDetail(t *testing.T) {
	requireShell(t)

	p := &CommandPlugin{Name: "bad", Binary: "sh", Args: []string{"-c", "echo first >&2; echo last >&2; exit 2"}}
	raw, err := p.Run(context.Background(), plugin.RunRequest{Target: "t", OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, raw.Succeeded)
	assert.Equal(t, "exit status 2: last", raw.Detail)
}

func TestCommandPlugin_RunHonoursContext(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := &CommandPlugin{Name: "slow", Binary: "sh", Args: []string{"-c", "sleep 30"}}
	_, err := p.Run(ctx, plugin.RunRequest{Target: "t", OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandPlugin_ReportOnly(t *testing.T) {
	dir := t.TempDir()
	p := &CommandPlugin{
		Name:       "nmap",
		Binary:     "conductor-no-such-binary-xyz",
		Args:       []string{"{target}"},
		OutputFile: "nmap.xml",
	}
	req := plugin.RunRequest{Target: "t", OutputDir: dir, Mode: plugin.ModeFlags{ReportOnly: true}}

	raw, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, raw.Succeeded, "no previous output to reuse")
	assert.Contains(t, raw.Detail, "no previous output")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "nmap.xml"), []byte("<nmaprun/>"), 0o644))
	raw, err = p.Run(context.Background(), req)
	require.NoError(t, err)
	require.True(t, raw.Succeeded)
	assert.True(t, raw.Payload.(RunPayload).Reused)
	assert.NoFileExists(t, filepath.Join(dir, RawLogFile), "nothing is executed")
}

func TestCommandPlugin_ReportOnlyWithoutOutputFile(t *testing.T) {
	p := &CommandPlugin{Name: "x", Binary: "true"}
	raw, err := p.Run(context.Background(), plugin.RunRequest{OutputDir: t.TempDir(), Mode: plugin.ModeFlags{ReportOnly: true}})
	require.NoError(t, err)
	assert.False(t, raw.Succeeded)
}

func TestCommandPlugin_PostProcessRejectsForeignPayload(t *testing.T) {
	p := &CommandPlugin{Name: "x", Binary: "true"}
	_, err := p.PostProcess(context.Background(), plugin.RawOutcome{Succeeded: true, Payload: "text"}, t.TempDir())
	assert.Error(t, err)
}
