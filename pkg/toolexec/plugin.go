// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vulntor/conductor/pkg/plugin"
)

// Files written into a plugin's output directory.
const (
	RawLogFile   = "raw.log"
	ArtifactFile = "artifact.json"
)

// Argument placeholders expanded before a command runs.
const (
	PlaceholderTarget    = "{target}"
	PlaceholderOutputDir = "{output_dir}"
	PlaceholderOutput    = "{output}"
)

// CommandPlugin adapts an external binary to plugin.Plugin.
type CommandPlugin struct {
	Name   string
	Binary string
	Args   []string
	// OutputFile is the tool's own output file, relative to the plugin
	// directory. It is what report-only runs reuse.
	OutputFile string
	Env        []string

	lookPath func(string) (string, error)
}

// RunPayload is the payload CommandPlugin stores in plugin.RawOutcome.
type RunPayload struct {
	Outcome
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	RawLog  string `json:"raw_log,omitempty"`
	Reused  bool   `json:"reused,omitempty"`
}

// Artifact is the normalized document PostProcess writes.
type Artifact struct {
	Plugin     string `json:"plugin"`
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	RawLog     string `json:"raw_log,omitempty"`
	Reused     bool   `json:"reused,omitempty"`
}

var _ plugin.Plugin = (*CommandPlugin)(nil)

// IsAvailable reports whether the binary resolves on PATH.
func (p *CommandPlugin) IsAvailable(context.Context) bool {
	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(p.Binary)
	return err == nil
}

// Run executes the binary with stdout captured in raw.log. In report-only
// mode the previous output file is reused and nothing is executed.
func (p *CommandPlugin) Run(ctx context.Context, req plugin.RunRequest) (plugin.RawOutcome, error) {
	cmd := p.command(req.Target, req.OutputDir)
	payload := RunPayload{Command: cmd.String(), Output: p.outputPath(req.OutputDir)}

	if req.Mode.ReportOnly {
		if payload.Output == "" {
			return plugin.RawOutcome{Detail: "report-only requires an output file"}, nil
		}
		if _, err := os.Stat(payload.Output); err != nil {
			return plugin.RawOutcome{Detail: fmt.Sprintf("no previous output: %v", err)}, nil
		}
		payload.Reused = true
		return plugin.RawOutcome{Succeeded: true, Payload: payload}, nil
	}

	if req.OutputDir != "" {
		payload.RawLog = filepath.Join(req.OutputDir, RawLogFile)
		f, err := os.Create(payload.RawLog)
		if err != nil {
			return plugin.RawOutcome{}, fmt.Errorf("create raw log: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
	}

	out, err := Run(ctx, cmd)
	payload.Outcome = out
	if err != nil {
		return plugin.RawOutcome{Payload: payload}, err
	}
	if out.ExitCode != 0 {
		detail := fmt.Sprintf("exit status %d", out.ExitCode)
		if out.Stderr != "" {
			detail += ": " + lastLine(out.Stderr)
		}
		return plugin.RawOutcome{Payload: payload, Detail: detail}, nil
	}
	return plugin.RawOutcome{Succeeded: true, Payload: payload}, nil
}

// PostProcess writes artifact.json describing the run and returns its path.
func (p *CommandPlugin) PostProcess(_ context.Context, raw plugin.RawOutcome, outputDir string) (string, error) {
	payload, ok := raw.Payload.(RunPayload)
	if !ok {
		return "", fmt.Errorf("unexpected payload type %T", raw.Payload)
	}
	if outputDir == "" {
		return "", errors.New("no output directory")
	}

	art := Artifact{
		Plugin:     p.Name,
		Command:    payload.Command,
		ExitCode:   payload.ExitCode,
		DurationMS: payload.Duration.Milliseconds(),
		Output:     payload.Output,
		RawLog:     payload.RawLog,
		Reused:     payload.Reused,
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	path := filepath.Join(outputDir, ArtifactFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// Preview returns the command line Run would execute.
func (p *CommandPlugin) Preview(target, outputDir string) string {
	return p.command(target, outputDir).String()
}

func (p *CommandPlugin) command(target, outputDir string) Command {
	r := strings.NewReplacer(
		PlaceholderTarget, target,
		PlaceholderOutputDir, outputDir,
		PlaceholderOutput, p.outputPath(outputDir),
	)
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = r.Replace(a)
	}
	return Command{Binary: p.Binary, Args: args, Dir: outputDir, Env: p.Env}
}

func (p *CommandPlugin) outputPath(outputDir string) string {
	if p.OutputFile == "" {
		return ""
	}
	if filepath.IsAbs(p.OutputFile) {
		return p.OutputFile
	}
	return filepath.Join(outputDir, p.OutputFile)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
