// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package report assembles the read-only session summary handed to the
// external report builder once every plugin is terminal.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vulntor/conductor/pkg/plugin"
)

// ErrIncompleteSession is returned when results do not cover the requested
// plugins exactly once.
var ErrIncompleteSession = errors.New("incomplete session")

// CLIContext records how the session was started.
type CLIContext struct {
	Args              []string          `json:"args,omitempty" yaml:"args,omitempty"`
	RequestedPlugins  []string          `json:"requested_plugins,omitempty" yaml:"requested_plugins,omitempty"`
	AllowActive       bool              `json:"allow_active" yaml:"allow_active"`
	Parallel          bool              `json:"parallel" yaml:"parallel"`
	MaxWorkers        int               `json:"max_workers" yaml:"max_workers"`
	DryRun            bool              `json:"dry_run" yaml:"dry_run"`
	ReportOnly        bool              `json:"report_only" yaml:"report_only"`
	OutputDir         string            `json:"output_dir" yaml:"output_dir"`
	MissingDependency string            `json:"missing_dependency,omitempty" yaml:"missing_dependency,omitempty"`
	Timeouts          map[string]string `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
}

// Input is everything Assemble needs.
type Input struct {
	SessionID   string
	Target      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Order       []string
	Results     map[string]plugin.Result
	CLI         CLIContext
	Interrupted bool
}

// PluginRecord is one plugin's entry in the summary.
type PluginRecord struct {
	Name        string             `json:"name" yaml:"name"`
	Disposition plugin.Disposition `json:"disposition" yaml:"disposition"`
	StartedAt   *time.Time         `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	DurationMS  int64              `json:"duration_ms" yaml:"duration_ms"`
	Artifact    string             `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Preview     string             `json:"preview,omitempty" yaml:"preview,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

// Summary is the session-level record.
type Summary struct {
	SessionID   string                     `json:"session_id" yaml:"session_id"`
	Target      string                     `json:"target" yaml:"target"`
	StartedAt   time.Time                  `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at" yaml:"finished_at"`
	DurationMS  int64                      `json:"duration_ms" yaml:"duration_ms"`
	DryRun      bool                       `json:"dry_run" yaml:"dry_run"`
	Parallel    bool                       `json:"parallel" yaml:"parallel"`
	Interrupted bool                       `json:"interrupted" yaml:"interrupted"`
	Counts      map[plugin.Disposition]int `json:"counts" yaml:"counts"`
	Order       []string                   `json:"order" yaml:"order"`
	Plugins     []PluginRecord             `json:"plugins" yaml:"plugins"`
	CLI         CLIContext                 `json:"cli" yaml:"cli"`
}

// Assemble builds the summary. Plugins are listed in execution order. It
// fails with ErrIncompleteSession if a requested plugin has no result or a
// result belongs to no requested plugin.
func Assemble(in Input) (*Summary, error) {
	if err := checkCoverage(in.Order, in.Results); err != nil {
		return nil, err
	}

	s := &Summary{
		SessionID:   in.SessionID,
		Target:      in.Target,
		StartedAt:   in.StartedAt,
		FinishedAt:  in.FinishedAt,
		DryRun:      in.CLI.DryRun,
		Parallel:    in.CLI.Parallel,
		Interrupted: in.Interrupted,
		Counts:      make(map[plugin.Disposition]int, 4),
		Order:       append([]string(nil), in.Order...),
		Plugins:     make([]PluginRecord, 0, len(in.Order)),
		CLI:         copyCLI(in.CLI),
	}
	if in.FinishedAt.After(in.StartedAt) {
		s.DurationMS = in.FinishedAt.Sub(in.StartedAt).Milliseconds()
	}

	for _, d := range plugin.AllDispositions() {
		s.Counts[d] = 0
	}
	for _, name := range in.Order {
		r := in.Results[name]
		s.Counts[r.Disposition]++
		s.Plugins = append(s.Plugins, record(r))
	}
	return s, nil
}

func checkCoverage(order []string, results map[string]plugin.Result) error {
	requested := make(map[string]bool, len(order))
	var missing []string
	for _, name := range order {
		if requested[name] {
			return fmt.Errorf("%w: plugin '%s' listed twice", ErrIncompleteSession, name)
		}
		requested[name] = true
		if _, ok := results[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no result for %s", ErrIncompleteSession, strings.Join(missing, ", "))
	}

	var extra []string
	for name := range results {
		if !requested[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected result for %s", ErrIncompleteSession, strings.Join(extra, ", "))
	}
	return nil
}

func record(r plugin.Result) PluginRecord {
	rec := PluginRecord{
		Name:        r.Plugin,
		Disposition: r.Disposition,
		DurationMS:  r.Duration().Milliseconds(),
		Artifact:    r.Artifact,
		Preview:     r.Preview,
		Error:       r.Error,
		ErrorCode:   r.ErrorCode,
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		rec.StartedAt = &t
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		rec.FinishedAt = &t
	}
	return rec
}

func copyCLI(c CLIContext) CLIContext {
	c.Args = append([]string(nil), c.Args...)
	c.RequestedPlugins = append([]string(nil), c.RequestedPlugins...)
	if c.Timeouts != nil {
		t := make(map[string]string, len(c.Timeouts))
		for k, v := range c.Timeouts {
			t[k] = v
		}
		c.Timeouts = t
	}
	return c
}

// Duration returns the session's wall-clock duration.
func (s *Summary) Duration() time.Duration {
	return time.Duration(s.DurationMS) * time.Millisecond
}

// Count returns how many plugins ended with d.
func (s *Summary) Count(d plugin.Disposition) int {
	return s.Counts[d]
}

// Clean reports whether every plugin succeeded.
func (s *Summary) Clean() bool {
	return s.Count(plugin.Success) == len(s.Plugins)
}

// Plugin returns the record for name.
func (s *Summary) Plugin(name string) (PluginRecord, bool) {
	for _, p := range s.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginRecord{}, false
}

// Write encodes the summary as "json" or "yaml".
func (s *Summary) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported summary format: %s (use json or yaml)", format)
	}
}

// WriteFile writes the summary to path; the format follows the extension.
func (s *Summary) WriteFile(path string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "yaml" && ext != "yml" && ext != "json" {
		return fmt.Errorf("unsupported file format: .%s (use .json, .yaml, or .yml)", ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := s.Write(f, ext); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads a summary written by WriteFile.
func Load(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}

	var s Summary
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &s, nil
}
