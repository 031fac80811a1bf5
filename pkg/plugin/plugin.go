// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package plugin defines the contract every scan plugin satisfies, the static
// descriptor the engine schedules, and the registry that holds descriptors for
// one session.
package plugin

import (
	"context"
	"time"
)

// Category decides whether a plugin is selected by default.
type Category string

const (
	// Active plugins send traffic that may be intrusive (port scans, fuzzers).
	// They only run when the session opts into active scanning.
	Active Category = "active"

	// Passive plugins observe without probing (DNS lookups, header checks).
	Passive Category = "passive"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	return c == Active || c == Passive
}

// AllCategories returns every known category.
func AllCategories() []Category {
	return []Category{Active, Passive}
}

// ModeFlags carries session-wide switches handed to Run.
type ModeFlags struct {
	// ReportOnly asks the plugin to rebuild its output from a previous run
	// instead of invoking the tool again.
	ReportOnly bool `json:"report_only" yaml:"report_only"`
}

// RawOutcome is what a plugin's Run reports back before post-processing.
type RawOutcome struct {
	// Succeeded is false when the tool ran but reported failure
	// (non-zero exit, malformed output).
	Succeeded bool
	// Payload is opaque tool output. The engine stores it but never looks inside.
	Payload any
	// Detail explains a failed outcome.
	Detail string
}

// RunRequest bundles the inputs of a single Run call.
type RunRequest struct {
	Target    string
	OutputDir string
	Mode      ModeFlags
	// Upstream gives read access to results of plugins that already finished,
	// typically the plugin's own dependencies.
	Upstream ResultReader
}

// ResultReader is the read side of the session result store.
type ResultReader interface {
	Get(name string) (Result, bool)
	Await(ctx context.Context, name string, timeout time.Duration) (Result, error)
}

// Plugin is one integration wrapping an external scanning tool.
//
// Implementations must honour ctx cancellation in Run: when ctx is done the
// underlying tool process has to be terminated.
type Plugin interface {
	// IsAvailable reports whether the tool can run on this host.
	IsAvailable(ctx context.Context) bool

	// Run executes the tool against req.Target, writing files under req.OutputDir.
	Run(ctx context.Context, req RunRequest) (RawOutcome, error)

	// PostProcess turns raw output into a normalized artifact and returns its path.
	PostProcess(ctx context.Context, raw RawOutcome, outputDir string) (string, error)

	// Preview describes what Run would do. Used by dry runs only.
	Preview(target, outputDir string) string
}
