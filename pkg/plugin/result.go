// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package plugin

import "time"

// Disposition is the categorical outcome of one plugin execution.
type Disposition string

const (
	Success  Disposition = "success"
	Fail     Disposition = "fail"
	Skipped  Disposition = "skipped"
	TimedOut Disposition = "timed_out"
)

// AllDispositions lists dispositions in display order.
func AllDispositions() []Disposition {
	return []Disposition{Success, Fail, TimedOut, Skipped}
}

// IsValid reports whether d is a known disposition.
func (d Disposition) IsValid() bool {
	switch d {
	case Success, Fail, Skipped, TimedOut:
		return true
	}
	return false
}

// Ran reports whether the plugin was actually invoked.
func (d Disposition) Ran() bool {
	return d == Success || d == Fail || d == TimedOut
}

// Result is the terminal outcome of running one plugin in a session.
// It is written once to the result store and never mutated afterwards.
type Result struct {
	Plugin      string      `json:"plugin" yaml:"plugin"`
	Disposition Disposition `json:"disposition" yaml:"disposition"`

	// Payload is the plugin's raw output, owned by that plugin.
	Payload any `json:"-" yaml:"-"`
	// Artifact is the path returned by PostProcess.
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	// Preview is set on dry runs.
	Preview string `json:"preview,omitempty" yaml:"preview,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Error and ErrorCode are empty when Disposition is Success.
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Err       error  `json:"-" yaml:"-"`
}

// Duration is the wall time between start and finish.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded is shorthand for Disposition == Success.
func (r Result) Succeeded() bool {
	return r.Disposition == Success
}
