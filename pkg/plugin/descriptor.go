// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package plugin

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"
)

// namePattern matches valid plugin names:
// - Lowercase alphanumeric, hyphens, underscores, dots
// - Must start with letter
// - Length: 1-63 characters
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,62}$`)

// Condition is a pure predicate over a dependency's terminal result.
type Condition func(Result) bool

// Dependency gates a plugin on another plugin's outcome.
type Dependency struct {
	// Plugin is the name of the plugin depended upon.
	Plugin string
	// Condition must hold for the dependent to run. Nil means Succeeded().
	Condition Condition
	// Optional dependencies only constrain ordering; a false condition does
	// not skip the dependent.
	Optional bool
	// ConditionName is informational, used for display and export.
	ConditionName string
}

// Holds evaluates the dependency condition against r.
func (d Dependency) Holds(r Result) bool {
	if d.Condition == nil {
		return r.Succeeded()
	}
	return d.Condition(r)
}

// Describe returns the condition name for display.
func (d Dependency) Describe() string {
	if d.ConditionName != "" {
		return d.ConditionName
	}
	if d.Condition == nil {
		return ConditionSuccess
	}
	return "custom"
}

// Descriptor is the static scheduling metadata of one plugin.
type Descriptor struct {
	Name        string
	Version     string
	Description string
	Category    Category
	// Priority orders otherwise unconstrained plugins; lower runs earlier.
	Priority int
	// Timeout bounds Run. Zero falls back to the session default.
	Timeout      time.Duration
	Dependencies []Dependency
	Plugin       Plugin
}

// DependsOn returns the names of all dependencies in declaration order.
func (d Descriptor) DependsOn() []string {
	names := make([]string, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		names = append(names, dep.Plugin)
	}
	return names
}

// Validate checks the descriptor's static fields.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return &InvalidDescriptorError{Reason: "name is required"}
	}
	if !namePattern.MatchString(d.Name) {
		return &InvalidDescriptorError{Name: d.Name, Reason: "name must be lowercase alphanumeric with '-', '_' or '.', starting with a letter"}
	}
	if !d.Category.IsValid() {
		return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf("invalid category %q (valid: %v)", d.Category, AllCategories())}
	}
	if d.Version != "" {
		if _, err := semver.NewVersion(d.Version); err != nil {
			return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf("invalid version %q: %v", d.Version, err)}
		}
	}
	if d.Timeout < 0 {
		return &InvalidDescriptorError{Name: d.Name, Reason: "timeout cannot be negative"}
	}
	if d.Plugin == nil {
		return &InvalidDescriptorError{Name: d.Name, Reason: "plugin implementation is nil"}
	}

	seen := make(map[string]bool, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep.Plugin == "" {
			return &InvalidDescriptorError{Name: d.Name, Reason: "dependency with empty plugin name"}
		}
		if seen[dep.Plugin] {
			return &InvalidDescriptorError{Name: d.Name, Reason: fmt.Sprintf("dependency %q declared twice", dep.Plugin)}
		}
		seen[dep.Plugin] = true
	}
	return nil
}

// clone returns a copy that shares no slices with d.
func (d Descriptor) clone() Descriptor {
	d.Dependencies = slices.Clone(d.Dependencies)
	return d
}
