// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig marks configuration faults. They abort a session before any
// plugin executes. Every registry error unwraps to it.
var ErrConfig = errors.New("configuration error")

// Error codes for registry failures.
const (
	ErrorCodeDuplicatePlugin   = "DUPLICATE_PLUGIN"
	ErrorCodeUnknownPlugin     = "UNKNOWN_PLUGIN"
	ErrorCodeInvalidDescriptor = "INVALID_DESCRIPTOR"
	ErrorCodeExcludedPlugin    = "PLUGIN_EXCLUDED"
)

// DuplicateNameError is returned when a name is registered twice.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("plugin '%s' already registered", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrConfig }

func (e *DuplicateNameError) Code() string { return ErrorCodeDuplicatePlugin }

// UnknownPluginError is returned when an allow-list names unregistered plugins.
type UnknownPluginError struct {
	Names []string
}

func (e *UnknownPluginError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("unknown plugin '%s'", e.Names[0])
	}
	return fmt.Sprintf("unknown plugins: %s", strings.Join(e.Names, ", "))
}

func (e *UnknownPluginError) Unwrap() error { return ErrConfig }

func (e *UnknownPluginError) Code() string { return ErrorCodeUnknownPlugin }

// ExcludedPluginError is returned when an allow-list names active plugins
// while active plugins are not allowed.
type ExcludedPluginError struct {
	Names []string
}

func (e *ExcludedPluginError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("plugin '%s' is active and active plugins are not allowed", e.Names[0])
	}
	return fmt.Sprintf("plugins %s are active and active plugins are not allowed", strings.Join(e.Names, ", "))
}

func (e *ExcludedPluginError) Unwrap() error { return ErrConfig }

func (e *ExcludedPluginError) Code() string { return ErrorCodeExcludedPlugin }

// InvalidDescriptorError is returned when a descriptor fails validation.
type InvalidDescriptorError struct {
	Name   string
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	if e.Name == "" {
		return "invalid plugin descriptor: " + e.Reason
	}
	return fmt.Sprintf("invalid plugin descriptor '%s': %s", e.Name, e.Reason)
}

func (e *InvalidDescriptorError) Unwrap() error { return ErrConfig }

func (e *InvalidDescriptorError) Code() string { return ErrorCodeInvalidDescriptor }
