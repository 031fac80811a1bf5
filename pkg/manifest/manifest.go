// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package manifest loads plugin manifests: YAML or JSON files that declare
// command-backed plugins and their dependencies.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/stringutil"
	"github.com/vulntor/conductor/pkg/toolexec"
	"github.com/vulntor/conductor/pkg/version"
)

// File is the top-level manifest document.
type File struct {
	// Requires is an optional conductor version constraint, e.g. ">= 0.3".
	Requires string  `json:"requires,omitempty" yaml:"requires,omitempty"`
	Plugins  []Entry `json:"plugins" yaml:"plugins" validate:"min=1,dive"`
}

// Entry declares one command-backed plugin.
type Entry struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty" validate:"omitempty,semver"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category" yaml:"category" validate:"required,oneof=active passive"`
	// Priority and Timeout accept numbers or strings ("10", "15m", 90).
	// A bare number of seconds is accepted for Timeout.
	Priority   any               `json:"priority,omitempty" yaml:"priority,omitempty"`
	Timeout    any               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Binary     string            `json:"binary" yaml:"binary" validate:"required"`
	Args       []string          `json:"args,omitempty" yaml:"args,omitempty"`
	OutputFile string            `json:"output_file,omitempty" yaml:"output_file,omitempty"`
	Env        []string          `json:"env,omitempty" yaml:"env,omitempty"`
	DependsOn  []DependencyEntry `json:"depends_on,omitempty" yaml:"depends_on,omitempty" validate:"dive"`
}

// DependencyEntry is one depends_on item. The short form is a bare plugin name.
type DependencyEntry struct {
	Plugin    string `json:"plugin" yaml:"plugin" validate:"required"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" validate:"omitempty,oneof=success completed failed not_skipped"`
	Optional  bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

type dependencyFields DependencyEntry

// UnmarshalYAML accepts either a mapping or a plain plugin name.
func (d *DependencyEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*d = DependencyEntry{Plugin: node.Value}
		return nil
	}
	var f dependencyFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*d = DependencyEntry(f)
	return nil
}

// UnmarshalJSON accepts either an object or a plain plugin name.
func (d *DependencyEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*d = DependencyEntry{Plugin: name}
		return nil
	}
	var f dependencyFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*d = DependencyEntry(f)
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report manifest keys, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		_, err := semver.NewVersion(fl.Field().String())
		return err == nil
	})
	return v
}

// Parse decodes and validates a manifest. format is "yaml", "yml" or "json".
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse YAML manifest: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse JSON manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s (must be yaml, yml or json)", format)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Requires != "" {
		ok, err := version.Satisfies(f.Requires)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("manifest requires conductor %s, running %s", f.Requires, version.Version)
		}
	}
	return &f, nil
}

// Validate checks the document against the manifest schema.
func (f *File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "File.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must not be empty"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "semver":
		return fmt.Sprintf("%s %q is not a semantic version", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Descriptors converts every entry, in document order.
func (f *File) Descriptors() ([]plugin.Descriptor, error) {
	out := make([]plugin.Descriptor, 0, len(f.Plugins))
	for _, e := range f.Plugins {
		d, err := e.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Descriptor builds the scheduling descriptor for this entry.
func (e Entry) Descriptor() (plugin.Descriptor, error) {
	priority, err := e.priority()
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("plugin %s: %w", e.Name, err)
	}
	timeout, err := e.timeout()
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("plugin %s: %w", e.Name, err)
	}

	deps := make([]plugin.Dependency, 0, len(e.DependsOn))
	for _, dep := range e.DependsOn {
		cond, err := plugin.ConditionByName(dep.Condition)
		if err != nil {
			return plugin.Descriptor{}, fmt.Errorf("plugin %s: %w", e.Name, err)
		}
		name := dep.Condition
		if name == "" {
			name = plugin.ConditionSuccess
		}
		deps = append(deps, plugin.Dependency{
			Plugin:        dep.Plugin,
			Condition:     cond,
			Optional:      dep.Optional,
			ConditionName: name,
		})
	}

	return plugin.Descriptor{
		Name:         e.Name,
		Version:      e.Version,
		Description:  e.Description,
		Category:     plugin.Category(e.Category),
		Priority:     priority,
		Timeout:      timeout,
		Dependencies: deps,
		Plugin: &toolexec.CommandPlugin{
			Name:       e.Name,
			Binary:     e.Binary,
			Args:       append([]string(nil), e.Args...),
			OutputFile: e.OutputFile,
			Env:        append([]string(nil), e.Env...),
		},
	}, nil
}

func (e Entry) priority() (int, error) {
	if e.Priority == nil {
		return 0, nil
	}
	p, err := cast.ToIntE(e.Priority)
	if err != nil {
		return 0, fmt.Errorf("invalid priority %v: %w", e.Priority, err)
	}
	return p, nil
}

func (e Entry) timeout() (time.Duration, error) {
	var d time.Duration
	switch v := e.Timeout.(type) {
	case nil:
		return 0, nil
	case string:
		parsed, err := stringutil.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %v: %w", e.Timeout, err)
		}
		d = parsed
	case float32, float64:
		// JSON numbers decode as floats; only whole seconds are accepted.
		f := cast.ToFloat64(v)
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("invalid timeout %v: fractional seconds need a unit (e.g. 1.5m)", e.Timeout)
		}
		d = time.Duration(f) * time.Second
	default:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %v: %w", e.Timeout, err)
		}
		d = time.Duration(n) * time.Second
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %v: must not be negative", e.Timeout)
	}
	return d, nil
}
