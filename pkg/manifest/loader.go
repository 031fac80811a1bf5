// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vulntor/conductor/pkg/logging"
	"github.com/vulntor/conductor/pkg/plugin"
)

// Error reports a manifest that could not be loaded. It matches
// plugin.ErrConfig under errors.Is.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() []error { return []error{plugin.ErrConfig, e.Err} }

// IsManifest reports whether path has a manifest extension.
func IsManifest(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFile reads one manifest file and returns its descriptors.
func LoadFile(path string) ([]plugin.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, err := Parse(data, format)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	descs, err := f.Descriptors()
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	logger := logging.Component("manifest")
	logger.Debug().Str("path", path).Int("plugins", len(descs)).Msg("Loaded manifest")
	return descs, nil
}

// Load reads each path in order. A directory contributes its manifest files
// (non-recursive, sorted by name).
func Load(paths ...string) ([]plugin.Descriptor, error) {
	var out []plugin.Descriptor
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &Error{Path: p, Err: err}
		}

		files := []string{p}
		if info.IsDir() {
			if files, err = manifestFiles(p); err != nil {
				return nil, &Error{Path: p, Err: err}
			}
		}

		for _, file := range files {
			descs, err := LoadFile(file)
			if err != nil {
				return nil, err
			}
			out = append(out, descs...)
		}
	}
	return out, nil
}

func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsManifest(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// Register loads paths and registers every descriptor in reg. It stops at
// the first failure; the returned count is what was registered before it.
func Register(reg *plugin.Registry, paths ...string) (int, error) {
	descs, err := Load(paths...)
	if err != nil {
		return 0, err
	}
	for i, d := range descs {
		if err := reg.Register(d); err != nil {
			return i, err
		}
	}
	return len(descs), nil
}
