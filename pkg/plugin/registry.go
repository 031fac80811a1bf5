// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package plugin

import (
	"slices"
	"sort"
	"sync"
)

// Registry holds the descriptors selectable in a session, in registration order.
//
// Descriptors are copied on the way in and out, so a registered descriptor
// cannot be changed by its caller afterwards.
type Registry struct {
	mu sync.RWMutex

	// plugin name -> index into order
	byName map[string]int
	order  []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]int),
	}
}

// Register adds a descriptor.
// Returns *DuplicateNameError if the name is taken and *InvalidDescriptorError
// if the descriptor does not validate.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return &DuplicateNameError{Name: d.Name}
	}

	r.byName[d.Name] = len(r.order)
	r.order = append(r.order, d.clone())
	return nil
}

// MustRegister is Register for static registration tables; it panics on error.
func (r *Registry) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.order[idx].clone(), true
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, d.clone())
	}
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Filter returns the descriptors selected for a session, in registration order.
//
// Active plugins are dropped unless allowActive is set. A non-empty allowList
// further restricts the set to the named plugins; naming an unregistered
// plugin fails with *UnknownPluginError, and naming an active plugin without
// allowActive fails with *ExcludedPluginError.
func (r *Registry) Filter(allowActive bool, allowList []string) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allowed map[string]bool
	if len(allowList) > 0 {
		allowed = make(map[string]bool, len(allowList))
		var unknown, excluded []string
		for _, name := range allowList {
			idx, ok := r.byName[name]
			if !ok {
				if !slices.Contains(unknown, name) {
					unknown = append(unknown, name)
				}
				continue
			}
			if r.order[idx].Category == Active && !allowActive && !slices.Contains(excluded, name) {
				excluded = append(excluded, name)
			}
			allowed[name] = true
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &UnknownPluginError{Names: unknown}
		}
		if len(excluded) > 0 {
			sort.Strings(excluded)
			return nil, &ExcludedPluginError{Names: excluded}
		}
	}

	selected := make([]Descriptor, 0, len(r.order))
	for _, d := range r.order {
		if d.Category == Active && !allowActive {
			continue
		}
		if allowed != nil && !allowed[d.Name] {
			continue
		}
		selected = append(selected, d.clone())
	}
	return selected, nil
}
