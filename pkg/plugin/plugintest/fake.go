// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package plugintest provides a configurable fake plugin for engine tests.
package plugintest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vulntor/conductor/pkg/plugin"
)

// CallLog records lifecycle calls across several fakes, in call order.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.calls = append(l.calls, entry)
	l.mu.Unlock()
}

// Calls returns a copy of the recorded entries ("name:stage").
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Runs returns the plugin names in the order their Run started.
func (l *CallLog) Runs() []string {
	return l.stage("run")
}

// Previews returns the plugin names in the order Preview was called.
func (l *CallLog) Previews() []string {
	return l.stage("preview")
}

func (l *CallLog) stage(stage string) []string {
	var out []string
	for _, c := range l.Calls() {
		var name, st string
		for i := len(c) - 1; i >= 0; i-- {
			if c[i] == ':' {
				name, st = c[:i], c[i+1:]
				break
			}
		}
		if st == stage {
			out = append(out, name)
		}
	}
	return out
}

// Fake is a plugin whose behaviour is set per test.
type Fake struct {
	Name      string
	Log       *CallLog
	Available bool

	// RunFunc replaces the default Run, which succeeds immediately.
	RunFunc func(ctx context.Context, req plugin.RunRequest) (plugin.RawOutcome, error)
	// PostFunc replaces the default PostProcess.
	PostFunc func(ctx context.Context, raw plugin.RawOutcome, outputDir string) (string, error)
	// PreviewFunc replaces the default Preview.
	PreviewFunc func(target, outputDir string) string

	availableCalls atomic.Int32
	runCalls       atomic.Int32
	postCalls      atomic.Int32
	previewCalls   atomic.Int32
	terminated     atomic.Bool

	mu      sync.Mutex
	lastReq plugin.RunRequest
}

// New returns an available fake that succeeds.
func New(name string, log *CallLog) *Fake {
	return &Fake{Name: name, Log: log, Available: true}
}

// IsAvailable implements plugin.Plugin.
func (f *Fake) IsAvailable(context.Context) bool {
	f.availableCalls.Add(1)
	f.Log.add(f.Name + ":available")
	return f.Available
}

// Run implements plugin.Plugin.
func (f *Fake) Run(ctx context.Context, req plugin.RunRequest) (plugin.RawOutcome, error) {
	f.runCalls.Add(1)
	f.Log.add(f.Name + ":run")
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()

	if f.RunFunc != nil {
		return f.RunFunc(ctx, req)
	}
	return plugin.RawOutcome{Succeeded: true, Payload: f.Name + "-payload"}, nil
}

// PostProcess implements plugin.Plugin.
func (f *Fake) PostProcess(ctx context.Context, raw plugin.RawOutcome, outputDir string) (string, error) {
	f.postCalls.Add(1)
	f.Log.add(f.Name + ":post")
	if f.PostFunc != nil {
		return f.PostFunc(ctx, raw, outputDir)
	}
	return filepath.Join(outputDir, f.Name+".json"), nil
}

// Preview implements plugin.Plugin.
func (f *Fake) Preview(target, outputDir string) string {
	f.previewCalls.Add(1)
	f.Log.add(f.Name + ":preview")
	if f.PreviewFunc != nil {
		return f.PreviewFunc(target, outputDir)
	}
	return fmt.Sprintf("would run %s against %s", f.Name, target)
}

func (f *Fake) AvailableCalls() int { return int(f.availableCalls.Load()) }
func (f *Fake) RunCalls() int       { return int(f.runCalls.Load()) }
func (f *Fake) PostCalls() int      { return int(f.postCalls.Load()) }
func (f *Fake) PreviewCalls() int   { return int(f.previewCalls.Load()) }

// Terminated reports whether a blocking Run observed its context ending.
func (f *Fake) Terminated() bool { return f.terminated.Load() }

// LastRequest returns the request passed to the most recent Run.
func (f *Fake) LastRequest() plugin.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// Block makes Run wait for d or for its context, whichever ends first.
// When the context ends first the fake marks itself terminated, standing in
// for a killed tool process.
func (f *Fake) Block(d time.Duration) *Fake {
	f.RunFunc = func(ctx context.Context, _ plugin.RunRequest) (plugin.RawOutcome, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return plugin.RawOutcome{Succeeded: true}, nil
		case <-ctx.Done():
			f.terminated.Store(true)
			return plugin.RawOutcome{}, ctx.Err()
		}
	}
	return f
}

// Failing makes Run report a failed outcome.
func (f *Fake) Failing(detail string) *Fake {
	f.RunFunc = func(context.Context, plugin.RunRequest) (plugin.RawOutcome, error) {
		return plugin.RawOutcome{Succeeded: false, Detail: detail}, nil
	}
	return f
}

// Descriptor wraps the fake in a passive descriptor with the given priority.
func (f *Fake) Descriptor(priority int, deps ...plugin.Dependency) plugin.Descriptor {
	return plugin.Descriptor{
		Name:         f.Name,
		Category:     plugin.Passive,
		Priority:     priority,
		Dependencies: deps,
		Plugin:       f,
	}
}

// On builds a required dependency on name with condition c (nil = success).
func On(name string, c plugin.Condition) plugin.Dependency {
	return plugin.Dependency{Plugin: name, Condition: c}
}
