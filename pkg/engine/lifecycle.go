package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/workspace"
)

// PanicError is the error recorded when a plugin panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type runStatus int

const (
	runReturned runStatus = iota
	runTimedOut
	runCancelled
)

type runOutcome struct {
	raw plugin.RawOutcome
	err error
}

// execute drives d through availability, run and post-processing, or
// through Preview in dry-run mode. It always returns a terminal result.
func (s *Scheduler) execute(ctx context.Context, d plugin.Descriptor) plugin.Result {
	res := plugin.Result{Plugin: d.Name, StartedAt: s.now()}
	logger := s.logger.With().Str("plugin", d.Name).Logger()
	s.publish(ctx, d.Name, StateRunning)

	done := func(disp plugin.Disposition, err error) plugin.Result {
		res.FinishedAt = s.now()
		conclude(&res, disp, err)
		return res
	}

	if s.opts.DryRun {
		preview, err := s.preview(d)
		if err != nil {
			return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "preview", Err: err})
		}
		res.Preview = preview
		logger.Debug().Str("preview", preview).Msg("Dry run")
		return done(plugin.Success, nil)
	}

	dir := ""
	if s.opts.OutputDir != "" {
		var err error
		dir, err = workspace.EnsurePluginDir(s.opts.OutputDir, d.Name)
		if err != nil {
			return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "prepare", Err: err})
		}
	}

	available, err := s.available(ctx, d)
	if err != nil {
		return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "availability", Err: err})
	}
	if !available {
		return done(plugin.Fail, fmt.Errorf("%w: %s", ErrUnavailableTool, d.Name))
	}

	timeout := s.opts.TimeoutFor(d)
	req := plugin.RunRequest{
		Target:    s.opts.Target,
		OutputDir: dir,
		Mode:      s.opts.Mode,
		Upstream:  s.store,
	}
	logger.Debug().Dur("timeout", timeout).Str("output_dir", dir).Msg("Running plugin")

	out, status := s.run(ctx, d, req, timeout)
	switch status {
	case runTimedOut:
		return done(plugin.TimedOut, &ExecutionTimeoutError{Plugin: d.Name, Timeout: timeout})
	case runCancelled:
		return done(plugin.Fail, ErrCancelled)
	}

	if out.err != nil {
		return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "run", Err: out.err})
	}
	res.Payload = out.raw.Payload
	if !out.raw.Succeeded {
		detail := out.raw.Detail
		if detail == "" {
			detail = "tool reported failure"
		}
		return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "run", Err: errors.New(detail)})
	}

	artifact, err := s.postProcess(ctx, d, out.raw, dir)
	if err != nil {
		return done(plugin.Fail, &ExecutionFailure{Plugin: d.Name, Stage: "post_process", Err: err})
	}
	res.Artifact = artifact
	return done(plugin.Success, nil)
}

// run calls Run under timeout on its own goroutine. When the run context
// ends first the plugin gets KillGrace to return before it is abandoned.
func (s *Scheduler) run(ctx context.Context, d plugin.Descriptor, req plugin.RunRequest, timeout time.Duration) (runOutcome, runStatus) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- runOutcome{err: &PanicError{Value: v, Stack: debug.Stack()}}
			}
		}()
		raw, err := d.Plugin.Run(runCtx, req)
		ch <- runOutcome{raw: raw, err: err}
	}()

	select {
	case out := <-ch:
		if out.err == nil || runCtx.Err() == nil {
			return out, runReturned
		}
	case <-runCtx.Done():
		cancel()
		grace := time.NewTimer(s.opts.KillGrace)
		defer grace.Stop()
		select {
		case <-ch:
		case <-grace.C:
			s.logger.Warn().
				Str("plugin", d.Name).
				Dur("grace", s.opts.KillGrace).
				Msg("Plugin did not stop after cancellation, abandoning it")
		}
	}

	if ctx.Err() != nil {
		return runOutcome{}, runCancelled
	}
	return runOutcome{}, runTimedOut
}

func (s *Scheduler) available(ctx context.Context, d plugin.Descriptor) (ok bool, err error) {
	defer recoverInto(&err)
	return d.Plugin.IsAvailable(ctx), nil
}

func (s *Scheduler) postProcess(ctx context.Context, d plugin.Descriptor, raw plugin.RawOutcome, dir string) (path string, err error) {
	defer recoverInto(&err)
	return d.Plugin.PostProcess(ctx, raw, dir)
}

func (s *Scheduler) preview(d plugin.Descriptor) (text string, err error) {
	defer recoverInto(&err)
	dir := ""
	if s.opts.OutputDir != "" {
		dir = workspace.PluginDir(s.opts.OutputDir, d.Name)
	}
	return d.Plugin.Preview(s.opts.Target, dir), nil
}

func recoverInto(err *error) {
	if v := recover(); v != nil {
		*err = &PanicError{Value: v, Stack: debug.Stack()}
	}
}
