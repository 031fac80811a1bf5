// Package session ties one scan together: it selects plugins from a
// registry, resolves their schedule, runs it against a single target and
// hands the assembled summary back to the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/event"
	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/report"
	"github.com/vulntor/conductor/pkg/workspace"
)

// SummaryFile is the summary's file name under the reports directory.
const SummaryFile = "session.json"

// Session lifecycle events, published with a *Session payload.
const (
	EventStarted  = "session.started"
	EventFinished = "session.finished"
)

// Session is a single, single-use scan run.
type Session struct {
	ID string

	opts     Options
	schedule *engine.Schedule

	base    zerolog.Logger
	logger  zerolog.Logger
	bus     event.EventBus
	metrics *engine.Metrics
	ran     atomic.Bool
}

// Output is what Run hands back.
type Output struct {
	Results map[string]plugin.Result
	Summary *report.Summary
	// SummaryPath is empty on dry runs.
	SummaryPath string
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the base logger. Session and scheduler loggers derive
// from it with their own component field.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.base = l }
}

// WithEventBus publishes session and plugin state events on bus.
func WithEventBus(bus event.EventBus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithMetrics records plugin executions in m.
func WithMetrics(m *engine.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New validates opts, selects plugins from reg and resolves the schedule.
// Every failure matches plugin.ErrConfig and nothing has run yet.
func New(reg *plugin.Registry, opts Options, options ...Option) (*Session, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is nil", plugin.ErrConfig)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	selected, err := reg.Filter(opts.AllowActive, opts.Plugins)
	if err != nil {
		return nil, err
	}
	schedule, err := engine.NewSchedule(selected)
	if err != nil {
		return nil, err
	}
	unselected, err := timeoutTargets(reg, schedule, opts.Timeouts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		opts:     opts,
		schedule: schedule,
		base:     log.Logger,
	}
	for _, o := range options {
		o(s)
	}
	s.logger = s.component("session")
	if len(unselected) > 0 {
		s.logger.Warn().Strs("plugins", unselected).Msg("Timeout overrides name plugins outside this session")
	}

	s.logger.Debug().
		Strs("order", schedule.Names()).
		Int("registered", reg.Len()).
		Msg("Session planned")
	return s, nil
}

// timeoutTargets checks override names against the registry. Unregistered
// names fail with *plugin.UnknownPluginError; registered plugins that are not
// scheduled are returned so the caller can warn.
func timeoutTargets(reg *plugin.Registry, schedule *engine.Schedule, timeouts map[string]time.Duration) ([]string, error) {
	scheduled := make(map[string]bool, schedule.Len())
	for _, name := range schedule.Names() {
		scheduled[name] = true
	}

	var unknown, unselected []string
	for name := range timeouts {
		switch {
		case scheduled[name]:
		default:
			if _, ok := reg.Get(name); ok {
				unselected = append(unselected, name)
			} else {
				unknown = append(unknown, name)
			}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("timeout override: %w", &plugin.UnknownPluginError{Names: unknown})
	}
	sort.Strings(unselected)
	return unselected, nil
}

// Schedule returns the resolved execution order.
func (s *Session) Schedule() *engine.Schedule { return s.schedule }

// Options returns the effective options, defaults applied.
func (s *Session) Options() Options { return s.opts }

// Run executes the session once. Plugin failures are reported in the
// output, not as errors; Run fails only when the output directory cannot be
// prepared or locked, or the summary cannot be assembled or written.
//
// Dry runs touch nothing on disk.
func (s *Session) Run(ctx context.Context) (*Output, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, errors.New("session already ran")
	}

	root, release, err := s.prepare()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release output directory lock")
		}
	}()

	schedOpts := []engine.Option{
		engine.WithLogger(s.component("scheduler")),
		engine.WithMetrics(s.metrics),
	}
	if s.bus != nil {
		schedOpts = append(schedOpts, engine.WithEventBus(s.bus))
	}
	scheduler, err := engine.NewScheduler(s.opts.engineOptions(root), schedOpts...)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventStarted)
	started := time.Now()
	if err := scheduler.Run(ctx, s.schedule); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	finished := time.Now()

	results := scheduler.Store().Snapshot()
	summary, err := report.Assemble(report.Input{
		SessionID:   s.ID,
		Target:      s.opts.Target,
		StartedAt:   started,
		FinishedAt:  finished,
		Order:       s.schedule.Names(),
		Results:     results,
		CLI:         s.opts.cliContext(),
		Interrupted: ctx.Err() != nil,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{Results: results, Summary: summary}
	if !s.opts.DryRun {
		out.SummaryPath = workspace.ReportPath(root, SummaryFile)
		if err := summary.WriteFile(out.SummaryPath); err != nil {
			return nil, fmt.Errorf("write session summary: %w", err)
		}
	}

	s.logger.Info().
		Int("success", summary.Count(plugin.Success)).
		Int("fail", summary.Count(plugin.Fail)).
		Int("timed_out", summary.Count(plugin.TimedOut)).
		Int("skipped", summary.Count(plugin.Skipped)).
		Bool("interrupted", summary.Interrupted).
		Dur("elapsed", summary.Duration()).
		Msg("Session finished")
	s.publish(ctx, EventFinished)
	return out, nil
}

// prepare resolves the output root. Outside dry runs it creates the layout
// and takes the directory lock; release undoes the lock.
func (s *Session) prepare() (root string, release func() error, err error) {
	noop := func() error { return nil }
	if s.opts.DryRun {
		root, err = filepath.Abs(s.opts.OutputDir)
		if err != nil {
			return "", nil, fmt.Errorf("resolve output path: %w", err)
		}
		return root, noop, nil
	}

	root, err = workspace.Prepare(s.opts.OutputDir)
	if err != nil {
		return "", nil, err
	}
	release, err = workspace.Lock(root)
	if err != nil {
		if errors.Is(err, workspace.ErrLocked) {
			return "", nil, &lockedError{err: err}
		}
		return "", nil, err
	}
	return root, release, nil
}

func (s *Session) component(name string) zerolog.Logger {
	return s.base.With().Str("component", name).Str("session", s.ID).Logger()
}

func (s *Session) publish(ctx context.Context, name string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.WithoutCancel(ctx), name, s)
}
