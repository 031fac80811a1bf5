package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/conductor/pkg/event"
	"github.com/vulntor/conductor/pkg/logging"
	"github.com/vulntor/conductor/pkg/plugin"
)

const (
	// DefaultTimeout applies to plugins without a descriptor or override timeout.
	DefaultTimeout = 30 * time.Minute
	// DefaultKillGrace bounds how long a timed-out plugin may take to return.
	DefaultKillGrace = 5 * time.Second
	// DefaultMaxWorkers is the worker pool size when none is configured.
	DefaultMaxWorkers = 4
)

// MissingPolicy decides how a dependency on a plugin outside the session is treated.
type MissingPolicy string

const (
	// MissingSkip treats the absent dependency's condition as false.
	MissingSkip MissingPolicy = "skip"
	// MissingRun ignores the absent dependency.
	MissingRun MissingPolicy = "run"
)

// IsValid reports whether p is a known policy.
func (p MissingPolicy) IsValid() bool {
	return p == MissingSkip || p == MissingRun
}

// Options configures one scheduler run.
type Options struct {
	Target    string
	OutputDir string
	Mode      plugin.ModeFlags

	Parallel   bool
	MaxWorkers int
	DryRun     bool

	// DefaultTimeout applies when neither Timeouts nor the descriptor set one.
	DefaultTimeout time.Duration
	// Timeouts overrides per-plugin timeouts by name.
	Timeouts map[string]time.Duration
	// DependencyWait bounds how long a plugin may wait on its dependencies
	// in parallel mode, measured from the session start. Zero waits forever.
	DependencyWait time.Duration

	MissingDependency MissingPolicy
	// KillGrace is how long a plugin gets to return after its context ends.
	KillGrace time.Duration
}

// TimeoutFor resolves the run timeout of d: override, then descriptor, then default.
func (o Options) TimeoutFor(d plugin.Descriptor) time.Duration {
	if t, ok := o.Timeouts[d.Name]; ok && t > 0 {
		return t
	}
	if d.Timeout > 0 {
		return d.Timeout
	}
	if o.DefaultTimeout > 0 {
		return o.DefaultTimeout
	}
	return DefaultTimeout
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.KillGrace <= 0 {
		o.KillGrace = DefaultKillGrace
	}
	if o.MaxWorkers == 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.MissingDependency == "" {
		o.MissingDependency = MissingSkip
	}
	return o
}

// Validate checks option values. Failures wrap ErrConfig.
func (o Options) Validate() error {
	if o.MaxWorkers < 0 {
		return fmt.Errorf("%w: max workers must be positive, got %d", ErrConfig, o.MaxWorkers)
	}
	if o.DependencyWait < 0 {
		return fmt.Errorf("%w: dependency wait cannot be negative", ErrConfig)
	}
	if o.MissingDependency != "" && !o.MissingDependency.IsValid() {
		return fmt.Errorf("%w: unknown missing dependency policy %q (use skip or run)", ErrConfig, o.MissingDependency)
	}
	for name, t := range o.Timeouts {
		if t < 0 {
			return fmt.Errorf("%w: timeout for '%s' cannot be negative", ErrConfig, name)
		}
	}
	return nil
}

// State is a plugin's position in the scheduling state machine. Terminal
// states are reported with the disposition's name.
type State string

const (
	StateWaiting State = "waiting"
	StateReady   State = "ready"
	StateRunning State = "running"
)

// EventPluginState is published on every plugin state change.
const EventPluginState = "plugin.state"

// StateChange is the payload of EventPluginState.
type StateChange struct {
	Plugin string
	State  State
	// Result is set once the plugin is terminal.
	Result *plugin.Result
	At     time.Time
}

// Terminal reports whether the change carries a final result.
func (c StateChange) Terminal() bool { return c.Result != nil }

// Scheduler drives every plugin of a Schedule through its lifecycle and
// records exactly one result per plugin in its ResultStore.
type Scheduler struct {
	opts    Options
	store   *ResultStore
	logger  zerolog.Logger
	bus     event.EventBus
	metrics *Metrics
	now     func() time.Time
	started atomic.Bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithEventBus publishes state changes on bus.
func WithEventBus(bus event.EventBus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithMetrics records executions in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithStore writes results to store instead of a fresh one.
func WithStore(store *ResultStore) Option {
	return func(s *Scheduler) { s.store = store }
}

// NewScheduler validates opts and returns a single-use scheduler.
func NewScheduler(opts Options, options ...Option) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		opts:   opts.withDefaults(),
		logger: logging.Component("scheduler"),
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if s.store == nil {
		s.store = NewResultStore()
	}
	return s, nil
}

// Store returns the result store the scheduler writes to.
func (s *Scheduler) Store() *ResultStore { return s.store }

// Options returns the effective options, defaults applied.
func (s *Scheduler) Options() Options { return s.opts }

// Run executes sched and returns once every plugin has a terminal result.
//
// Plugin failures never surface here; they are recorded as results. Run
// only fails when called twice or when the store rejects a write.
func (s *Scheduler) Run(ctx context.Context, sched *Schedule) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already ran")
	}
	if sched == nil {
		return fmt.Errorf("%w: schedule is nil", ErrConfig)
	}

	mode := "sequential"
	if s.opts.Parallel {
		mode = "parallel"
	}
	s.logger.Info().
		Str("target", s.opts.Target).
		Str("mode", mode).
		Int("plugins", sched.Len()).
		Bool("dry_run", s.opts.DryRun).
		Msg("Starting plugin execution")

	var err error
	if s.opts.Parallel {
		err = s.runParallel(ctx, sched)
	} else {
		err = s.runSequential(ctx, sched)
	}

	s.logger.Info().
		Int("results", s.store.Len()).
		Msg("Plugin execution complete")
	return err
}

func (s *Scheduler) runSequential(ctx context.Context, sched *Schedule) error {
	for _, d := range sched.Ordered {
		if ctx.Err() != nil {
			if err := s.record(ctx, s.skipped(d.Name, ErrCancelled)); err != nil {
				return err
			}
			continue
		}

		s.publish(ctx, d.Name, StateWaiting)
		if err := s.evaluate(d, sched.Graph); err != nil {
			if err := s.record(ctx, s.skipped(d.Name, err)); err != nil {
				return err
			}
			continue
		}

		s.publish(ctx, d.Name, StateReady)
		if err := s.record(ctx, s.execute(ctx, d)); err != nil {
			return err
		}
	}
	return nil
}

// evaluate checks d's dependency conditions against the store. A non-nil
// error means d must be skipped and explains why.
func (s *Scheduler) evaluate(d plugin.Descriptor, g *Graph) error {
	for _, dep := range d.Dependencies {
		if !g.Has(dep.Plugin) {
			if dep.Optional || s.opts.MissingDependency == MissingRun {
				continue
			}
			return &MissingDependencyError{Plugin: dep.Plugin}
		}

		r, ok := s.store.Get(dep.Plugin)
		if !ok {
			return &DependencyTimeoutError{Plugin: dep.Plugin, Wait: s.opts.DependencyWait}
		}
		if dep.Optional {
			continue
		}
		if !dep.Holds(r) {
			return &UnmetDependencyError{
				Plugin:      dep.Plugin,
				Condition:   dep.Describe(),
				Disposition: r.Disposition,
			}
		}
	}
	return nil
}

func (s *Scheduler) skipped(name string, reason error) plugin.Result {
	r := plugin.Result{Plugin: name, FinishedAt: s.now()}
	conclude(&r, plugin.Skipped, reason)
	return r
}

// record writes r to the store and reports it.
func (s *Scheduler) record(ctx context.Context, r plugin.Result) error {
	if err := s.store.Put(r); err != nil {
		s.logger.Error().Err(err).Str("plugin", r.Plugin).Msg("Result rejected")
		return err
	}
	s.metrics.observe(r)

	evt := s.logger.Info()
	if r.Disposition != plugin.Success {
		evt = s.logger.Warn().Str("error_code", r.ErrorCode).Str("reason", r.Error)
	}
	evt.Str("plugin", r.Plugin).
		Str("disposition", string(r.Disposition)).
		Dur("duration", r.Duration()).
		Msg("Plugin finished")

	if s.bus != nil {
		rc := r
		s.bus.Publish(ctx, EventPluginState, StateChange{
			Plugin: r.Plugin,
			State:  State(r.Disposition),
			Result: &rc,
			At:     r.FinishedAt,
		})
	}
	return nil
}

func (s *Scheduler) publish(ctx context.Context, name string, state State) {
	s.logger.Debug().Str("plugin", name).Str("state", string(state)).Msg("Plugin state changed")
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, EventPluginState, StateChange{Plugin: name, State: state, At: s.now()})
}

// conclude sets the disposition and, when err is non-nil, the error fields.
func conclude(r *plugin.Result, d plugin.Disposition, err error) {
	r.Disposition = d
	if err == nil {
		return
	}
	r.Err = err
	r.Error = err.Error()
	r.ErrorCode = ErrorCode(err)
}
