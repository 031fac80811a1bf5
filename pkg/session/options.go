package session

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/report"
)

// Options are the inputs of one session.
type Options struct {
	Target    string `json:"target" validate:"required"`
	OutputDir string `json:"output_dir" validate:"required"`

	// Plugins restricts the session to these names. Empty selects all.
	Plugins     []string `json:"plugins"`
	AllowActive bool     `json:"allow_active"`

	Parallel   bool `json:"parallel"`
	MaxWorkers int  `json:"max_workers" validate:"min=1,max=256"`
	DryRun     bool `json:"dry_run"`
	ReportOnly bool `json:"report_only"`

	DefaultTimeout time.Duration            `json:"default_timeout" validate:"gte=0"`
	Timeouts       map[string]time.Duration `json:"timeouts" validate:"dive,gt=0"`
	DependencyWait time.Duration            `json:"dependency_wait" validate:"gte=0"`
	KillGrace      time.Duration            `json:"kill_grace" validate:"gte=0"`

	MissingDependency string `json:"missing_dependency" validate:"oneof=skip run"`

	// Args is the command line, recorded in the summary.
	Args []string `json:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers == 0 {
		o.MaxWorkers = engine.DefaultMaxWorkers
	}
	if o.MissingDependency == "" {
		o.MissingDependency = string(engine.MissingSkip)
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = engine.DefaultTimeout
	}
	if o.KillGrace == 0 {
		o.KillGrace = engine.DefaultKillGrace
	}
	return o
}

// Validate checks o after defaults are applied. Failures are *OptionsError,
// which matches plugin.ErrConfig.
func (o Options) Validate() error {
	err := validate.Struct(o.withDefaults())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &OptionsError{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return &OptionsError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Options.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be positive", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func (o Options) engineOptions(outputDir string) engine.Options {
	return engine.Options{
		Target:            o.Target,
		OutputDir:         outputDir,
		Mode:              plugin.ModeFlags{ReportOnly: o.ReportOnly},
		Parallel:          o.Parallel,
		MaxWorkers:        o.MaxWorkers,
		DryRun:            o.DryRun,
		DefaultTimeout:    o.DefaultTimeout,
		Timeouts:          o.Timeouts,
		DependencyWait:    o.DependencyWait,
		MissingDependency: engine.MissingPolicy(o.MissingDependency),
		KillGrace:         o.KillGrace,
	}
}

func (o Options) cliContext() report.CLIContext {
	c := report.CLIContext{
		Args:              o.Args,
		RequestedPlugins:  o.Plugins,
		AllowActive:       o.AllowActive,
		Parallel:          o.Parallel,
		MaxWorkers:        o.MaxWorkers,
		DryRun:            o.DryRun,
		ReportOnly:        o.ReportOnly,
		OutputDir:         o.OutputDir,
		MissingDependency: o.MissingDependency,
	}
	if len(o.Timeouts) > 0 {
		c.Timeouts = make(map[string]string, len(o.Timeouts))
		for name, d := range o.Timeouts {
			c.Timeouts[name] = d.String()
		}
	}
	return c
}
