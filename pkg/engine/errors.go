package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vulntor/conductor/pkg/plugin"
)

const (
	errorCodeConfig            = "CONFIG_INVALID"
	errorCodeCyclicDependency  = "CYCLIC_DEPENDENCY"
	errorCodeDuplicateWrite    = "DUPLICATE_RESULT_WRITE"
	errorCodeDependencyTimeout = "DEPENDENCY_TIMEOUT"
	errorCodeUnmetDependency   = "DEPENDENCY_UNMET"
	errorCodeMissingDependency = "DEPENDENCY_MISSING"
	errorCodeUnavailableTool   = "TOOL_UNAVAILABLE"
	errorCodeExecutionTimeout  = "EXECUTION_TIMEOUT"
	errorCodeExecutionFailure  = "EXECUTION_FAILED"
	errorCodeCancelled         = "CANCELLED"
)

var (
	// ErrConfig is the registry's configuration sentinel, re-exported so
	// callers of the engine need a single import.
	ErrConfig = plugin.ErrConfig

	// ErrUnavailableTool indicates a plugin's tool is not usable on this host.
	ErrUnavailableTool = errors.New("tool unavailable")

	// ErrCancelled indicates the session was cancelled before the plugin finished.
	ErrCancelled = errors.New("session cancelled")
)

// CyclicDependencyError reports a dependency cycle, first node repeated last.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency detected: " + strings.Join(e.Cycle, " -> ")
}

func (e *CyclicDependencyError) Unwrap() error { return ErrConfig }

func (e *CyclicDependencyError) Code() string { return errorCodeCyclicDependency }

// DuplicateWriteError is returned when a result is stored twice for one plugin.
type DuplicateWriteError struct {
	Plugin string
}

func (e *DuplicateWriteError) Error() string {
	return fmt.Sprintf("result for plugin '%s' already written", e.Plugin)
}

func (e *DuplicateWriteError) Code() string { return errorCodeDuplicateWrite }

// DependencyTimeoutError is returned when a dependency result did not arrive in time.
type DependencyTimeoutError struct {
	Plugin string
	Wait   time.Duration
}

func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("dependency '%s' did not complete within %s", e.Plugin, e.Wait)
}

func (e *DependencyTimeoutError) Code() string { return errorCodeDependencyTimeout }

// UnmetDependencyError explains why a plugin was skipped.
type UnmetDependencyError struct {
	Plugin      string
	Condition   string
	Disposition plugin.Disposition
}

func (e *UnmetDependencyError) Error() string {
	return fmt.Sprintf("dependency '%s' ended %s, condition %q not met", e.Plugin, e.Disposition, e.Condition)
}

func (e *UnmetDependencyError) Code() string { return errorCodeUnmetDependency }

// MissingDependencyError is recorded when a dependency is not part of the session.
type MissingDependencyError struct {
	Plugin string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("dependency '%s' is not part of this session", e.Plugin)
}

func (e *MissingDependencyError) Code() string { return errorCodeMissingDependency }

// ExecutionTimeoutError is recorded when Run exceeds its timeout.
type ExecutionTimeoutError struct {
	Plugin  string
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("plugin '%s' exceeded timeout of %s", e.Plugin, e.Timeout)
}

func (e *ExecutionTimeoutError) Code() string { return errorCodeExecutionTimeout }

// ExecutionFailure wraps any error raised while a plugin executed.
type ExecutionFailure struct {
	Plugin string
	Stage  string
	Err    error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("plugin '%s' failed during %s: %v", e.Plugin, e.Stage, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

func (e *ExecutionFailure) Code() string { return errorCodeExecutionFailure }

// ErrorCode resolves an error to its engine error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrUnavailableTool):
		return errorCodeUnavailableTool
	case errors.Is(err, ErrCancelled):
		return errorCodeCancelled
	case errors.Is(err, ErrConfig):
		return errorCodeConfig
	default:
		return errorCodeExecutionFailure
	}
}

// ExitCode maps errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrCancelled):
		return 130
	default:
		return 1
	}
}

// Suggestions provides human readable guidance for CLI usage.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}
	return SuggestionsFor(ErrorCode(err))
}

// SuggestionsFor returns guidance for an error code, e.g. one recorded in a
// plugin result.
func SuggestionsFor(code string) []string {
	switch code {
	case errorCodeCyclicDependency:
		return []string{
			"Remove one of the depends_on entries along the reported cycle",
			"Inspect the resolved graph:  conductor plan --format yaml",
		}
	case plugin.ErrorCodeUnknownPlugin:
		return []string{
			"List registered plugins:     conductor plugins",
			"Check the --plugins spelling",
		}
	case plugin.ErrorCodeExcludedPlugin:
		return []string{
			"Pass --allow-active to include active plugins",
			"Or drop the active plugins from --plugins",
		}
	case plugin.ErrorCodeDuplicatePlugin:
		return []string{
			"Plugin names must be unique across all manifests",
		}
	case plugin.ErrorCodeInvalidDescriptor:
		return []string{
			"Fix the manifest entry named in the error",
		}
	case errorCodeUnavailableTool:
		return []string{
			"Install the tool or add it to PATH",
			"Check availability:          conductor plugins",
		}
	case errorCodeExecutionTimeout:
		return []string{
			"Raise the limit:             conductor run --timeout <plugin>=<duration>",
		}
	case errorCodeDependencyTimeout:
		return []string{
			"Raise the wait:              conductor run --dependency-wait <duration>",
		}
	case errorCodeMissingDependency:
		return []string{
			"Select the dependency too with --plugins, or pass --missing-dependency run",
		}
	case errorCodeUnmetDependency:
		return []string{
			"Inspect the dependency graph: conductor plan",
		}
	default:
		return nil
	}
}
