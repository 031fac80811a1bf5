package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vulntor/conductor/pkg/plugin"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cycle", &CyclicDependencyError{Cycle: []string{"a", "b", "a"}}, errorCodeCyclicDependency},
		{"duplicate write", &DuplicateWriteError{Plugin: "a"}, errorCodeDuplicateWrite},
		{"dependency timeout", &DependencyTimeoutError{Plugin: "a", Wait: time.Second}, errorCodeDependencyTimeout},
		{"unmet", &UnmetDependencyError{Plugin: "a", Condition: "success", Disposition: plugin.Fail}, errorCodeUnmetDependency},
		{"missing", &MissingDependencyError{Plugin: "a"}, errorCodeMissingDependency},
		{"execution timeout", &ExecutionTimeoutError{Plugin: "a", Timeout: time.Second}, errorCodeExecutionTimeout},
		{"execution failure", &ExecutionFailure{Plugin: "a", Stage: "run", Err: errors.New("x")}, errorCodeExecutionFailure},
		{"unavailable", fmt.Errorf("%w: nmap", ErrUnavailableTool), errorCodeUnavailableTool},
		{"cancelled", ErrCancelled, errorCodeCancelled},
		{"config", fmt.Errorf("%w: bad", ErrConfig), errorCodeConfig},
		{"unknown plugin", &plugin.UnknownPluginError{Names: []string{"x"}}, plugin.ErrorCodeUnknownPlugin},
		{"plain", errors.New("boom"), errorCodeExecutionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Errorf("expected 0 for nil")
	}
	if ExitCode(&CyclicDependencyError{Cycle: []string{"a", "a"}}) != 2 {
		t.Errorf("expected config errors to exit 2")
	}
	if ExitCode(&plugin.DuplicateNameError{Name: "a"}) != 2 {
		t.Errorf("expected registry errors to exit 2")
	}
	if ExitCode(fmt.Errorf("run: %w", ErrCancelled)) != 130 {
		t.Errorf("expected cancellation to exit 130")
	}
	if ExitCode(errors.New("io")) != 1 {
		t.Errorf("expected generic errors to exit 1")
	}
}

func TestExecutionFailureUnwrap(t *testing.T) {
	base := context.DeadlineExceeded
	err := &ExecutionFailure{Plugin: "a", Stage: "post_process", Err: base}
	if !errors.Is(err, base) {
		t.Errorf("unwrap mismatch")
	}
	if err.Error() != "plugin 'a' failed during post_process: context deadline exceeded" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestCyclicDependencyErrorMessage(t *testing.T) {
	err := &CyclicDependencyError{Cycle: []string{"a", "b", "a"}}
	if err.Error() != "cyclic dependency detected: a -> b -> a" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestSuggestions(t *testing.T) {
	if Suggestions(nil) != nil {
		t.Errorf("expected nil for nil error")
	}
	if len(Suggestions(&CyclicDependencyError{Cycle: []string{"a", "a"}})) == 0 {
		t.Errorf("expected suggestions for cycles")
	}
	if len(Suggestions(&plugin.UnknownPluginError{Names: []string{"x"}})) == 0 {
		t.Errorf("expected suggestions for unknown plugins")
	}
	if got := Suggestions(&plugin.ExcludedPluginError{Names: []string{"nmap"}}); len(got) == 0 || !strings.Contains(got[0], "--allow-active") {
		t.Fatalf("excluded plugin suggestions = %v", got)
	}
	if Suggestions(errors.New("boom")) != nil {
		t.Errorf("expected no suggestions for generic errors")
	}
	if len(SuggestionsFor(errorCodeExecutionTimeout)) == 0 {
		t.Errorf("expected suggestions for timed out plugins")
	}
	if SuggestionsFor("") != nil {
		t.Errorf("expected no suggestions for an empty code")
	}
}
