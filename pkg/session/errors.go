package session

import (
	"errors"
	"fmt"

	"github.com/vulntor/conductor/pkg/plugin"
)

// ErrOutputLocked is returned by Run when another session holds the output
// directory.
var ErrOutputLocked = errors.New("output directory in use")

const (
	errorCodeInvalidOptions = "INVALID_OPTIONS"
	errorCodeOutputLocked   = "OUTPUT_LOCKED"
)

// OptionsError reports session options that failed validation.
type OptionsError struct {
	Problems []string
}

func (e *OptionsError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid session options: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid session options: %v", e.Problems)
}

func (e *OptionsError) Unwrap() error { return plugin.ErrConfig }

func (e *OptionsError) Code() string { return errorCodeInvalidOptions }

// lockedError carries the workspace failure behind ErrOutputLocked.
type lockedError struct {
	err error
}

func (e *lockedError) Error() string { return e.err.Error() }

func (e *lockedError) Unwrap() []error { return []error{ErrOutputLocked, e.err} }

func (e *lockedError) Code() string { return errorCodeOutputLocked }
