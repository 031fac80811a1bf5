// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package plugin

import (
	"fmt"
	"slices"
	"strings"
)

// Names accepted by ConditionByName.
const (
	ConditionSuccess    = "success"
	ConditionCompleted  = "completed"
	ConditionFailed     = "failed"
	ConditionNotSkipped = "not_skipped"
)

// Succeeded holds when the dependency finished with Success.
func Succeeded() Condition {
	return func(r Result) bool { return r.Disposition == Success }
}

// Completed holds for any terminal disposition.
func Completed() Condition {
	return func(Result) bool { return true }
}

// FailedOrTimedOut holds when the dependency ran and did not succeed.
// Useful for fallback plugins.
func FailedOrTimedOut() Condition {
	return func(r Result) bool { return r.Disposition == Fail || r.Disposition == TimedOut }
}

// DispositionIn holds when the dependency's disposition is one of ds.
func DispositionIn(ds ...Disposition) Condition {
	allowed := slices.Clone(ds)
	return func(r Result) bool { return slices.Contains(allowed, r.Disposition) }
}

// ConditionByName resolves a named condition, as used in manifests.
// An empty name resolves to success.
func ConditionByName(name string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ConditionSuccess:
		return Succeeded(), nil
	case ConditionCompleted:
		return Completed(), nil
	case ConditionFailed:
		return FailedOrTimedOut(), nil
	case ConditionNotSkipped:
		return DispositionIn(Success, Fail, TimedOut), nil
	default:
		return nil, fmt.Errorf("%w: unknown dependency condition %q (valid: %s)", ErrConfig, name,
			strings.Join([]string{ConditionSuccess, ConditionCompleted, ConditionFailed, ConditionNotSkipped}, ", "))
	}
}
