// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package toolexec runs external scanning tools bound to a context, so a tool
// never outlives the plugin that started it.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/vulntor/conductor/pkg/logging"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain after
// the process was killed.
const DefaultWaitDelay = 2 * time.Second

// stderrLimit caps the stderr tail kept in Outcome.
const stderrLimit = 4 << 10

// Command describes one tool invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
	// Stdout receives the tool's standard output. Nil discards it.
	Stdout io.Writer
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// String renders the command line for previews and logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Binary))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Outcome is what a finished process reported.
type Outcome struct {
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	// Stderr holds the last few KiB of standard error.
	Stderr string `json:"stderr,omitempty"`
}

// Run starts the command and waits for it. A non-zero exit is reported in
// Outcome.ExitCode with a nil error; errors are returned when the process
// could not start or ctx ended first. In the latter case the process has
// been killed and the error wraps ctx.Err().
func Run(ctx context.Context, c Command) (Outcome, error) {
	if c.Binary == "" {
		return Outcome{}, errors.New("toolexec: empty binary")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdout = c.Stdout
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	killOnCancel(cmd)
	cmd.WaitDelay = c.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	logger := logging.Component("toolexec").With().Str("binary", c.Binary).Logger()
	logger.Debug().Strs("args", c.Args).Msg("Starting tool")

	start := time.Now()
	err := cmd.Run()
	out := Outcome{
		ExitCode: -1,
		Duration: time.Since(start),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug().Err(ctxErr).Dur("elapsed", out.Duration).Msg("Tool terminated")
		return out, fmt.Errorf("%s terminated: %w", c.Binary, ctxErr)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return out, fmt.Errorf("run %s: %w", c.Binary, err)
	}

	logger.Debug().Int("exit_code", out.ExitCode).Dur("elapsed", out.Duration).Msg("Tool exited")
	return out, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.limit:])
		return n, nil
	}
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
