// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/plugin"
	"github.com/vulntor/conductor/pkg/report"
	"github.com/vulntor/conductor/pkg/stringutil"
)

const (
	maxErrorsToShow = 5  // Maximum errors to display before truncating
	maxDetailWidth  = 72 // Maximum width of the table's detail column
)

// PrintSession prints the per-plugin table followed by counts, failures and
// suggestions.
// Example output:
//
//	PLUGIN    RESULT     DURATION  DETAIL
//	dns-enum  success    1.2s      /out/dns-enum/artifact.json
//	nmap      timed_out  15m0s     plugin 'nmap' exceeded timeout of 15m0s
//
//	Summary:
//	  ✓ Succeeded: 1
//	  ⏱ Timed out: 1
//
//	Failed plugins:
//	  - nmap: plugin 'nmap' exceeded timeout of 15m0s
//
//	💡 Suggestions:
//	  → Raise the limit:             conductor run --timeout <plugin>=<duration>
func (f *formatter) PrintSession(summary *report.Summary) error {
	if summary == nil || f.quiet {
		return nil
	}

	if f.mode != ModeTable {
		return summary.Write(f.stdout, string(f.mode))
	}

	rows := make([][]string, 0, len(summary.Plugins))
	for _, p := range summary.Plugins {
		rows = append(rows, []string{
			p.Name,
			string(p.Disposition),
			formatDuration(time.Duration(p.DurationMS) * time.Millisecond),
			stringutil.Ellipsis(detail(p), maxDetailWidth),
		})
	}
	if err := f.PrintTable([]string{"plugin", "result", "duration", "detail"}, rows); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("\nSummary:\n")
	f.countLine(&sb, "✓", "Succeeded:", summary.Count(plugin.Success), color.FgGreen)
	f.countLine(&sb, "✗", "Failed:", summary.Count(plugin.Fail), color.FgRed)
	f.countLine(&sb, "⏱", "Timed out:", summary.Count(plugin.TimedOut), color.FgRed)
	f.countLine(&sb, "⚠", "Skipped:", summary.Count(plugin.Skipped), color.FgYellow)
	if summary.DryRun {
		sb.WriteString("  (dry run, nothing was executed)\n")
	}
	if summary.Interrupted {
		f.colored(&sb, color.FgYellow, "  ⚠ Session interrupted before all plugins finished\n")
	}

	var failed []report.PluginRecord
	for _, p := range summary.Plugins {
		if p.Disposition == plugin.Fail || p.Disposition == plugin.TimedOut {
			failed = append(failed, p)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("\nFailed plugins:\n")
		for i, p := range failed {
			if i >= maxErrorsToShow {
				fmt.Fprintf(&sb, "  ... and %d more (use --format json for full list)\n", len(failed)-maxErrorsToShow)
				break
			}
			fmt.Fprintf(&sb, "  - %s: %s\n", p.Name, p.Error)
		}
	}
	writeSuggestions(&sb, collectSuggestions(summary.Plugins))

	_, err := io.WriteString(f.stdout, sb.String())
	return err
}

func (f *formatter) countLine(sb *strings.Builder, symbol, label string, n int, attr color.Attribute) {
	if n == 0 {
		return
	}
	f.colored(sb, attr, fmt.Sprintf("  %s %-10s %d\n", symbol, label, n))
}

func (f *formatter) colored(sb *strings.Builder, attr color.Attribute, s string) {
	if f.color {
		sb.WriteString(color.New(attr).Sprint(s))
		return
	}
	sb.WriteString(s)
}

// collectSuggestions gathers unique suggestions for every recorded error code
func collectSuggestions(records []report.PluginRecord) []string {
	seen := make(map[string]bool)
	var suggestions []string

	for _, p := range records {
		for _, hint := range engine.SuggestionsFor(p.ErrorCode) {
			if !seen[hint] {
				seen[hint] = true
				suggestions = append(suggestions, hint)
			}
		}
	}
	return suggestions
}

func detail(p report.PluginRecord) string {
	switch {
	case p.Error != "":
		return p.Error
	case p.Preview != "":
		return p.Preview
	default:
		return p.Artifact
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
