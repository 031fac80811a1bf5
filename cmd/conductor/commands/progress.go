package commands

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulntor/conductor/pkg/engine"
	"github.com/vulntor/conductor/pkg/event"
	"github.com/vulntor/conductor/pkg/plugin"
)

var (
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

func styleForDisposition(d plugin.Disposition) lipgloss.Style {
	switch d {
	case plugin.Success:
		return successStyle
	case plugin.Skipped:
		return warnStyle
	case plugin.Fail, plugin.TimedOut:
		return errorStyle
	default:
		return subtleStyle
	}
}

// progressPrinter writes one line per plugin start and finish. Handlers may
// be called from several workers at once.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	total  int
	done   int
	styled bool
}

func newProgressPrinter(w io.Writer, total int, styled bool) *progressPrinter {
	return &progressPrinter{w: w, total: total, styled: styled}
}

func (p *progressPrinter) attach(bus event.EventBus) {
	bus.Subscribe(engine.EventPluginState, p.onState)
}

func (p *progressPrinter) onState(_ context.Context, data any) {
	change, ok := data.(engine.StateChange)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case change.Terminal():
		p.done++
		r := change.Result
		line := fmt.Sprintf("[%d/%d] %-9s %s", p.done, p.total, r.Disposition, r.Plugin)
		if r.Disposition.Ran() {
			line += fmt.Sprintf(" (%s)", r.Duration().Round(time.Millisecond))
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		p.println(styleForDisposition(r.Disposition), line)
	case change.State == engine.StateRunning:
		p.println(infoStyle, fmt.Sprintf("[%d/%d] %-9s %s", p.done, p.total, change.State, change.Plugin))
	}
}

func (p *progressPrinter) println(style lipgloss.Style, line string) {
	if p.styled {
		line = style.Render(line)
	}
	_, _ = fmt.Fprintln(p.w, line)
}
