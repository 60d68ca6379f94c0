package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/macropower/orgz/pkg/engine"
)

var (
	timeStyle  = lipgloss.NewStyle().Faint(true)
	ruleStyle  = lipgloss.NewStyle().Bold(true)
	pathStyle  = lipgloss.NewStyle().Faint(true)
	levelWidth = 7

	levelStyles = map[engine.Level]lipgloss.Style{
		engine.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		engine.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		engine.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		engine.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		engine.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}

	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// entryPrinter writes log entries as they arrive.
type entryPrinter struct {
	w        io.Writer
	minLevel engine.Level
}

func (p *entryPrinter) Print(e engine.LogEntry) {
	if levelRank(e.Level) < levelRank(p.minLevel) {
		return
	}

	level := levelStyles[e.Level].Render(fmt.Sprintf("%-*s", levelWidth, e.Level.Upper()))

	var b strings.Builder

	b.WriteString(timeStyle.Render(e.Timestamp.Format(time.TimeOnly)))
	b.WriteString(" ")
	b.WriteString(level)
	b.WriteString(" ")

	if e.RuleName != "" {
		b.WriteString(ruleStyle.Render("[" + e.RuleName + "]"))
		b.WriteString(" ")
	}

	b.WriteString(e.Message)

	if e.FilePath != "" && !strings.Contains(e.Message, e.FilePath) {
		b.WriteString(" ")
		b.WriteString(pathStyle.Render(e.FilePath))
	}

	mustN(fmt.Fprintln(p.w, b.String()))
}

func levelRank(l engine.Level) int {
	for i, lvl := range engine.AllLevels {
		if lvl == l {
			return i
		}
	}

	return 0
}

// printSummary writes a one-line summary of a finished run.
func printSummary(w io.Writer, status engine.Status, r engine.Result, simulate bool) {
	mode := "Run"
	if simulate {
		mode = "Simulation"
	}

	style := levelStyles[engine.LevelSuccess]

	switch {
	case status == engine.StatusFailed || r.ErrorCount > 0:
		style = levelStyles[engine.LevelError]
	case status == engine.StatusCancelled:
		style = levelStyles[engine.LevelWarning]
	}

	mustN(fmt.Fprintln(w, style.Render(fmt.Sprintf("%s %s in %s: %s, %s, %s (%s processed)",
		mode,
		status,
		r.Duration().Round(time.Millisecond),
		english.Plural(r.SuccessCount, "success", "successes"),
		english.Plural(r.ErrorCount, "error", "errors"),
		english.Plural(r.SkippedCount, "skip", "skips"),
		humanize.Comma(int64(r.TotalProcessed())),
	))))
}

// printDiff colors a unified diff line by line.
func printDiff(w io.Writer, diff string) {
	for line := range strings.Lines(diff) {
		line = strings.TrimSuffix(line, "\n")

		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			line = ruleStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			line = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			line = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			line = removedStyle.Render(line)
		}

		mustN(fmt.Fprintln(w, line))
	}
}
