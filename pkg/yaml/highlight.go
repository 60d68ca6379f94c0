package yaml

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "onedark"

// Highlighter renders YAML with chroma syntax highlighting.
type Highlighter struct {
	lexer           chroma.Lexer
	formatter       chroma.Formatter
	style           *chroma.Style
	lineNumberStyle lipgloss.Style
	markerStyle     lipgloss.Style
	initialLine     int
	lineNumbers     bool
}

// HighlighterOpt configures a [Highlighter].
type HighlighterOpt func(*Highlighter)

// WithStyle sets the chroma style by name. Unknown names fall back to
// chroma's own fallback style.
func WithStyle(name string) HighlighterOpt {
	return func(h *Highlighter) {
		h.style = styles.Get(name)
	}
}

// WithFormatter sets the chroma formatter explicitly.
// This is primarily useful for testing, where "noop" yields plain text.
func WithFormatter(name string) HighlighterOpt {
	return func(h *Highlighter) {
		h.formatter = formatters.Get(name)
	}
}

// WithLineNumbers enables the line number gutter.
func WithLineNumbers(enabled bool) HighlighterOpt {
	return func(h *Highlighter) {
		h.lineNumbers = enabled
	}
}

// WithInitialLineNumber sets the number of the first rendered line.
func WithInitialLineNumber(n int) HighlighterOpt {
	return func(h *Highlighter) {
		h.initialLine = n
	}
}

// NewHighlighter creates a new [Highlighter]. The formatter is chosen from
// the terminal color profile unless overridden.
func NewHighlighter(opts ...HighlighterOpt) *Highlighter {
	formatterName := "noop"
	switch termenv.ColorProfile() {
	case termenv.TrueColor:
		formatterName = "terminal16m"

	case termenv.ANSI256:
		formatterName = "terminal256"

	case termenv.ANSI:
		formatterName = "terminal8"

	case termenv.Ascii:
	}

	h := &Highlighter{
		lexer:           chroma.Coalesce(lexers.Get("YAML")),
		formatter:       formatters.Get(formatterName),
		style:           styles.Get(DefaultStyle),
		initialLine:     1,
		lineNumberStyle: lipgloss.NewStyle().Faint(true),
		markerStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Highlight renders the given YAML source.
func (h *Highlighter) Highlight(src string) (string, error) {
	return h.render(src, -1, 0)
}

// HighlightError renders the given YAML source with a marker under the
// zero-based line errLine, starting at column errCol.
func (h *Highlighter) HighlightError(src string, errLine, errCol int) (string, error) {
	return h.render(src, errLine, errCol)
}

func (h *Highlighter) render(src string, errLine, errCol int) (string, error) {
	iterator, err := h.lexer.Tokenise(nil, src)
	if err != nil {
		return "", fmt.Errorf("lexer tokenize: %w", err)
	}

	buf := &bytes.Buffer{}
	err = h.formatter.Format(buf, h.style, iterator)
	if err != nil {
		return "", fmt.Errorf("format: %w", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	out := make([]string, 0, len(lines)+1)

	for i, line := range lines {
		prefix := ""
		if h.lineNumbers {
			prefix = h.lineNumberStyle.Render(fmt.Sprintf("%4d  ", h.initialLine+i))
		}

		out = append(out, prefix+line)

		if i == errLine {
			pad := max(errCol, 0)
			if h.lineNumbers {
				pad += 6
			}

			out = append(out, strings.Repeat(" ", pad)+h.markerStyle.Render("^"))
		}
	}

	return strings.Join(out, "\n"), nil
}
