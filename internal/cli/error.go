package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/orgz/pkg/store"
	"github.com/macropower/orgz/pkg/yaml"
)

// cobra returns usage problems as plain errors, so they are matched by
// message. See https://github.com/spf13/cobra/pull/2266.
var usageErrorPrefixes = []string{
	"flag needs an argument:",
	"unknown flag:",
	"unknown shorthand flag:",
	"unknown command",
	"invalid argument",
	"accepts ",
	"requires ",
}

// errorHint suggests a follow-up command for errors it matches.
type errorHint struct {
	match  func(error) bool
	render func(fang.Styles) string
	text   string
}

var errorHints = []errorHint{
	{
		match:  func(err error) bool { return errors.Is(err, store.ErrNotFound) },
		render: func(s fang.Styles) string { return s.Program.Command.Render(cmdName + " list") },
		text:   "to see known rulesets.",
	},
	{
		match:  isUsageError,
		render: func(s fang.Styles) string { return s.Program.Flag.Render("--help") },
		text:   "for usage.",
	},
}

// ErrorHandler renders command errors for [fang.WithErrorHandler].
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	text := styles.ErrorText.UnsetWidth()

	if errors.Is(err, errAborted) {
		mustN(fmt.Fprintln(w, text.Render("Aborted.")))

		return
	}

	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))

	// Annotated YAML excerpts are already laid out.
	var yamlErr *yaml.Error
	if errors.As(err, &yamlErr) {
		mustN(fmt.Fprintln(w, err.Error()))
	} else {
		mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	}

	mustN(fmt.Fprintln(w))

	for _, h := range errorHints {
		if !h.match(err) {
			continue
		}

		mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Left,
			text.Render("Try"),
			h.render(styles),
			text.UnsetMargins().UnsetTransform().PaddingLeft(1).Render(h.text),
		)))
		mustN(fmt.Fprintln(w))
	}
}

func isUsageError(err error) bool {
	msg := err.Error()

	for _, prefix := range usageErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
