package yaml

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/token"
)

// DefaultContextLines is the number of source lines shown on each side of
// an error when no other value is set.
const DefaultContextLines = 4

// Error is a problem found at a location in a YAML document.
//
// The location is a [*yaml.Path], a [*token.Token], or both. When the source
// is known, Error renders the surrounding lines with a marker under the
// offending token.
type Error struct {
	Err       error
	Path      *yaml.Path
	Token     *token.Token
	Source    []byte
	Style     string
	Formatter string
	Context   int
}

// NewError creates an [*Error] wrapping err.
func NewError(err error, opts ...ErrorOpt) *Error {
	e := &Error{
		Err:     err,
		Context: DefaultContextLines,
		Style:   DefaultStyle,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ErrorOpt configures an [*Error].
type ErrorOpt func(e *Error)

// WithSourceLines sets how many lines around the error are rendered.
func WithSourceLines(n int) ErrorOpt {
	return func(e *Error) {
		e.Context = n
	}
}

func WithPath(path *yaml.Path) ErrorOpt {
	return func(e *Error) {
		e.Path = path
	}
}

func WithToken(tk *token.Token) ErrorOpt {
	return func(e *Error) {
		e.Token = tk
	}
}

func WithSource(source []byte) ErrorOpt {
	return func(e *Error) {
		e.Source = source
	}
}

// WithErrorStyle sets the chroma style used to render the annotated source.
func WithErrorStyle(style string) ErrorOpt {
	return func(e *Error) {
		e.Style = style
	}
}

// WithErrorFormatter sets the chroma formatter used to render the annotated
// source. "noop" renders plain text.
func WithErrorFormatter(name string) ErrorOpt {
	return func(e *Error) {
		e.Formatter = name
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return ""
	}

	if e.Token == nil && (e.Path == nil || len(e.Source) == 0) {
		if e.Path != nil {
			return fmt.Sprintf("error at %s: %v", e.Path, e.Err)
		}

		return e.Err.Error()
	}

	msg, err := e.annotate()
	if err != nil {
		slog.Debug("annotate yaml error", slog.Any("err", err))

		if e.Path != nil {
			return fmt.Sprintf("error at %s: %v", e.Path, e.Err)
		}

		return e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// annotate renders "[line:col] message:" followed by the source excerpt.
func (e *Error) annotate() (string, error) {
	tk := e.Token
	src := string(e.Source)

	if tk == nil {
		var err error

		tk, err = tokenAt(e.Source, e.Path)
		if err != nil {
			return "", err
		}
	}

	if src == "" {
		src = tokenSource(tk)
	}

	line := tk.Position.Line
	col := column(tk)

	snippet, first := excerpt(src, line, e.Context)
	if snippet == "" {
		return "", fmt.Errorf("line %d is outside the source", line)
	}

	opts := []HighlighterOpt{
		WithStyle(e.Style),
		WithLineNumbers(true),
		WithInitialLineNumber(first),
	}
	if e.Formatter != "" {
		opts = append(opts, WithFormatter(e.Formatter))
	}

	rendered, err := NewHighlighter(opts...).HighlightError(snippet, line-first, col)
	if err != nil {
		return "", fmt.Errorf("highlight: %w", err)
	}

	return fmt.Sprintf("[%d:%d] %v:\n\n%s", line, col+1, e.Err, rendered), nil
}

// ErrorWrapper applies a fixed set of [ErrorOpt]s to any [*Error] it wraps,
// typically the source document the error came from.
type ErrorWrapper struct {
	opts []ErrorOpt
}

func NewErrorWrapper(opts ...ErrorOpt) *ErrorWrapper {
	return &ErrorWrapper{opts: opts}
}

// Wrap applies the wrapper's options, then opts, to err if it is an
// [*Error]. Other errors are returned unchanged.
func (ew *ErrorWrapper) Wrap(err error, opts ...ErrorOpt) error {
	var yamlErr *Error
	if !errors.As(err, &yamlErr) {
		return err
	}

	for _, opt := range ew.opts {
		opt(yamlErr)
	}

	for _, opt := range opts {
		opt(yamlErr)
	}

	return yamlErr
}

func parseFile(source []byte) (*ast.File, error) {
	file, err := parser.ParseBytes(source, 0)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	return file, nil
}
