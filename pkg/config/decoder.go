package config

import (
	"bytes"
	"fmt"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/api/v1beta1"
	"github.com/macropower/orgz/pkg/yaml"
)

// Schema checks a decoded YAML document.
type Schema interface {
	Validate(data any) error
}

// Decoder reads API objects of type T from YAML documents.
//
// Each document is checked against a [Schema] before it is decoded, so
// unknown fields and type mismatches are reported with their YAML path
// rather than silently dropped.
type Decoder[T v1beta1.Object] struct {
	newObject func() T
	schema    Schema
	style     string
	context   int
}

type decoderSettings struct {
	schema   Schema
	noSchema bool
	style    string
	context  int
}

// Option configures a [Decoder].
type Option func(*decoderSettings)

// WithoutSchema turns off schema checks. Documents are only decoded.
func WithoutSchema() Option {
	return func(s *decoderSettings) {
		s.noSchema = true
	}
}

// WithSchema replaces the decoder's schema.
func WithSchema(schema Schema) Option {
	return func(s *decoderSettings) {
		s.schema = schema
	}
}

// WithHighlightStyle sets the chroma style for source excerpts in errors.
func WithHighlightStyle(style string) Option {
	return func(s *decoderSettings) {
		s.style = style
	}
}

// WithContextLines sets how many source lines surround an error.
func WithContextLines(n int) Option {
	return func(s *decoderSettings) {
		s.context = n
	}
}

// NewDecoder returns a [Decoder] creating objects with newObject and
// checking them against schema.
func NewDecoder[T v1beta1.Object](newObject func() T, schema Schema, opts ...Option) *Decoder[T] {
	s := &decoderSettings{
		schema:  schema,
		context: yaml.DefaultContextLines,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.noSchema {
		s.schema = nil
	}

	return &Decoder[T]{
		newObject: newObject,
		schema:    s.schema,
		style:     s.style,
		context:   s.context,
	}
}

// Decode checks data against the schema, decodes it into a new T, and
// applies defaults.
//
//nolint:ireturn // T is the caller's concrete type.
func (d *Decoder[T]) Decode(data []byte) (T, error) {
	var zero T

	wrapper := yaml.NewErrorWrapper(d.errorOpts(data)...)

	if d.schema != nil {
		var doc any

		err := yaml.Unmarshal(data, &doc)
		if err != nil {
			return zero, wrapper.Wrap(err)
		}

		err = d.schema.Validate(doc)
		if err != nil {
			return zero, wrapper.Wrap(err)
		}
	}

	obj := d.newObject()

	err := yaml.NewDecoder(bytes.NewReader(data)).Decode(obj)
	if err != nil {
		return zero, wrapper.Wrap(err)
	}

	obj.EnsureDefaults()

	return obj, nil
}

// DecodeFile reads and decodes the file at path. A missing file returns an
// error wrapping [fs.ErrNotExist], unchanged, so callers can fall back to
// defaults.
//
//nolint:ireturn // T is the caller's concrete type.
func (d *Decoder[T]) DecodeFile(path string) (T, error) {
	data, err := api.ReadFile(path)
	if err != nil {
		var zero T
		return zero, err //nolint:wrapcheck // Keep fs.ErrNotExist visible.
	}

	obj, err := d.Decode(data)
	if err != nil {
		return obj, fmt.Errorf("%s: %w", path, err)
	}

	return obj, nil
}

func (d *Decoder[T]) errorOpts(data []byte) []yaml.ErrorOpt {
	opts := []yaml.ErrorOpt{
		yaml.WithSource(data),
		yaml.WithSourceLines(d.context),
	}
	if d.style != "" {
		opts = append(opts, yaml.WithErrorStyle(d.style))
	}

	return opts
}
