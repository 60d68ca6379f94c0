package yaml

import (
	"bytes"
	"errors"
	"io"

	"github.com/goccy/go-yaml"
)

// Decoder reads YAML documents from a stream. Syntax and type errors are
// returned as [*Error]s that carry the offending token.
type Decoder struct {
	d *yaml.Decoder
}

// NewDecoder returns a [Decoder] reading from r. Duplicate map keys are
// allowed, with the last one winning.
func NewDecoder(r io.Reader, opts ...yaml.DecodeOption) *Decoder {
	return &Decoder{
		d: yaml.NewDecoder(r, append([]yaml.DecodeOption{yaml.AllowDuplicateMapKey()}, opts...)...),
	}
}

// Decode reads the next document into v. It returns [io.EOF] at the end of
// the stream.
func (d *Decoder) Decode(v any) error {
	err := d.d.Decode(v)

	var yamlErr yaml.Error
	if err != nil && errors.As(err, &yamlErr) {
		return NewError(errors.New(yamlErr.GetMessage()), WithToken(yamlErr.GetToken()))
	}

	return err //nolint:wrapcheck // io.EOF must stay comparable.
}

// Unmarshal decodes the first document in data into v.
func Unmarshal(data []byte, v any) error {
	err := NewDecoder(bytes.NewReader(data)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}
