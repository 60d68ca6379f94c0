package yaml

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks decoded YAML documents against a compiled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the JSON schema in schemaData, registered under id.
func NewValidator(id string, schemaData []byte) (*Validator, error) {
	var doc any

	err := json.Unmarshal(schemaData, &doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()

	err = c.AddResource(id, doc)
	if err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// MustNewValidator is like [NewValidator] but panics on error. It is meant
// for schemas embedded at build time.
func MustNewValidator(id string, schemaData []byte) *Validator {
	v, err := NewValidator(id, schemaData)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate checks data, as produced by decoding YAML into an any.
// Violations are returned as an [*Error] whose Path points at the most
// deeply nested failing value, which is usually the one to fix.
func (v *Validator) Validate(data any) error {
	err := v.schema.Validate(data)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return NewError(fmt.Errorf("schema validation: %w", err))
	}

	return NewError(ve, WithPath(PathOf(deepestLocation(ve)...)))
}

// deepestLocation returns the longest instance location among ve and all
// of its causes.
func deepestLocation(ve *jsonschema.ValidationError) []string {
	loc := ve.InstanceLocation

	for _, cause := range ve.Causes {
		if l := deepestLocation(cause); len(l) > len(loc) {
			loc = l
		}
	}

	return loc
}
