package yaml

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaGenerator reflects a JSON schema from Go types.
// Uses [github.com/invopop/jsonschema].
type SchemaGenerator struct {
	reflector *jsonschema.Reflector
	v         any
	id        string
}

// NewSchemaGenerator creates a new [SchemaGenerator] for the type of v.
// Fields are required only when tagged with `jsonschema:"required"`.
func NewSchemaGenerator(v any, id string) *SchemaGenerator {
	return &SchemaGenerator{
		v:  v,
		id: id,
		reflector: &jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
		},
	}
}

// Generate returns the indented JSON schema.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	s := g.reflector.Reflect(g.v)
	if g.id != "" {
		s.ID = jsonschema.ID(g.id)
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return b, nil
}
