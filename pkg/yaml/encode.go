package yaml

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-yaml"
)

// EncodeOptions lay out every document orgz writes, so merged and freshly
// encoded files look the same.
var EncodeOptions = []yaml.EncodeOption{
	yaml.Indent(2),
	yaml.IndentSequence(true),
}

// Marshal encodes v as a single YAML document using [EncodeOptions].
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf, EncodeOptions...)

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	return buf.Bytes(), nil
}
