package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "embed"

	"github.com/macropower/orgz/pkg/yaml"
)

//go:generate go run ../../internal/schemagen -kind ruleset -o ruleset.v1.json

const (
	// SchemaID identifies the embedded ruleset schema.
	SchemaID = "https://github.com/macropower/orgz/pkg/ruleset/ruleset"

	emptyRuleset = "rules: []\n"
)

var (
	//go:embed ruleset.v1.json
	schemaJSON []byte

	//go:embed example.yaml
	exampleYAML string

	// ErrParse indicates text that is not well-formed YAML.
	ErrParse = errors.New("yaml syntax error")
	// ErrSchema indicates well-formed YAML that is not a valid ruleset.
	ErrSchema = errors.New("invalid ruleset")

	// DefaultValidator validates rulesets against the embedded JSON schema.
	DefaultValidator = yaml.MustNewValidator(SchemaID, schemaJSON)

	// DefaultCodec parses and serializes rulesets with the default validator.
	DefaultCodec = NewCodec(DefaultValidator)
)

// Ruleset is an ordered list of rules.
type Ruleset struct {
	// Rules are evaluated in order.
	Rules []*Rule `json:"rules" jsonschema:"title=Rules,required"`
}

// New creates a [Ruleset] from rules.
func New(rules ...*Rule) *Ruleset {
	return &Ruleset{Rules: rules}
}

// Len returns the number of rules.
func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}

	return len(rs.Rules)
}

// Clone returns a deep copy.
func (rs *Ruleset) Clone() *Ruleset {
	if rs == nil {
		return nil
	}

	c := &Ruleset{Rules: make([]*Rule, len(rs.Rules))}
	for i, r := range rs.Rules {
		c.Rules[i] = r.Clone()
	}

	return c
}

// Validate checks every rule.
func (rs *Ruleset) Validate() error {
	for i, r := range rs.Rules {
		if r == nil {
			return fmt.Errorf("rules[%d]: %w: empty rule", i, ErrInvalidRule)
		}

		err := r.Validate()
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	return nil
}

// Codec converts between ruleset text and [Ruleset] values.
type Codec struct {
	validator *yaml.Validator
}

// NewCodec creates a new [Codec]. A nil validator skips schema validation.
func NewCodec(v *yaml.Validator) *Codec {
	return &Codec{validator: v}
}

// Parse parses and validates ruleset text.
// Errors wrap [ErrParse] or [ErrSchema], and carry a [*yaml.Error] with the
// location of the problem when one is known.
func (c *Codec) Parse(text string) (*Ruleset, error) {
	source := []byte(text)
	ew := yaml.NewErrorWrapper(yaml.WithSource(source), yaml.WithSourceLines(2))

	var raw any

	err := yaml.NewDecoder(bytes.NewReader(source)).Decode(&raw)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrParse, ew.Wrap(err))
	}

	if c.validator != nil {
		err = c.validator.Validate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchema, ew.Wrap(err))
		}
	}

	rs := &Ruleset{}

	err = yaml.NewDecoder(bytes.NewReader(source)).Decode(rs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrSchema, ew.Wrap(err))
	}

	if rs.Rules == nil {
		rs.Rules = []*Rule{}
	}

	err = rs.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	return rs, nil
}

// Marshal serializes a ruleset to its canonical text form.
func (c *Codec) Marshal(rs *Ruleset) (string, error) {
	if rs.Len() == 0 {
		return emptyRuleset, nil
	}

	b, err := yaml.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("serialize rules: %w", err)
	}

	return string(b), nil
}

// Validate checks text without returning the parsed ruleset.
func (c *Codec) Validate(text string) error {
	_, err := c.Parse(text)

	return err
}

// Parse parses and validates ruleset text with the [DefaultCodec].
func Parse(text string) (*Ruleset, error) {
	return DefaultCodec.Parse(text)
}

// Marshal serializes a ruleset with the [DefaultCodec].
func Marshal(rs *Ruleset) (string, error) {
	return DefaultCodec.Marshal(rs)
}

// Example returns the example ruleset text written for new rulesets.
func Example() string {
	return exampleYAML
}

// Schema returns the embedded JSON schema.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// GenerateSchema reflects the JSON schema from the Go types.
func GenerateSchema() ([]byte, error) {
	return yaml.NewSchemaGenerator(&Ruleset{}, SchemaID).Generate()
}

// Summary returns a one-line description of the rule, used in listings.
func Summary(r *Rule) string {
	parts := make([]string, 0, len(r.Locations))
	for _, l := range r.Locations {
		parts = append(parts, l.Path)
	}

	kinds := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		kinds = append(kinds, a.Name())
	}

	return fmt.Sprintf("%s -> %s", strings.Join(parts, ", "), strings.Join(kinds, ", "))
}
