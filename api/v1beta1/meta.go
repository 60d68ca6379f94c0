// Package v1beta1 contains the v1beta1 API types for orgz configuration.
package v1beta1

import (
	"errors"
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// APIVersion is the current API version for all orgz configuration kinds.
const APIVersion = "orgz.jacobcolvin.com/v1beta1"

var (
	// ValidAPIVersions lists every apiVersion this package decodes.
	ValidAPIVersions = []string{APIVersion}

	ErrUnknownAPIVersion = errors.New("unknown apiVersion")
	ErrUnknownKind       = errors.New("unknown kind")
)

// TypeMeta identifies the schema of a document.
type TypeMeta struct {
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version,required"`
	Kind       string `json:"kind"       jsonschema:"title=Kind,required"`
}

func (tm TypeMeta) GetAPIVersion() string { return tm.APIVersion }

func (tm TypeMeta) GetKind() string { return tm.Kind }

// Check fails unless tm names a supported apiVersion and one of kinds.
func (tm TypeMeta) Check(kinds ...string) error {
	switch {
	case !slices.Contains(ValidAPIVersions, tm.APIVersion):
		return fmt.Errorf("%w: %q", ErrUnknownAPIVersion, tm.APIVersion)
	case !slices.Contains(kinds, tm.Kind):
		return fmt.Errorf("%w: %q, expected one of %v", ErrUnknownKind, tm.Kind, kinds)
	}

	return nil
}

// Object is a decodable orgz document.
type Object interface {
	GetAPIVersion() string
	GetKind() string
	EnsureDefaults()
}

// PinTypeMeta restricts the apiVersion and kind properties of jss to
// [ValidAPIVersions] and kinds. It fails if jss has no such properties.
func PinTypeMeta(jss *jsonschema.Schema, kinds ...string) error {
	for prop, values := range map[string][]string{
		"apiVersion": ValidAPIVersions,
		"kind":       kinds,
	} {
		s, ok := jss.Properties.Get(prop)
		if !ok {
			return fmt.Errorf("schema has no %q property", prop)
		}

		s.Enum = make([]any, len(values))
		for i, v := range values {
			s.Enum[i] = v
		}
	}

	return nil
}
