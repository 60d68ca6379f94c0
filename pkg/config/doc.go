// Package config decodes orgz configuration files.
//
// A [Decoder] is generic over the API object it produces. It checks raw YAML
// against a JSON schema, decodes it, and applies defaults. Errors carry the
// offending YAML path and an annotated source excerpt.
package config
