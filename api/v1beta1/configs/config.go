// Package configs provides the global Config configuration type for orgz.
package configs

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/api/v1beta1"
	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/execs"
	"github.com/macropower/orgz/pkg/watch"
	"github.com/macropower/orgz/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen -kind config -o configs.v1beta1.json

const (
	// Kind is the kind of the global configuration.
	Kind = "Configuration"

	// SchemaID identifies the embedded configuration schema.
	SchemaID = "/configs.v1beta1.json"

	// DefaultRulesetsDir is the catalog directory name under [api.ConfigDir].
	DefaultRulesetsDir = "rules"
)

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed configs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for global configurations.
	ValidKinds = []string{Kind}

	// DefaultValidator validates global configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator(SchemaID, schemaJSON)

	// ErrInvalidConfig is returned by [Config.Validate].
	ErrInvalidConfig = errors.New("invalid configuration")

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config represents the global orgz configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	// Run holds defaults for `orgz run`.
	Run *RunConfig `json:"run,omitempty" jsonschema:"title=Run"`
	// Rulesets controls where rulesets are found.
	Rulesets *RulesetsConfig `json:"rulesets,omitempty" jsonschema:"title=Rulesets"`
	// Watch tunes the filesystem watch service.
	Watch *WatchConfig `json:"watch,omitempty" jsonschema:"title=Watch"`
	// Shell configures the environment of the shell action.
	Shell *ShellConfig `json:"shell,omitempty" jsonschema:"title=Shell"`

	v1beta1.TypeMeta `json:",inline"`
}

// RunConfig holds defaults for rule execution.
type RunConfig struct {
	// Simulate reports what would happen without changing any files.
	// Runs are real only when this is false or --real is passed.
	Simulate *bool `json:"simulate,omitempty" jsonschema:"title=Simulate,default=true"`
	// Confirm asks before a real run when attached to a terminal.
	Confirm *bool `json:"confirm,omitempty" jsonschema:"title=Confirm,default=true"`
	// WorkingDir resolves relative rule locations. Defaults to the current directory.
	WorkingDir string `json:"workingDir,omitempty" jsonschema:"title=Working Directory"`
	// Tags selects rules carrying any of these tags.
	Tags []string `json:"tags,omitempty" jsonschema:"title=Tags"`
	// SkipTags excludes rules carrying any of these tags.
	SkipTags []string `json:"skipTags,omitempty" jsonschema:"title=Skip Tags"`
}

// RulesetsConfig controls ruleset resolution.
type RulesetsConfig struct {
	// Default is the ruleset name or path used when none is given.
	Default string `json:"default,omitempty" jsonschema:"title=Default"`
	// Dir is the catalog directory of named rulesets.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
	// Backup keeps a timestamped copy before the CLI saves a ruleset.
	Backup *bool `json:"backup,omitempty" jsonschema:"title=Backup,default=false"`
}

// WatchConfig tunes the watch service.
type WatchConfig struct {
	// PairWindow is how long a rename waits for its matching create.
	PairWindow string `json:"pairWindow,omitempty" jsonschema:"title=Pair Window,default=50ms"`
	// Debounce delays a re-run after a ruleset change in `orgz run --watch`.
	Debounce string `json:"debounce,omitempty" jsonschema:"title=Debounce,default=250ms"`
}

// ShellConfig configures the environment passed to shell actions.
type ShellConfig struct {
	// Env sets variables explicitly.
	Env []execs.EnvVar `json:"env,omitempty" jsonschema:"title=Environment"`
	// EnvFrom inherits variables from the caller.
	EnvFrom []execs.EnvFromSource `json:"envFrom,omitempty" jsonschema:"title=Environment From"`
}

// New creates a new global [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       Kind,
		},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Run == nil {
		c.Run = &RunConfig{}
	}
	if c.Run.Simulate == nil {
		c.Run.Simulate = ptr(true)
	}
	if c.Run.Confirm == nil {
		c.Run.Confirm = ptr(true)
	}

	if c.Rulesets == nil {
		c.Rulesets = &RulesetsConfig{}
	}
	if c.Rulesets.Backup == nil {
		c.Rulesets.Backup = ptr(false)
	}

	if c.Watch == nil {
		c.Watch = &WatchConfig{}
	}
	if c.Watch.PairWindow == "" {
		c.Watch.PairWindow = watch.DefaultPairWindow.String()
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = "250ms"
	}

	if c.Shell == nil {
		c.Shell = &ShellConfig{}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	err := c.Check(ValidKinds...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Watch != nil {
		_, err = parseDuration("watch.pairWindow", c.Watch.PairWindow)
		if err != nil {
			return err
		}

		_, err = parseDuration("watch.debounce", c.Watch.Debounce)
		if err != nil {
			return err
		}
	}

	if c.Shell != nil {
		for i, src := range c.Shell.EnvFrom {
			if src.CallerRef == nil {
				continue
			}

			err = src.CallerRef.Validate()
			if err != nil {
				return fmt.Errorf("%w: shell.envFrom[%d]: %w", ErrInvalidConfig, i, err)
			}
		}
	}

	return nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	err := v1beta1.PinTypeMeta(jss, ValidKinds...)
	if err != nil {
		panic(err)
	}
}

// EngineOptions returns run options from the configured defaults.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.Options{Simulate: true}
	if c.Run == nil {
		return opts
	}

	opts.WorkingDir = c.Run.WorkingDir
	opts.Tags = append([]string(nil), c.Run.Tags...)
	opts.SkipTags = append([]string(nil), c.Run.SkipTags...)

	if c.Run.Simulate != nil {
		opts.Simulate = *c.Run.Simulate
	}

	return opts
}

// ShouldConfirm reports whether a real run asks first.
func (c *Config) ShouldConfirm() bool {
	return c.Run == nil || c.Run.Confirm == nil || *c.Run.Confirm
}

// ShouldBackup reports whether the CLI backs up rulesets before saving.
func (c *Config) ShouldBackup() bool {
	return c.Rulesets != nil && c.Rulesets.Backup != nil && *c.Rulesets.Backup
}

// RulesetsDir returns the catalog directory. A relative dir is resolved
// against configDir.
func (c *Config) RulesetsDir(configDir string) string {
	dir := ""
	if c.Rulesets != nil {
		dir = c.Rulesets.Dir
	}

	switch {
	case dir == "":
		return filepath.Join(configDir, DefaultRulesetsDir)
	case filepath.IsAbs(dir):
		return dir
	default:
		return filepath.Join(configDir, dir)
	}
}

// WatchOptions returns watch service options from the configuration.
func (c *Config) WatchOptions() []watch.Opt {
	if c.Watch == nil {
		return nil
	}

	d, err := parseDuration("watch.pairWindow", c.Watch.PairWindow)
	if err != nil || d == 0 {
		return nil
	}

	return []watch.Opt{watch.WithPairWindow(d)}
}

// DebounceDuration returns the watch re-run delay.
func (c *Config) DebounceDuration() time.Duration {
	if c.Watch == nil {
		return 0
	}

	d, err := parseDuration("watch.debounce", c.Watch.Debounce)
	if err != nil {
		return 0
	}

	return d
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := yaml.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// Write writes the config to the specified path if it doesn't already exist.
func (c Config) Write(path string) error {
	b, err := c.MarshalYAML()
	if err != nil {
		return err
	}

	err = api.WriteIfNotExists(path, b)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// WriteDefault writes the embedded default config.yaml to the specified path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// Default returns the embedded default config.yaml.
func Default() []byte {
	return append([]byte(nil), defaultConfigYAML...)
}

// Schema returns the embedded JSON schema.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// GenerateSchema reflects the JSON schema from the Go types.
func GenerateSchema() ([]byte, error) {
	return yaml.NewSchemaGenerator(New(), SchemaID).Generate()
}

// GetPath returns the path to the global configuration file.
func GetPath() string {
	return api.ConfigPath("config.yaml")
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s: must not be negative", ErrInvalidConfig, field)
	}

	return d, nil
}

func ptr[T any](v T) *T {
	return &v
}
