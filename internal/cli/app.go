package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/config"
	"github.com/macropower/orgz/pkg/store"
	"github.com/macropower/orgz/pkg/yaml"
)

// App is the state shared by commands after the configuration is loaded.
type App struct {
	Config     *configs.Config
	Catalog    *store.Catalog
	ConfigPath string
}

func (ra *RootArgs) configPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	return configs.GetPath()
}

// loadApp loads the configuration. The default file is written on first use
// when no explicit path was given. A missing file falls back to defaults.
func (ra *RootArgs) loadApp() (*App, error) {
	path := ra.configPath()

	if ra.ConfigPath == "" {
		err := configs.WriteDefault(path, false)
		if err != nil {
			slog.Error("write default config", slog.Any("err", err))
		}
	}

	dec := config.NewDecoder(configs.New, configs.DefaultValidator,
		config.WithHighlightStyle(yaml.DefaultStyle),
	)

	cfg, err := dec.DecodeFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", slog.String("path", path))

		cfg = configs.New()
	case err != nil:
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}

	return &App{
		Config:     cfg,
		ConfigPath: path,
		Catalog:    store.NewCatalog(cfg.RulesetsDir(filepath.Dir(path))),
	}, nil
}

// Resolve finds the ruleset to use. An explicit name or path wins. Otherwise
// a project ruleset in the working directory or one of its parents is used,
// then the configured default, then the catalog's default ruleset.
func (a *App) Resolve(name string) (string, error) {
	if name != "" {
		return a.find(name)
	}

	wd, err := os.Getwd()
	if err == nil {
		project, err := api.FindConfigFile(wd, api.ProjectRulesetNames)
		if err != nil {
			slog.Debug("search project ruleset", slog.Any("err", err))
		}
		if project != "" {
			slog.Debug("using project ruleset", slog.String("path", project))

			return project, nil
		}
	}

	return a.find(a.Config.Rulesets.Default)
}

func (a *App) find(name string) (string, error) {
	path, err := a.Catalog.Find(name)
	if errors.Is(err, store.ErrNotFound) {
		if name == "" {
			name = store.DefaultRulesetName
		}

		return "", fmt.Errorf("%w; create it with `%s new %s`", err, cmdName, name)
	}
	if err != nil {
		return "", fmt.Errorf("find ruleset: %w", err)
	}

	return path, nil
}

// Open resolves and loads a ruleset into a new [store.Store].
func (a *App) Open(ctx context.Context, name string) (*store.Store, error) {
	path, err := a.Resolve(name)
	if err != nil {
		return nil, err
	}

	s := store.New()

	err = s.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return s, nil
}

// Save writes s back to its file, keeping a backup first when configured or
// when backup is set.
func (a *App) Save(ctx context.Context, s *store.Store, backup bool) error {
	if backup || a.Config.ShouldBackup() {
		backupPath, err := s.CreateBackup()
		if err != nil {
			return fmt.Errorf("backup ruleset: %w", err)
		}
		if backupPath != "" {
			slog.Info("created backup", slog.String("path", backupPath))
		}
	}

	err := s.Save(ctx, "")
	if err != nil {
		return fmt.Errorf("save ruleset: %w", err)
	}

	return nil
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	//nolint:gosec // G115: File descriptors fit in an int.
	return term.IsTerminal(int(f.Fd()))
}

func isInteractive(in io.Reader, out io.Writer) bool {
	return isTerminal(in) && isTerminal(out)
}
