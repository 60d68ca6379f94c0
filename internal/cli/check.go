package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/pkg/store"
)

func NewCheckCmd(rootArgs *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:               "check [ruleset]",
		Short:             "Validate a ruleset without running it",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: rulesetCompletion(rootArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			return check(cmd, rootArgs, name)
		},
	}
}

func check(cmd *cobra.Command, ra *RootArgs, name string) error {
	app, err := ra.loadApp()
	if err != nil {
		return err
	}

	path, err := app.Resolve(name)
	if err != nil {
		return err
	}

	data, err := api.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("read ruleset: %w", err)
	}

	s := store.New()

	err = s.LoadFromText(string(data), path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	enabled := 0
	for _, r := range s.Rules() {
		if r.IsEnabled() {
			enabled++
		}
	}

	mustN(fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %s (%d enabled)\n",
		path, english.Plural(s.Len(), "rule", "rules"), enabled))

	return nil
}
