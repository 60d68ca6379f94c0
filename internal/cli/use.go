package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/yaml"
)

func NewUseCmd(rootArgs *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:               "use NAME",
		Short:             "Set the default ruleset",
		Long:              "Set the default ruleset in the configuration file. Comments in the file are kept.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: rulesetCompletion(rootArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := useRuleset(rootArgs, args[0])
			if err != nil {
				return err
			}

			mustN(fmt.Fprintf(cmd.OutOrStdout(), "Default ruleset is now %q.\n", args[0]))

			return nil
		},
	}
}

func useRuleset(ra *RootArgs, name string) error {
	app, err := ra.loadApp()
	if err != nil {
		return err
	}

	_, err = app.find(name)
	if err != nil {
		return err
	}

	data, err := api.ReadFile(app.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		data = configs.Default()
	} else if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	rulesets := configs.RulesetsConfig{}
	if app.Config.Rulesets != nil {
		rulesets = *app.Config.Rulesets
	}

	rulesets.Default = name

	// Merging replaces the whole section, so the other fields are carried over.
	out, err := yaml.MergeRootFromValue(data, map[string]any{"rulesets": rulesets})
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	err = os.WriteFile(app.ConfigPath, out, 0o600)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
