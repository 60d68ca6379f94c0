package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/pkg/ruleset"
	"github.com/macropower/orgz/pkg/store"
)

type NewArgs struct {
	*RootArgs

	Force   bool
	Project bool
}

func NewNewArgs(rootArgs *RootArgs) *NewArgs {
	return &NewArgs{
		RootArgs: rootArgs,
	}
}

func (na *NewArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&na.Force, "force", "f", false, "Back up and replace an existing ruleset")
	cmd.Flags().BoolVar(&na.Project, "project", false,
		fmt.Sprintf("Create %s in the working directory instead of the catalog", api.ProjectRulesetNames[0]))
}

func NewNewCmd(rootArgs *RootArgs) *cobra.Command {
	na := NewNewArgs(rootArgs)

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a ruleset from the example",
		Long: `Create a ruleset from the example.

A plain name creates the ruleset in the catalog directory. A name containing a
path separator or a file extension is written to that path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			path, err := createRuleset(na, name)
			if err != nil {
				return err
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), path))

			return nil
		},
	}

	na.AddFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("project", "force")

	return cmd
}

func createRuleset(na *NewArgs, name string) (string, error) {
	if na.Project {
		if name != "" {
			return "", errors.New("--project does not take a name")
		}

		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}

		name = filepath.Join(wd, api.ProjectRulesetNames[0])
	}

	if isRulesetPath(name) {
		err := api.WriteDefaultFile(name, []byte(ruleset.Example()), na.Force, "ruleset")
		if err != nil {
			return "", fmt.Errorf("create ruleset: %w", err)
		}

		return name, nil
	}

	app, err := na.loadApp()
	if err != nil {
		return "", err
	}

	path, err := app.Catalog.Create(name)
	if errors.Is(err, store.ErrExists) && na.Force {
		path = app.Catalog.Path(name)

		err = api.WriteDefaultFile(path, []byte(ruleset.Example()), true, "ruleset")
	}
	if errors.Is(err, store.ErrExists) {
		return "", fmt.Errorf("%w; use --force to replace it", err)
	}
	if err != nil {
		return "", fmt.Errorf("create ruleset: %w", err)
	}

	return path, nil
}

func isRulesetPath(name string) bool {
	return strings.ContainsRune(name, filepath.Separator) ||
		strings.ContainsRune(name, '/') ||
		filepath.Ext(name) != ""
}
