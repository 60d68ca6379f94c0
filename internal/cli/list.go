package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/macropower/orgz/pkg/store"
)

type ListArgs struct {
	*RootArgs

	Paths bool
}

func NewListArgs(rootArgs *RootArgs) *ListArgs {
	return &ListArgs{
		RootArgs: rootArgs,
	}
}

func (la *ListArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&la.Paths, "paths", false, "Print only ruleset paths")
}

func NewListCmd(rootArgs *RootArgs) *cobra.Command {
	la := NewListArgs(rootArgs)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rulesets in the catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := la.loadApp()
			if err != nil {
				return err
			}

			return listRulesets(cmd.Context(), cmd.OutOrStdout(), app, la.Paths)
		},
	}

	la.AddFlags(cmd)

	return cmd
}

func listRulesets(ctx context.Context, w io.Writer, app *App, pathsOnly bool) error {
	paths, err := app.Catalog.List()
	if err != nil {
		return fmt.Errorf("list rulesets: %w", err)
	}

	if len(paths) == 0 {
		if !pathsOnly {
			mustN(fmt.Fprintf(w, "No rulesets in %s; create one with `%s new`.\n", app.Catalog.Dir(), cmdName))
		}

		return nil
	}

	// A missing default is not an error here.
	current, err := app.Resolve("")
	if err != nil {
		slog.Debug("resolve default ruleset", slog.Any("err", err))
	}

	for _, p := range paths {
		if pathsOnly {
			mustN(fmt.Fprintln(w, p))

			continue
		}

		marker := " "
		if sameFile(p, current) {
			marker = "*"
		}

		mustN(fmt.Fprintf(w, "%s %-20s %s\n", marker, rulesetName(p), describeRuleset(ctx, p)))
	}

	return nil
}

func describeRuleset(ctx context.Context, path string) string {
	s := store.New()

	err := s.Load(ctx, path)
	if err != nil {
		return ruleStyle.Render("invalid") + " " + pathStyle.Render(path)
	}

	return english.Plural(s.Len(), "rule", "rules") + " " + pathStyle.Render(path)
}

func rulesetName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	return errA == nil && errB == nil && absA == absB
}

// catalogNames returns the names of catalog rulesets for shell completion.
func catalogNames(app *App) ([]cobra.Completion, error) {
	paths, err := app.Catalog.List()
	if err != nil {
		return nil, fmt.Errorf("list rulesets: %w", err)
	}

	names := make([]cobra.Completion, 0, len(paths))
	for _, p := range paths {
		names = append(names, cobra.CompletionWithDesc(rulesetName(p), p))
	}

	return names, nil
}
