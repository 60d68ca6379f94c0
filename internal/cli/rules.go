package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/ruleset"
	"github.com/macropower/orgz/pkg/store"
	"github.com/macropower/orgz/pkg/yaml"
)

// ErrRuleNotFound is returned when a rule reference matches no rule.
var ErrRuleNotFound = errors.New("rule not found")

type RulesArgs struct {
	*RootArgs

	Ruleset string
	Backup  bool
}

func NewRulesArgs(rootArgs *RootArgs) *RulesArgs {
	return &RulesArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RulesArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&ra.Ruleset, "ruleset", "r", "", "Ruleset name or path")
	cmd.PersistentFlags().BoolVar(&ra.Backup, "backup", false, "Keep a timestamped copy before saving")

	must(cmd.RegisterFlagCompletionFunc("ruleset", rulesetCompletion(ra.RootArgs)))
}

func NewRulesCmd(rootArgs *RootArgs) *cobra.Command {
	ra := NewRulesArgs(rootArgs)

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit the rules of a ruleset",
		Long: `Inspect and edit the rules of a ruleset.

Rules are referenced by their position, starting at 1, or by name.`,
		Args: cobra.NoArgs,
	}

	ra.AddFlags(cmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List rules",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, s, err := ra.open(cmd.Context())
				if err != nil {
					return err
				}

				printRules(cmd.OutOrStdout(), s.Rules())

				return nil
			},
		},
		&cobra.Command{
			Use:               "show RULE",
			Short:             "Print a rule as YAML",
			Args:              cobra.ExactArgs(1),
			ValidArgsFunction: ra.ruleCompletion,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, s, err := ra.open(cmd.Context())
				if err != nil {
					return err
				}

				i, err := findRule(s, args[0])
				if err != nil {
					return err
				}

				r, err := s.Rule(i)
				if err != nil {
					return fmt.Errorf("get rule: %w", err)
				}

				text, err := ruleset.Marshal(ruleset.New(r))
				if err != nil {
					return fmt.Errorf("marshal rule: %w", err)
				}

				return printYAML(cmd.OutOrStdout(), text)
			},
		},
		NewRulesAddCmd(ra),
		ra.editCmd("delete RULE", "Delete a rule", []string{"rm"}, 1,
			func(s *store.Store, idx []int) error {
				return s.DeleteRule(idx[0])
			}),
		ra.editCmd("move RULE POSITION", "Move a rule to a new position", []string{"mv"}, 2,
			func(s *store.Store, idx []int) error {
				return s.MoveRule(idx[0], idx[1])
			}),
		ra.editCmd("duplicate RULE", "Insert a copy of a rule after it", []string{"dup"}, 1,
			func(s *store.Store, idx []int) error {
				return s.DuplicateRule(idx[0])
			}),
		ra.editCmd("enable RULE", "Enable a rule", nil, 1, setEnabled(true)),
		ra.editCmd("disable RULE", "Disable a rule", nil, 1, setEnabled(false)),
	)

	return cmd
}

func (ra *RulesArgs) open(ctx context.Context) (*App, *store.Store, error) {
	app, err := ra.loadApp()
	if err != nil {
		return nil, nil, err
	}

	s, err := app.Open(ctx, ra.Ruleset)
	if err != nil {
		return nil, nil, err
	}

	return app, s, nil
}

// editCmd builds a command that changes the rules referenced by its
// arguments and saves the ruleset. The last argument of "move" is a
// position rather than a rule reference.
func (ra *RulesArgs) editCmd(
	use, short string,
	aliases []string,
	nargs int,
	edit func(s *store.Store, idx []int) error,
) *cobra.Command {
	return &cobra.Command{
		Use:               use,
		Short:             short,
		Aliases:           aliases,
		Args:              cobra.ExactArgs(nargs),
		ValidArgsFunction: ra.ruleCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, s, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}

			idx := make([]int, 0, len(args))

			for i, arg := range args {
				var n int
				if i == 0 {
					n, err = findRule(s, arg)
				} else {
					n, err = parsePosition(arg, s.Len())
				}
				if err != nil {
					return err
				}

				idx = append(idx, n)
			}

			err = edit(s, idx)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}

			err = app.Save(cmd.Context(), s, ra.Backup)
			if err != nil {
				return err
			}

			printRules(cmd.OutOrStdout(), s.Rules())

			return nil
		},
	}
}

func setEnabled(enabled bool) func(s *store.Store, idx []int) error {
	return func(s *store.Store, idx []int) error {
		r, err := s.Rule(idx[0])
		if err != nil {
			return err //nolint:wrapcheck // Wrapped by the caller.
		}

		r.SetEnabled(enabled)

		return s.UpdateRule(idx[0], r)
	}
}

type RulesAddArgs struct {
	*RulesArgs

	Name       string
	Targets    string
	FilterMode string
	Locations  []string
	Filters    []string
	Actions    []string
	Tags       []string
	Position   int
	Disabled   bool
	Subfolders bool
}

func (aa *RulesAddArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&aa.Name, "name", "", "Rule name")
	cmd.Flags().StringVar(&aa.Targets, "targets", string(ruleset.TargetFiles),
		fmt.Sprintf("What the rule applies to, one of: %s", ruleset.AllTargets))
	cmd.Flags().StringVar(&aa.FilterMode, "filter-mode", string(ruleset.FilterModeAll),
		fmt.Sprintf("How filters combine, one of: %s", ruleset.AllFilterModes))
	cmd.Flags().StringArrayVarP(&aa.Locations, "location", "l", nil, "Directory to scan (repeatable)")
	cmd.Flags().StringArrayVarP(&aa.Filters, "filter", "f", nil,
		"Filter as YAML, e.g. 'extension: [pdf]' (repeatable)")
	cmd.Flags().StringArrayVarP(&aa.Actions, "action", "a", nil,
		"Action as YAML, e.g. 'move: ~/Documents' (repeatable)")
	cmd.Flags().StringSliceVarP(&aa.Tags, "tag", "t", nil, "Rule tag (repeatable)")
	cmd.Flags().IntVar(&aa.Position, "position", 0, "Insert at this position instead of appending")
	cmd.Flags().BoolVar(&aa.Disabled, "disabled", false, "Add the rule disabled")
	cmd.Flags().BoolVar(&aa.Subfolders, "subfolders", false, "Recurse into subdirectories of each location")

	must(cmd.MarkFlagDirname("location"))
}

func NewRulesAddCmd(ra *RulesArgs) *cobra.Command {
	aa := &RulesAddArgs{RulesArgs: ra}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  orgz rules add --name "Sort PDFs" -l ~/Downloads \
    -f 'extension: pdf' -a 'move: ~/Documents/PDFs'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := aa.rule()
			if err != nil {
				return err
			}

			app, s, err := ra.open(cmd.Context())
			if err != nil {
				return err
			}

			if aa.Position > 0 {
				err = s.InsertRule(aa.Position-1, r)
			} else {
				err = s.AddRule(r)
			}
			if err != nil {
				return fmt.Errorf("add rule: %w", err)
			}

			err = app.Save(cmd.Context(), s, ra.Backup)
			if err != nil {
				return err
			}

			printRules(cmd.OutOrStdout(), s.Rules())

			return nil
		},
	}

	aa.AddFlags(cmd)

	return cmd
}

func (aa *RulesAddArgs) rule() (*ruleset.Rule, error) {
	r := ruleset.NewRule(aa.Name)
	r.Targets = ruleset.Targets(aa.Targets)
	r.FilterMode = ruleset.FilterMode(aa.FilterMode)
	r.Locations = ruleset.Locations(aa.Locations...)
	r.Tags = aa.Tags
	r.Subfolders = aa.Subfolders
	r.SetEnabled(!aa.Disabled)

	var err error

	r.Filters, err = parseSpecs("--filter", aa.Filters)
	if err != nil {
		return nil, err
	}

	r.Actions, err = parseSpecs("--action", aa.Actions)
	if err != nil {
		return nil, err
	}

	if len(r.Actions) == 0 {
		r.Actions = []ruleset.Spec{ruleset.DefaultAction()}
	}

	r.EnsureDefaults()

	err = r.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}

	return r, nil
}

// parseSpecs reads each value as a single YAML filter or action.
func parseSpecs(flag string, values []string) ([]ruleset.Spec, error) {
	specs := make([]ruleset.Spec, 0, len(values))

	for _, v := range values {
		var spec ruleset.Spec

		err := yaml.Unmarshal([]byte(v), &spec)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", flag, v, err)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// findRule resolves a 1-based position or an exact rule name to an index.
// Unknown names suggest the closest match.
func findRule(s *store.Store, ref string) (int, error) {
	rules := s.Rules()

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(rules) {
			return 0, fmt.Errorf("%w: position %d, have %d rules", ErrRuleNotFound, n, len(rules))
		}

		return n - 1, nil
	}

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.DisplayName(i)
		if strings.EqualFold(names[i], ref) {
			return i, nil
		}
	}

	matches := fuzzy.Find(ref, names)
	if len(matches) > 0 {
		return 0, fmt.Errorf("%w: %q, did you mean %q?", ErrRuleNotFound, ref, matches[0].Str)
	}

	return 0, fmt.Errorf("%w: %q", ErrRuleNotFound, ref)
}

func parsePosition(arg string, count int) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("%w: position %q, have %d rules", store.ErrIndexOutOfRange, arg, count)
	}

	return n - 1, nil
}

func printRules(w io.Writer, rules []*ruleset.Rule) {
	if len(rules) == 0 {
		mustN(fmt.Fprintln(w, "No rules."))

		return
	}

	for i, r := range rules {
		state := levelStyles[engine.LevelSuccess].Render("on ")
		if !r.IsEnabled() {
			state = levelStyles[engine.LevelDebug].Render("off")
		}

		line := fmt.Sprintf("%3d %s %s", i+1, state, ruleStyle.Render(r.DisplayName(i)))
		if len(r.Tags) > 0 {
			line += " " + pathStyle.Render("#"+strings.Join(r.Tags, " #"))
		}

		mustN(fmt.Fprintln(w, line))
		mustN(fmt.Fprintln(w, "      "+pathStyle.Render(ruleset.Summary(r))))
	}
}

func (ra *RulesArgs) ruleCompletion(
	cmd *cobra.Command,
	args []string,
	_ string,
) ([]cobra.Completion, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	_, s, err := ra.open(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	names := make([]cobra.Completion, 0, s.Len())
	for i, r := range s.Rules() {
		names = append(names, cobra.CompletionWithDesc(r.DisplayName(i), ruleset.Summary(r)))
	}

	return names, cobra.ShellCompDirectiveNoFileComp
}
