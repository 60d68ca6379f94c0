package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/orgz/api/v1beta1/configs"
	"github.com/macropower/orgz/pkg/log"
	"github.com/macropower/orgz/pkg/version"
	"github.com/macropower/orgz/pkg/yaml"
)

const (
	cmdName = "orgz"
	cmdDesc = `Rule-based file organizer.`

	cmdExamples = `  # Preview what the default ruleset would do:
  orgz run

  # Apply a named ruleset from the catalog:
  orgz run downloads --real

  # Re-run whenever the ruleset file changes:
  orgz run downloads --watch

  # Create a ruleset and check it:
  orgz new downloads && orgz check downloads

  # Manage rules without opening an editor:
  orgz rules list -r downloads
  orgz rules disable -r downloads "Sort PDFs"`
)

type RootArgs struct {
	LogLevel      string
	LogFormat     string
	ConfigPath    string
	TraceEndpoint string
	WriteConfig   bool
	ShowConfig    bool

	shutdown log.ShutdownFunc
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.ConfigPath, "config", "", "Path to the orgz configuration file")
	cmd.PersistentFlags().
		StringVar(&ra.TraceEndpoint, "trace-endpoint", "", "OTLP/gRPC endpoint to export traces to")

	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration file and exit")
	cmd.Flags().BoolVar(&ra.ShowConfig, "show-config", false, "Print the active configuration and exit")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:                cmdName,
		Short:              cmdDesc,
		Example:            cmdExamples,
		Version:            version.GetVersion(),
		SilenceUsage:       true,
		Args:               cobra.NoArgs,
		PersistentPreRunE:  args.setup,
		PersistentPostRunE: args.teardown,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case args.WriteConfig:
				return writeConfig(args)
			case args.ShowConfig:
				return showConfig(cmd, args)
			default:
				return cmd.Help()
			}
		},
	}

	args.AddFlags(cmd)

	cmd.AddCommand(
		NewRunCmd(args),
		NewCheckCmd(args),
		NewNewCmd(args),
		NewListCmd(args),
		NewUseCmd(args),
		NewRulesCmd(args),
		NewWatchCmd(args),
	)

	bindEnvVars(cmd)

	return cmd
}

func (ra *RootArgs) setup(cmd *cobra.Command, _ []string) error {
	logHandler, err := log.NewHandler(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
	if err != nil {
		return fmt.Errorf("create log handler: %w", err)
	}

	slog.SetDefault(slog.New(logHandler))

	shutdown, err := log.SetupTracing(cmd.Context(), ra.TraceEndpoint, cmdName, version.GetVersion())
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	ra.shutdown = shutdown

	return nil
}

func (ra *RootArgs) teardown(cmd *cobra.Command, _ []string) error {
	if ra.shutdown == nil {
		return nil
	}

	// The command context may already be cancelled by a signal.
	err := ra.shutdown(context.WithoutCancel(cmd.Context()))
	if err != nil {
		return fmt.Errorf("shutdown tracing: %w", err)
	}

	return nil
}

func writeConfig(ra *RootArgs) error {
	path := ra.configPath()

	err := configs.WriteDefault(path, false)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	return nil
}

func showConfig(cmd *cobra.Command, ra *RootArgs) error {
	app, err := ra.loadApp()
	if err != nil {
		return err
	}

	slog.Info("active configuration", slog.String("path", app.ConfigPath))

	b, err := app.Config.MarshalYAML()
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	return printYAML(cmd.OutOrStdout(), string(b))
}

// printYAML writes src highlighted when the output is a terminal.
func printYAML(w io.Writer, src string) error {
	if !isTerminal(w) {
		mustN(fmt.Fprint(w, src))

		return nil
	}

	out, err := yaml.NewHighlighter().Highlight(src)
	if err != nil {
		mustN(fmt.Fprint(w, src))

		return fmt.Errorf("highlight yaml: %w", err)
	}

	mustN(fmt.Fprint(w, out))

	return nil
}

var errAborted = errors.New("aborted")
