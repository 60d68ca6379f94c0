package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/log"
	"github.com/macropower/orgz/pkg/organize"
	"github.com/macropower/orgz/pkg/store"
	"github.com/macropower/orgz/pkg/watch"
)

// ErrRunFailed is returned when a run ends failed or reports errors.
var ErrRunFailed = errors.New("run failed")

type RunArgs struct {
	*RootArgs

	WorkingDir   string
	Export       string
	ExportFormat string
	MinLevel     string
	Tags         []string
	SkipTags     []string
	Real         bool
	Yes          bool
	Watch        bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ra.Real, "real", false, "Apply changes instead of simulating them")
	cmd.Flags().BoolVarP(&ra.Yes, "yes", "y", false, "Do not ask before a real run")
	cmd.Flags().BoolVarP(&ra.Watch, "watch", "w", false, "Re-run whenever the ruleset file changes")
	cmd.Flags().StringSliceVar(&ra.Tags, "tags", nil, "Only run rules with one of these tags")
	cmd.Flags().StringSliceVar(&ra.SkipTags, "skip-tags", nil, "Skip rules with any of these tags")
	cmd.Flags().StringVar(&ra.WorkingDir, "working-dir", "", "Directory relative locations are resolved against")
	cmd.Flags().StringVar(&ra.Export, "export", "", "Write the run log to this file")
	cmd.Flags().StringVar(&ra.ExportFormat, "export-format", "",
		fmt.Sprintf("Export format, one of: %s (default: from the file extension)", engine.AllFormats))
	cmd.Flags().StringVar(&ra.MinLevel, "min-level", string(engine.LevelInfo),
		fmt.Sprintf("Lowest entry level to print, one of: %s", engine.AllLevels))

	must(cmd.MarkFlagDirname("working-dir"))
	must(cmd.RegisterFlagCompletionFunc("export-format",
		cobra.FixedCompletions(formatNames(), cobra.ShellCompDirectiveNoFileComp),
	))
}

func NewRunCmd(rootArgs *RootArgs) *cobra.Command {
	ra := NewRunArgs(rootArgs)

	cmd := &cobra.Command{
		Use:               "run [ruleset]",
		Short:             "Run a ruleset, simulating by default",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: rulesetCompletion(rootArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			return run(cmd, ra, name)
		},
	}

	ra.AddFlags(cmd)

	return cmd
}

func run(cmd *cobra.Command, ra *RunArgs, name string) error {
	ctx := cmd.Context()

	app, err := ra.loadApp()
	if err != nil {
		return err
	}

	minLevel, err := engine.ParseLevel(ra.MinLevel)
	if err != nil {
		return fmt.Errorf("--min-level: %w", err)
	}

	var format engine.Format
	if ra.ExportFormat != "" {
		format, err = engine.ParseFormat(ra.ExportFormat)
		if err != nil {
			return fmt.Errorf("--export-format: %w", err)
		}
	}

	s, err := app.Open(ctx, name)
	if err != nil {
		return err
	}

	opts := app.Config.EngineOptions()
	opts.ConfigPath = s.Path()

	flags := cmd.Flags()
	if flags.Changed("tags") {
		opts.Tags = ra.Tags
	}
	if flags.Changed("skip-tags") {
		opts.SkipTags = ra.SkipTags
	}
	if ra.WorkingDir != "" {
		opts.WorkingDir = ra.WorkingDir
	}
	if ra.Real {
		opts.Simulate = false
	}

	if !opts.Simulate && app.Config.ShouldConfirm() && !ra.Yes {
		err = confirmRealRun(ctx, cmd, s)
		if err != nil {
			return err
		}
	}

	eng := engine.New(organize.New(
		organize.WithShellEnv(app.Config.Shell.Env, app.Config.Shell.EnvFrom),
	))

	r := &runner{
		eng:      eng,
		store:    s,
		opts:     opts,
		out:      cmd.OutOrStdout(),
		printer:  &entryPrinter{w: cmd.OutOrStdout(), minLevel: minLevel},
		export:   ra.Export,
		format:   format,
		debounce: app.Config.DebounceDuration(),
		events:   make(chan engine.Event, 64),
	}
	eng.Subscribe(r.events)

	// Diagnostics are held back while entries stream to the terminal.
	if isTerminal(cmd.OutOrStdout()) {
		logBuf := log.NewBacklog(log.DefaultBacklogSize)

		logHandler, err := log.NewHandler(logBuf, ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		prev := slog.Default()
		slog.SetDefault(slog.New(logHandler))

		defer func() {
			slog.SetDefault(prev)
			flushLogs(cmd.ErrOrStderr(), logBuf)
		}()
	}

	status, res, err := r.once(ctx, func(ctx context.Context) error {
		return eng.Run(ctx, s.Ruleset(), opts)
	})
	if err != nil {
		return err
	}

	if ra.Watch {
		return r.watch(ctx, app.Config.WatchOptions())
	}

	return runError(status, res)
}

func runError(status engine.Status, res engine.Result) error {
	switch {
	case status == engine.StatusFailed:
		return fmt.Errorf("%w: %s", ErrRunFailed, status)
	case res.ErrorCount > 0:
		return fmt.Errorf("%w: %d errors", ErrRunFailed, res.ErrorCount)
	}

	return nil
}

// runner streams engine runs to the terminal.
type runner struct {
	eng      *engine.Engine
	store    *store.Store
	printer  *entryPrinter
	out      io.Writer
	events   chan engine.Event
	export   string
	format   engine.Format
	opts     engine.Options
	debounce time.Duration
}

// once starts a run with start and streams it until it completes.
func (r *runner) once(ctx context.Context, start func(ctx context.Context) error) (engine.Status, engine.Result, error) {
	err := start(ctx)
	if errors.Is(err, engine.ErrAlreadyRunning) {
		return 0, engine.Result{}, err //nolint:wrapcheck // Sentinel error.
	}
	if err != nil {
		// Parse failures are still reported as a failed run.
		slog.Debug("run did not start", slog.Any("err", err))
	}

	for evt := range r.events {
		switch e := evt.(type) {
		case engine.EventLog:
			r.printer.Print(e.Entry)

		case engine.EventStatus:
			slog.Debug("engine status",
				slog.String("status", e.Status.String()),
				slog.String("run_id", e.RunID.String()),
			)

		case engine.EventComplete:
			status := r.eng.Status()
			printSummary(r.out, status, e.Result, r.opts.Simulate)

			if r.export != "" {
				format := r.format
				if format == "" {
					format = engine.FormatFromPath(r.export)
				}

				err := r.eng.ExportLogs(r.export, format)
				if err != nil {
					return status, e.Result, fmt.Errorf("export logs: %w", err)
				}

				slog.Info("exported run log", slog.String("path", r.export))
			}

			return status, e.Result, nil
		}
	}

	return 0, engine.Result{}, errors.New("engine events closed")
}

// watch re-runs the ruleset whenever its file changes on disk, until ctx is
// done. Writes that leave the content unchanged are ignored.
func (r *runner) watch(ctx context.Context, opts []watch.Opt) error {
	cw, err := watch.NewConfigWatcher(opts...)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	defer cw.Close()

	changes := make(chan watch.ConfigChangedEvent, 8)
	cw.Subscribe(changes)

	err = cw.WatchFile(r.store.Path())
	if err != nil {
		return fmt.Errorf("watch ruleset: %w", err)
	}

	mustN(fmt.Fprintf(r.out, "Watching %s for changes, press Ctrl+C to stop.\n", r.store.Path()))

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-changes:
			pending = time.After(r.debounce)

		case <-pending:
			pending = nil

			err := r.reload(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (r *runner) reload(ctx context.Context) error {
	data, err := api.ReadFile(r.store.Path())
	if err != nil {
		slog.Warn("read changed ruleset", slog.Any("err", err))

		return nil
	}

	text := string(data)
	if text == r.store.Content() {
		slog.Debug("ruleset unchanged", slog.String("path", r.store.Path()))

		return nil
	}

	diff := udiff.Unified("before", "after", r.store.Content(), text)
	printDiff(r.out, diff)

	err = r.store.SetContent(text)
	if err != nil {
		slog.Debug("changed ruleset is invalid", slog.Any("err", err))
	}

	_, _, err = r.once(ctx, func(ctx context.Context) error {
		return r.eng.RunFromText(ctx, text, r.opts)
	})

	return err
}

func confirmRealRun(ctx context.Context, cmd *cobra.Command, s *store.Store) error {
	if !isInteractive(cmd.InOrStdin(), cmd.OutOrStdout()) {
		return nil
	}

	confirmed := false

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Apply %d rules from %s?", s.Len(), s.Filename())).
				Description("Files will be moved, copied, renamed or deleted.").
				Affirmative("Apply").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithShowHelp(false)

	err := form.RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("run confirm prompt: %w", err)
	}

	if !confirmed {
		return errAborted
	}

	return nil
}

func flushLogs(w io.Writer, buf *log.Backlog) {
	if buf.Len() == 0 {
		return
	}

	slog.Debug("flush logs to console",
		slog.Int("count", buf.Len()),
		slog.Int("max", buf.Cap()),
		slog.Int("dropped", buf.Dropped()),
	)

	_, err := buf.WriteTo(w)
	if err != nil {
		panic(err)
	}
}

func formatNames() []string {
	names := make([]string, 0, len(engine.AllFormats))
	for _, f := range engine.AllFormats {
		names = append(names, string(f))
	}

	return names
}

func rulesetCompletion(ra *RootArgs) cobra.CompletionFunc {
	return func(_ *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		app, err := ra.loadApp()
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}

		names, err := catalogNames(app)
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}

		return names, cobra.ShellCompDirectiveDefault
	}
}
