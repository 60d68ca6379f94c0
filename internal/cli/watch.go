package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/organize"
	"github.com/macropower/orgz/pkg/watch"
)

type WatchArgs struct {
	*RootArgs

	Run        string
	Include    []string
	Exclude    []string
	Recursive  bool
	IgnoreDirs bool
	Real       bool
}

func NewWatchArgs(rootArgs *RootArgs) *WatchArgs {
	return &WatchArgs{
		RootArgs: rootArgs,
	}
}

func (wa *WatchArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&wa.Recursive, "recursive", "R", false, "Watch subdirectories, including new ones")
	cmd.Flags().StringSliceVar(&wa.Include, "include", nil, "Only report base names matching these patterns")
	cmd.Flags().StringSliceVar(&wa.Exclude, "exclude", nil, "Drop base names matching these patterns")
	cmd.Flags().BoolVar(&wa.IgnoreDirs, "ignore-dirs", false, "Drop events for directories")
	cmd.Flags().StringVar(&wa.Run, "run", "", "Run this ruleset after changes settle")
	cmd.Flags().BoolVar(&wa.Real, "real", false, "Apply changes when running a ruleset")

	must(cmd.RegisterFlagCompletionFunc("run", rulesetCompletion(wa.RootArgs)))
}

func NewWatchCmd(rootArgs *RootArgs) *cobra.Command {
	wa := NewWatchArgs(rootArgs)

	cmd := &cobra.Command{
		Use:   "watch DIR...",
		Short: "Report filesystem changes in directories",
		Long: `Report filesystem changes in directories until interrupted.

With --run, the ruleset runs once the changes settle. Runs simulate unless
--real is passed.`,
		Example: `  orgz watch ~/Downloads --include '*.pdf'
  orgz watch -R ~/Downloads --run downloads --real`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchDirs(cmd, wa, args)
		},
	}

	wa.AddFlags(cmd)

	return cmd
}

func watchDirs(cmd *cobra.Command, wa *WatchArgs, dirs []string) error {
	ctx := cmd.Context()

	app, err := wa.loadApp()
	if err != nil {
		return err
	}

	var r *runner
	if cmd.Flags().Changed("run") {
		r, err = wa.runner(cmd, app)
		if err != nil {
			return err
		}
	}

	svc := watch.NewService(app.Config.WatchOptions()...)

	for _, dir := range dirs {
		err = svc.Add(watch.Registration{
			Path:       dir,
			Include:    wa.Include,
			Exclude:    wa.Exclude,
			Recursive:  wa.Recursive,
			IgnoreDirs: wa.IgnoreDirs,
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	events := make(chan watch.Event, 64)
	svc.Subscribe(events)

	err = svc.Start()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	defer svc.Stop()

	slog.Info("watching", slog.Any("paths", svc.Paths()))

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt := <-events:
			switch e := evt.(type) {
			case watch.FileEvent:
				printFileEvent(cmd.OutOrStdout(), e)

				if r != nil {
					pending = time.After(r.debounce)
				}

			case watch.ErrorEvent:
				slog.Warn("watch error", slog.Any("err", e))
			}

		case <-pending:
			pending = nil

			_, _, err := r.once(ctx, func(ctx context.Context) error {
				return r.eng.Run(ctx, r.store.Ruleset(), r.opts)
			})
			if err != nil {
				slog.Warn("run ruleset", slog.Any("err", err))
			}
		}
	}
}

func (wa *WatchArgs) runner(cmd *cobra.Command, app *App) (*runner, error) {
	s, err := app.Open(cmd.Context(), wa.Run)
	if err != nil {
		return nil, err
	}

	opts := app.Config.EngineOptions()
	opts.ConfigPath = s.Path()

	if wa.Real {
		opts.Simulate = false
	}

	eng := engine.New(organize.New(
		organize.WithShellEnv(app.Config.Shell.Env, app.Config.Shell.EnvFrom),
	))

	r := &runner{
		eng:      eng,
		store:    s,
		opts:     opts,
		out:      cmd.OutOrStdout(),
		printer:  &entryPrinter{w: cmd.OutOrStdout(), minLevel: engine.LevelInfo},
		debounce: app.Config.DebounceDuration(),
		events:   make(chan engine.Event, 64),
	}
	eng.Subscribe(r.events)

	return r, nil
}

var eventLevels = map[watch.EventType]engine.Level{
	watch.EventCreated:  engine.LevelSuccess,
	watch.EventModified: engine.LevelInfo,
	watch.EventDeleted:  engine.LevelError,
	watch.EventMoved:    engine.LevelWarning,
}

func printFileEvent(w io.Writer, e watch.FileEvent) {
	style := levelStyles[eventLevels[e.Type]]

	path := e.Path
	if e.Type == watch.EventMoved {
		path = fmt.Sprintf("%s -> %s", e.Path, e.DestPath)
	}
	if e.IsDir {
		path += "/"
	}

	mustN(fmt.Fprintf(w, "%s %s %s\n",
		timeStyle.Render(time.Now().Format(time.TimeOnly)),
		style.Render(fmt.Sprintf("%-*s", levelWidth+1, e.Type)),
		path,
	))
}
