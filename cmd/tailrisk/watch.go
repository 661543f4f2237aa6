package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jyscao/tail-risk/internal/watch"
)

func newWatchCommand(app *cli) *cobra.Command {
	var (
		flags    resolveFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [flags] DB_FILE [options...]",
		Short: "Re-resolve whenever the dataset or schema files change",
		Long: `Resolve once, then resolve again each time DB_FILE, the schema file or the
group defaults file changes. Failed runs are logged and watching continues.
Stop with Ctrl-C.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := app.newRunner(flags, args)
			if err != nil {
				return err
			}
			defer r.Close()
			if r.help {
				return r.describe(cmd.Context())
			}

			r.channel = cmd.Name()
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.watch(ctx, debounce)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultInterval, "quiet period before re-resolving")
	return cmd
}

func (r *runner) watch(ctx context.Context, debounce time.Duration) error {
	w, err := watch.New([]string{r.dbFile, r.app.schemaPath, r.app.groupDefaultsPath}, debounce, r.app.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := r.run(ctx); err != nil {
		r.app.logger.Error("resolution failed", "error", err)
	}
	return w.Watch(ctx, func() error {
		return r.run(ctx)
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
