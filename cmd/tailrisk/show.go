package main

import (
	"fmt"

	"github.com/spf13/cobra"

	opts "github.com/jyscao/tail-risk"
	"github.com/jyscao/tail-risk/pkg/state"
)

func newShowCommand(app *cli) *cobra.Command {
	var (
		runID      string
		schemaName string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recorded resolution runs",
		Long: `Without --run, list the runs recorded in the state database for a schema,
newest first. With --run, print the recorded configuration of that run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.stateDB == "" {
				return fmt.Errorf("no state database given (use --state-db or %s)", envStateDB)
			}
			store, err := state.OpenSQLiteStore[opts.Snapshot](app.stateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID == "" {
				runs, err := store.Runs(cmd.Context(), schemaName)
				if err != nil {
					return err
				}
				for _, id := range runs {
					fmt.Fprintln(app.stdout, id)
				}
				return nil
			}

			snapshot, meta, ok, err := store.Load(cmd.Context(), state.Ref{Schema: schemaName, RunID: runID})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run %q of schema %q not found in %s", runID, schemaName, app.stateDB)
			}
			app.logger.Debug("loaded run", "run_id", runID, "etag", meta.ETag, "updated_at", meta.UpdatedAt)
			return encodeSnapshot(app.stdout, format, snapshot)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id to print")
	cmd.Flags().StringVar(&schemaName, "schema-name", "attributes", "schema the run was resolved against")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}
