package main

import (
	"github.com/spf13/cobra"

	opts "github.com/jyscao/tail-risk"
)

func newSchemaCommand(app *cli) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List the analysis options and their defaults",
		Long: `List the analysis options of the active schema with their defaults.
With --group the group-mode defaults are shown and individual-only options
are hidden.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := app.loadSchema()
			if err != nil {
				return err
			}
			groups, err := app.loadGroupDefaults()
			if err != nil {
				return err
			}
			inputs := opts.Inputs{}
			if group {
				for _, d := range schema.Descriptors() {
					if d.Callback == opts.CallbackGroupOpts {
						inputs[d.Name] = []string{}
					}
				}
			}
			engine := opts.NewEngine(opts.WithLogger(app.logger), opts.WithGroupDefaults(groups))
			descriptors, err := engine.Describe(cmd.Context(), schema, inputs)
			if err != nil {
				return err
			}
			return opts.WriteHelp(app.stdout, descriptors)
		},
	}
	cmd.Flags().BoolVarP(&group, "group", "G", false, "show the options of group analysis mode")
	return cmd
}
