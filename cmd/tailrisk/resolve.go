package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	opts "github.com/jyscao/tail-risk"
	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/internal/argv"
	"github.com/jyscao/tail-risk/pkg/activity"
	"github.com/jyscao/tail-risk/pkg/activity/usersink"
	"github.com/jyscao/tail-risk/pkg/state"
)

type resolveFlags struct {
	format      string
	output      string
	activityLog string
	metricsFile string
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "yaml", "output format: yaml or json")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "write the resolved configuration to this file")
	cmd.Flags().StringVar(&f.activityLog, "activity-log", "", "append resolution events as JSON lines to this file")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write resolution metrics in Prometheus text format to this file")
	// Everything after DB_FILE belongs to the analysis options.
	cmd.Flags().SetInterspersed(false)
}

func newResolveCommand(app *cli) *cobra.Command {
	var flags resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve [flags] DB_FILE [options...]",
		Short: "Resolve analysis options against a dataset",
		Long: `Resolve the analysis options against DB_FILE (.csv, .txt or .xlsx) and print
the resolved configuration.

Flags before DB_FILE configure tailrisk itself; everything after it is an
analysis option. Pass --help after DB_FILE to list the analysis options for
the selected mode.

Examples:
  tailrisk resolve db.xlsx -T AAA BBB --std
  tailrisk resolve --format json db.xlsx -G -a rolling 252 1
  tailrisk resolve db.xlsx -G --help`,
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
			return r.run(cmd.Context())
		},
	}
	flags.register(cmd)
	return cmd
}

// runner resolves one set of arguments, possibly many times.
type runner struct {
	app    *cli
	flags  resolveFlags
	dbFile string
	args   []string
	help   bool

	metrics  *opts.Metrics
	registry *prometheus.Registry
	hooks    activity.Hooks
	channel  string
	recorder *state.Recorder
	closers  []io.Closer
}

func (app *cli) newRunner(flags resolveFlags, args []string) (*runner, error) {
	switch strings.ToLower(flags.format) {
	case "yaml", "yml", "json":
	default:
		return nil, fmt.Errorf("invalid format %q (want yaml or json)", flags.format)
	}

	r := &runner{app: app, flags: flags, dbFile: args[0]}
	for _, arg := range args[1:] {
		if arg == "-h" || arg == "--help" {
			r.help = true
			continue
		}
		r.args = append(r.args, arg)
	}
	if r.help {
		return r, nil
	}

	r.registry = prometheus.NewRegistry()
	r.metrics = opts.NewMetrics(r.registry)

	if flags.activityLog != "" {
		sink, file, err := usersink.OpenFileSink(flags.activityLog)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, file)
		r.hooks = append(r.hooks, usersink.Hook{Sink: sink})
	}

	if app.stateDB != "" {
		store, err := state.OpenSQLiteStore[opts.Snapshot](app.stateDB)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, store)
		r.recorder = &state.Recorder{Store: store}
	}
	return r, nil
}

// Close releases the activity log and state database.
func (r *runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// prepare reloads the schema and group defaults and tokenizes the options,
// so edits to either file are picked up between runs.
func (r *runner) prepare() (*opts.Engine, *opts.Schema, opts.Inputs, error) {
	schema, err := r.app.loadSchema()
	if err != nil {
		return nil, nil, nil, err
	}
	groups, err := r.app.loadGroupDefaults()
	if err != nil {
		return nil, nil, nil, err
	}
	parsed, err := argv.NewParser(schema.Descriptors(), r.app.logger).Parse(r.args)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(parsed.Args) > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(parsed.Args, " "))
	}

	engine := opts.NewEngine(
		opts.WithLogger(r.app.logger),
		opts.WithGroupDefaults(groups),
		opts.WithSource(dataset.FileSource{Dir: filepath.Dir(r.dbFile)}),
		opts.WithMetrics(r.metrics),
		opts.WithActivityHooks(r.hooks),
		opts.WithActivityChannel(r.channel),
		opts.WithActivityActor(hostActor()),
	)
	return engine, schema, parsed.Inputs, nil
}

// hostActor names the machine as a stable UUID so activity from one host
// groups together.
func hostActor() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
}

// run resolves once and writes, records and exports the outcome.
func (r *runner) run(ctx context.Context) error {
	engine, schema, inputs, err := r.prepare()
	if err != nil {
		return err
	}
	frame, err := dataset.ReadFile(r.dbFile)
	if err != nil {
		return err
	}

	cfg, err := engine.Resolve(ctx, schema, inputs, frame)
	if exportErr := r.exportMetrics(); exportErr != nil {
		r.app.logger.Error("metrics export failed", "path", r.flags.metricsFile, "error", exportErr)
	}
	if err != nil {
		return err
	}

	if err := r.write(cfg.Snapshot()); err != nil {
		return err
	}
	if r.recorder != nil {
		meta, err := r.recorder.Record(ctx, cfg, map[string]string{"db_file": r.dbFile})
		if err != nil {
			return err
		}
		r.app.logger.Info("run recorded", "run_id", cfg.RunID, "etag", meta.ETag, "db", r.app.stateDB)
	}
	return nil
}

// describe prints the analysis options visible for the selected mode.
func (r *runner) describe(ctx context.Context) error {
	engine, schema, inputs, err := r.prepare()
	if err != nil {
		return err
	}
	descriptors, err := engine.Describe(ctx, schema, inputs)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.app.stdout, "Usage: tailrisk resolve DB_FILE [options...]\n\n")
	return opts.WriteHelp(r.app.stdout, descriptors)
}

func (r *runner) write(snapshot opts.Snapshot) error {
	w := r.app.stdout
	if r.flags.output != "" && r.flags.output != "-" {
		file, err := os.Create(r.flags.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		w = file
	}
	return encodeSnapshot(w, r.flags.format, snapshot)
}

func (r *runner) exportMetrics() error {
	if r.flags.metricsFile == "" || r.registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(r.flags.metricsFile, r.registry)
}

func encodeSnapshot(w io.Writer, format string, snapshot opts.Snapshot) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snapshot); err != nil {
			return err
		}
		return enc.Close()
	}
}
