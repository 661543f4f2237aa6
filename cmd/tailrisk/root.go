package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	opts "github.com/jyscao/tail-risk"
)

// Environment variables consulted when the matching flag is not set.
const (
	envSchema        = "TAILRISK_SCHEMA"
	envGroupDefaults = "TAILRISK_GROUP_DEFAULTS"
	envLogLevel      = "TAILRISK_LOG_LEVEL"
	envStateDB       = "TAILRISK_STATE_DB"
)

// cli holds the global flags and the streams commands write to.
type cli struct {
	schemaPath        string
	groupDefaultsPath string
	stateDB           string
	logLevel          string
	logFormat         string

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// Execute runs the root command.
func Execute() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	app := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "tailrisk",
		Short: "Resolve tail-risk analysis options",
		Long: `Tailrisk turns the command-line options of a tail-risk analysis into a
fully resolved configuration.

Options are resolved in phases: eager options first (group mode swaps in its
own defaults), then the rest, then defaults inferred from the dataset, and
finally a validation pipeline that may drop or rewrite values with a warning.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&app.schemaPath, "schema", "", "option schema YAML (default: embedded, env "+envSchema+")")
	pf.StringVar(&app.groupDefaultsPath, "group-defaults", "", "group-mode defaults YAML (default: embedded, env "+envGroupDefaults+")")
	pf.StringVar(&app.stateDB, "state-db", "", "SQLite database of resolved runs (env "+envStateDB+")")
	pf.StringVar(&app.logLevel, "log-level", "warn", "log level: debug, info, warn, error (env "+envLogLevel+")")
	pf.StringVar(&app.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newResolveCommand(app),
		newWatchCommand(app),
		newSchemaCommand(app),
		newShowCommand(app),
		newVersionCommand(app),
	)
	return root
}

// setup applies environment overrides and builds the logger.
func (app *cli) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	for flag, env := range map[string]string{
		"schema":         envSchema,
		"group-defaults": envGroupDefaults,
		"state-db":       envStateDB,
		"log-level":      envLogLevel,
	} {
		if flags.Changed(flag) {
			continue
		}
		if value, ok := os.LookupEnv(env); ok && value != "" {
			if err := flags.Set(flag, value); err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}

	logger, err := newLogger(app.stderr, app.logLevel, app.logFormat)
	if err != nil {
		return err
	}
	app.logger = logger
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}

func (app *cli) loadSchema() (*opts.Schema, error) {
	if app.schemaPath == "" {
		return opts.DefaultSchema()
	}
	return opts.LoadSchemaFile(app.schemaPath)
}

func (app *cli) loadGroupDefaults() (opts.GroupDefaults, error) {
	if app.groupDefaultsPath == "" {
		return opts.DefaultGroupDefaults()
	}
	return opts.LoadGroupDefaultsFile(app.groupDefaultsPath)
}
