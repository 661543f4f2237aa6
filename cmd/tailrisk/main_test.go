package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	opts "github.com/jyscao/tail-risk"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// writeDataset writes a daily returns file with the given number of rows.
func writeDataset(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Date,AAA,BBB\n")
	day := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%s,%.3f,%.3f\n", day.AddDate(0, 0, i).Format(opts.DefaultDateLayout), 0.01*float64(i%7), -0.02*float64(i%5))
	}
	path := filepath.Join(t.TempDir(), "db.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestResolvePrintsYAML(t *testing.T) {
	db := writeDataset(t, 40)
	stdout, _, err := execute(t, "resolve", db, "-T", "AAA", "--std")
	require.NoError(t, err)

	var snapshot opts.Snapshot
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &snapshot))
	assert.Equal(t, "attributes", snapshot.Schema)
	assert.NotEmpty(t, snapshot.RunID)

	tickers, ok := snapshot.Lookup("tickers")
	require.True(t, ok)
	assert.Equal(t, []any{"AAA"}, tickers.Value)
	assert.Equal(t, opts.ProvenanceExplicit, tickers.Provenance)

	dateI, ok := snapshot.Lookup("date_i")
	require.True(t, ok)
	assert.Equal(t, "01-01-2020", dateI.Value)
	assert.Equal(t, opts.ProvenanceDefault, dateI.Provenance)
}

func TestResolveRecordsAndShow(t *testing.T) {
	db := writeDataset(t, 40)
	stateDB := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv(envStateDB, stateDB)

	stdout, _, err := execute(t, "resolve", "--format", "json", db, "-a", "static")
	require.NoError(t, err)
	var snapshot opts.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snapshot))

	listed, _, err := execute(t, "show")
	require.NoError(t, err)
	assert.Equal(t, snapshot.RunID, strings.TrimSpace(listed))

	shown, _, err := execute(t, "show", "--run", snapshot.RunID, "--format", "json")
	require.NoError(t, err)
	var loaded opts.Snapshot
	require.NoError(t, json.Unmarshal([]byte(shown), &loaded))
	assert.Equal(t, snapshot.RunID, loaded.RunID)
	approach, ok := loaded.Lookup("approach_args")
	require.True(t, ok)
	assert.Equal(t, opts.ProvenanceExplicit, approach.Provenance)

	_, _, err = execute(t, "show", "--run", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestShowRequiresStateDB(t *testing.T) {
	t.Setenv(envStateDB, "")
	_, _, err := execute(t, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--state-db")
}

func TestResolveWritesMetricsAndActivity(t *testing.T) {
	db := writeDataset(t, 40)
	dir := t.TempDir()
	metrics := filepath.Join(dir, "tailrisk.prom")
	activityLog := filepath.Join(dir, "activity.jsonl")

	_, _, err := execute(t, "resolve", "--metrics-file", metrics, "--activity-log", activityLog, "-o", filepath.Join(dir, "out.yaml"), db)
	require.NoError(t, err)

	raw, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `tailrisk_resolutions_total{outcome="ok"} 1`)

	events, err := os.ReadFile(activityLog)
	require.NoError(t, err)
	assert.Contains(t, string(events), "attributes")
	assert.Contains(t, string(events), `"resolve"`)

	out, err := os.ReadFile(filepath.Join(dir, "out.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "run_id:")
}

func TestResolveFailureIsCountedInMetrics(t *testing.T) {
	db := writeDataset(t, 40)
	metrics := filepath.Join(t.TempDir(), "tailrisk.prom")

	_, _, err := execute(t, "resolve", "--metrics-file", metrics, db, "-a", "rolling", "5", "1", "2")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "opts:"), "got %v", err)

	raw, readErr := os.ReadFile(metrics)
	require.NoError(t, readErr)
	assert.NotContains(t, string(raw), `outcome="ok"`)
}

func TestResolveHelpFollowsMode(t *testing.T) {
	db := writeDataset(t, 40)

	individual, _, err := execute(t, "resolve", db, "--help")
	require.NoError(t, err)
	assert.Contains(t, individual, "--norm-series")
	assert.NotContains(t, individual, "--partition")

	group, _, err := execute(t, "resolve", db, "-G", "-h")
	require.NoError(t, err)
	assert.Contains(t, group, "--partition")
}

func TestSchemaCommand(t *testing.T) {
	individual, _, err := execute(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, individual, "Options:")
	assert.NotContains(t, individual, "--partition")

	group, _, err := execute(t, "schema", "--group")
	require.NoError(t, err)
	assert.Contains(t, group, "--partition")
}

func TestResolveErrors(t *testing.T) {
	db := writeDataset(t, 40)
	parquet := filepath.Join(t.TempDir(), "db.parquet")
	require.NoError(t, os.WriteFile(parquet, []byte("PAR1"), 0o644))
	tests := []struct {
		name string
		args []string
		text string
	}{
		{name: "unknown option", args: []string{"resolve", db, "--tikers", "AAA"}, text: "did you mean"},
		{name: "bad format", args: []string{"resolve", "--format", "toml", db}, text: "invalid format"},
		{name: "bad log level", args: []string{"--log-level", "loud", "resolve", db}, text: "invalid log level"},
		{name: "bad log format", args: []string{"--log-format", "xml", "resolve", db}, text: "invalid log format"},
		{name: "missing dataset", args: []string{"resolve", filepath.Join(t.TempDir(), "nope.csv")}, text: "cannot find file"},
		{name: "unsupported dataset", args: []string{"resolve", parquet}, text: "supported"},
		{name: "missing schema file", args: []string{"--schema", filepath.Join(t.TempDir(), "s.yaml"), "resolve", db}, text: "cannot find schema file"},
		{name: "stray positional", args: []string{"resolve", db, "--", "extra"}, text: "unexpected arguments"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.text)
		})
	}
}

func TestLogLevelFromEnvironment(t *testing.T) {
	db := writeDataset(t, 40)
	t.Setenv(envLogLevel, "debug")

	_, stderr, err := execute(t, "resolve", db)
	require.NoError(t, err)
	assert.Contains(t, stderr, "level=DEBUG")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tailrisk "+Version)
}
