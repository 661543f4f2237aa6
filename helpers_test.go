package opts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jyscao/tail-risk/dataset"
)

var day0 = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// dailyLabels returns n consecutive calendar days starting at start.
func dailyLabels(start time.Time, n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = start.AddDate(0, 0, i).Format(DefaultDateLayout)
	}
	return labels
}

func dailyFrame(t *testing.T, name string, start time.Time, n int, columns ...string) *dataset.Frame {
	t.Helper()
	if len(columns) == 0 {
		columns = []string{"AAA", "BBB"}
	}
	frame, err := dataset.NewFrame(name, dailyLabels(start, n), columns, nil)
	require.NoError(t, err)
	return frame
}

func frameOf(t *testing.T, name string, labels []string) *dataset.Frame {
	t.Helper()
	frame, err := dataset.NewFrame(name, labels, []string{"AAA"}, nil)
	require.NoError(t, err)
	return frame
}

type mapSource map[string]dataset.Table

func (s mapSource) Exists(path string) bool {
	_, ok := s[path]
	return ok
}

func (s mapSource) Open(path string) (dataset.Table, error) {
	return s[path], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func mustSchema(t *testing.T, doc string) *Schema {
	t.Helper()
	schema, err := LoadSchema(strings.NewReader(doc), WithSchemaName("test"))
	require.NoError(t, err)
	return schema
}

func mustDefaultSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := DefaultSchema()
	require.NoError(t, err)
	return schema
}

// passContext builds a fresh run over a 40-day frame for driving pipeline
// passes directly.
func passContext(t *testing.T, grouped bool) *ResolutionContext {
	t.Helper()
	engine := NewEngine(WithLogger(discardLogger()), WithRunIDGenerator(sequentialIDs()))
	rc, err := engine.newRun(context.Background(), mustDefaultSchema(t), nil, dailyFrame(t, "db", day0, 40))
	require.NoError(t, err)
	rc.Grouped = grouped
	return rc
}

func explicit(data any) Value { return Value{Data: data, Provenance: ProvenanceExplicit} }

func byDefault(data any) Value { return Value{Data: data, Provenance: ProvenanceDefault} }
