package opts

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyscao/tail-risk/grammar"
)

func resolveDefault(t *testing.T, inputs Inputs, rows int, opts ...Option) (*Config, error) {
	t.Helper()
	table := dailyFrame(t, "db", day0, rows)
	return NewEngine(opts...).Resolve(context.Background(), mustDefaultSchema(t), inputs, table)
}

func TestResolveIndividualDefaults(t *testing.T) {
	cfg, err := resolveDefault(t, nil, 40)
	require.NoError(t, err)
	labels := dailyLabels(day0, 40)

	approach, _ := cfg.Get(OptApproach)
	assert.Equal(t, ApproachArgs{Approach: ApproachStatic}, approach)

	tickers, _ := cfg.Get(OptTickers)
	assert.Equal(t, []string{"AAA", "BBB"}, tickers)
	assert.Equal(t, ProvenanceDefault, cfg.Provenance(OptTickers))

	dateI, _ := cfg.Get(OptDateI)
	dateF, _ := cfg.Get(OptDateF)
	assert.Equal(t, labels[0], dateI)
	assert.Equal(t, labels[39], dateF)

	xmin, _ := cfg.Get(OptXmin)
	assert.Equal(t, grammar.VariantClauset, xmin.(grammar.Threshold).Variant)
	require.NotNil(t, cfg.Threshold)

	right, _ := cfg.Get(OptRight)
	left, _ := cfg.Get(OptLeft)
	assert.Equal(t, true, right)
	assert.Equal(t, true, left)

	target, _ := cfg.Get(OptNormTarget)
	assert.Nil(t, target)

	nproc, _ := cfg.Get("nproc")
	assert.Equal(t, int64(runtime.NumCPU()), nproc)
	tau, _ := cfg.Get("tau")
	assert.Equal(t, int64(2), tau)
	iters, _ := cfg.Get("ks_iter")
	assert.Equal(t, int64(100), iters)

	assert.False(t, cfg.Visible("partition"))
	assert.True(t, cfg.Visible("ks_iter"))
	assert.True(t, cfg.Visible(OptNormTarget))
	assert.Empty(t, cfg.Warnings)
	assert.Empty(t, cfg.MonthlyBounds)
}

func TestResolveGroupModeSwapsDefaultTable(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{"analyze_group": nil}, 300)
	require.NoError(t, err)

	approach, _ := cfg.Get(OptApproach)
	args := approach.(ApproachArgs)
	assert.Equal(t, ApproachRolling, args.Approach)
	require.NotNil(t, args.Lookback)
	assert.Equal(t, int64(252), *args.Lookback)
	assert.Equal(t, 1, args.Step())

	dateI, _ := cfg.Get(OptDateI)
	assert.Equal(t, dailyLabels(day0, 300)[251], dateI)

	xmin, _ := cfg.Get(OptXmin)
	threshold := xmin.(grammar.Threshold)
	assert.Equal(t, grammar.VariantAverage, threshold.Variant)
	assert.Equal(t, int64(66), threshold.Window)
	assert.Equal(t, int64(0), threshold.Lag)

	partition, _ := cfg.Get("partition")
	assert.Equal(t, "country", partition)
	assert.True(t, cfg.Visible("partition"))
	assert.False(t, cfg.Visible(OptNormTarget))

	tau, _ := cfg.Get("tau")
	assert.Equal(t, int64(1), tau)
}

func TestResolveDoesNotMutateSchema(t *testing.T) {
	schema := mustDefaultSchema(t)
	table := dailyFrame(t, "db", day0, 300)
	engine := NewEngine()

	_, err := engine.Resolve(context.Background(), schema, Inputs{"analyze_group": nil}, table)
	require.NoError(t, err)

	cfg, err := engine.Resolve(context.Background(), schema, nil, table)
	require.NoError(t, err)
	approach, _ := cfg.Get(OptApproach)
	assert.Equal(t, ApproachStatic, approach.(ApproachArgs).Approach)

	d, ok := schema.Lookup(OptNormTarget)
	require.True(t, ok)
	assert.False(t, d.Hidden)
}

const groupFirstSchema = `
analyze_group:
  type: bool
  default: false
  is_eager: true
  callback: gset_group_opts
approach_args:
  cls: VnargsOption
  default: {static: null, rolling: [504, 1]}
  is_eager: true
  callback: validate_approach_args
`

const approachFirstSchema = `
approach_args:
  cls: VnargsOption
  default: {static: null, rolling: [504, 1]}
  is_eager: true
  callback: validate_approach_args
analyze_group:
  type: bool
  default: false
  is_eager: true
  callback: gset_group_opts
`

func TestEagerOptionsResolveInDeclarationOrder(t *testing.T) {
	groups := GroupDefaults{
		"analyze_group": true,
		OptApproach: grammar.ChoiceMap{
			{Key: ApproachRolling, Args: grammar.ArgsOf("252", "1")},
			{Key: ApproachStatic, Args: grammar.Null()},
		},
	}
	inputs := Inputs{"analyze_group": nil, OptApproach: {ApproachRolling}}
	table := dailyFrame(t, "db", day0, 600)

	tests := []struct {
		name     string
		schema   string
		lookback int64
	}{
		{name: "group toggle declared first", schema: groupFirstSchema, lookback: 252},
		{name: "approach declared first", schema: approachFirstSchema, lookback: 504},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewEngine(WithGroupDefaults(groups))
			cfg, err := engine.Resolve(context.Background(), mustSchema(t, tc.schema), inputs, table)
			require.NoError(t, err)
			approach, _ := cfg.Get(OptApproach)
			args := approach.(ApproachArgs)
			require.NotNil(t, args.Lookback)
			assert.Equal(t, tc.lookback, *args.Lookback)
		})
	}
}

func TestResolveApproachArgs(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{OptApproach: {"rolling", "5", "2"}}, 40)
	require.NoError(t, err)
	approach, _ := cfg.Get(OptApproach)
	args := approach.(ApproachArgs)
	assert.Equal(t, int64(5), *args.Lookback)
	assert.Equal(t, int64(2), *args.Frequency)
	assert.Equal(t, ProvenanceExplicit, cfg.Provenance(OptApproach))

	dateI, _ := cfg.Get(OptDateI)
	assert.Equal(t, dailyLabels(day0, 40)[4], dateI)
}

func TestResolveApproachArgsErrors(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		kind   error
	}{
		{name: "static with lookback", tokens: []string{"static", "5"}, kind: ErrAssertion},
		{name: "monthly with pair", tokens: []string{"monthly", "1", "1"}, kind: ErrAssertion},
		{name: "rolling with one value", tokens: []string{"rolling", "100"}, kind: ErrValue},
		{name: "rolling with three values", tokens: []string{"rolling", "1", "2", "3"}, kind: ErrValue},
		{name: "fractional lookback", tokens: []string{"rolling", "1.5", "1"}, kind: ErrType},
		{name: "zero lookback", tokens: []string{"rolling", "0", "1"}, kind: ErrRange},
		{name: "unknown approach", tokens: []string{"sideways"}, kind: ErrValue},
		{name: "lookback beyond dataset", tokens: []string{"rolling", "50", "1"}, kind: ErrRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveDefault(t, Inputs{OptApproach: tc.tokens}, 40)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestResolveApproachErrorNamesOption(t *testing.T) {
	_, err := resolveDefault(t, Inputs{OptApproach: {"static", "5"}}, 40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approach_args")
	assert.Equal(t, "AssertionError", KindName(err))
}

func TestResolveThresholdSelection(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{OptXmin: {"99%"}}, 40)
	require.NoError(t, err)
	require.NotNil(t, cfg.Threshold)
	assert.Equal(t, grammar.VariantPercentile, cfg.Threshold.Variant)
	assert.Equal(t, int64(99), cfg.Threshold.Value)

	_, err = resolveDefault(t, Inputs{OptXmin: {"66", "0"}}, 40)
	assert.True(t, errors.Is(err, ErrAssertion), "got %v", err)
}

func TestResolveLookbackOverride(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{"lb_override": {"30"}}, 40)
	require.NoError(t, err)
	lb, _ := cfg.Get("lb_override")
	assert.Nil(t, lb)
	require.Len(t, cfg.Warnings, 1)
	assert.Equal(t, "lb_override", cfg.Warnings[0].Option)
	assert.Equal(t, "'--lookback' N/A to STATIC approach; ignoring '--lb 30'", cfg.Warnings[0].Message)

	cfg, err = resolveDefault(t, Inputs{"lb_override": {"30"}, OptApproach: {"rolling", "5", "1"}}, 40)
	require.NoError(t, err)
	lb, _ = cfg.Get("lb_override")
	assert.Equal(t, int64(30), lb)
	assert.Empty(t, cfg.Warnings)
}

func TestResolveGroupOnlyOption(t *testing.T) {
	_, err := resolveDefault(t, Inputs{"partition": {"region"}}, 40)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssertion), "got %v", err)

	cfg, err := resolveDefault(t, Inputs{"analyze_group": nil, "partition": {"region"}}, 300)
	require.NoError(t, err)
	partition, _ := cfg.Get("partition")
	assert.Equal(t, "region", partition)
}

func TestResolveNormTarget(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{
		OptNormTarget:  {"false"},
		OptStandardize: nil,
		OptApproach:    {"rolling", "5", "1"},
	}, 40)
	require.NoError(t, err)
	target, _ := cfg.Get(OptNormTarget)
	assert.Nil(t, target)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0].Message, "--norm-tail")

	cfg, err = resolveDefault(t, Inputs{OptNormTarget: {"false"}, OptStandardize: nil}, 40)
	require.NoError(t, err)
	target, _ = cfg.Get(OptNormTarget)
	assert.Equal(t, false, target)
	assert.Empty(t, cfg.Warnings)
}

func TestResolveCoercion(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{"nproc": {"4"}, "tau": {"3"}, "ks_iter": {"250"}}, 40)
	require.NoError(t, err)
	nproc, _ := cfg.Get("nproc")
	tau, _ := cfg.Get("tau")
	iters, _ := cfg.Get("ks_iter")
	assert.Equal(t, int64(4), nproc)
	assert.Equal(t, int64(3), tau)
	assert.Equal(t, int64(250), iters)
}

func TestResolveInputErrors(t *testing.T) {
	tests := []struct {
		name   string
		inputs Inputs
		kind   error
		text   string
	}{
		{name: "unknown option", inputs: Inputs{"tickrs": {"AAA"}}, kind: ErrValue, text: `did you mean "tickers"`},
		{name: "bad boolean", inputs: Inputs{OptStandardize: {"maybe"}}, kind: ErrType},
		{name: "fractional int", inputs: Inputs{"ks_iter": {"2.5"}}, kind: ErrType},
		{name: "two values for a scalar", inputs: Inputs{OptDateI: {"01-01-2020", "02-01-2020"}}, kind: ErrValue},
		{name: "choice outside set", inputs: Inputs{"tau": {"9"}}, kind: ErrValue},
		{name: "empty variadic", inputs: Inputs{OptTickers: {}}, kind: ErrValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveDefault(t, tc.inputs, 40)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
			if tc.text != "" {
				assert.Contains(t, err.Error(), tc.text)
			}
		})
	}
}

func TestResolveWithoutDataset(t *testing.T) {
	_, err := NewEngine().Resolve(context.Background(), mustDefaultSchema(t), nil, nil)
	assert.True(t, errors.Is(err, ErrMissingResource), "got %v", err)
}

func TestResolveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Resolve(ctx, mustDefaultSchema(t), nil, dailyFrame(t, "db", day0, 10))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestResolveMissingAnalysisDate(t *testing.T) {
	_, err := resolveDefault(t, Inputs{OptDateI: {"15-03-2021"}}, 40)
	require.Error(t, err)
	missing, ok := AsMissingDates(err)
	require.True(t, ok)
	assert.Equal(t, []string{"15-03-2021"}, missing.Dates)
	assert.True(t, errors.Is(err, ErrValue))
	assert.True(t, errors.Is(err, ErrMissingResource))
}

func TestResolveAuxiliaryThresholdFile(t *testing.T) {
	labels := dailyLabels(day0, 20)
	table := frameOf(t, "db", labels)
	inputs := Inputs{
		"analyze_group": nil,
		OptApproach:     {"rolling", "5", "2"},
		OptXmin:         {"66", "0", "xmins.csv"},
	}

	gapped := append(append([]string(nil), labels[:6]...), labels[7:]...)
	engine := NewEngine(WithSource(mapSource{"xmins.csv": frameOf(t, "xmins", gapped)}))
	_, err := engine.Resolve(context.Background(), mustDefaultSchema(t), inputs, table)
	require.Error(t, err)
	missing, ok := AsMissingDates(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "xmins", missing.Table)
	assert.Equal(t, []string{labels[6]}, missing.Dates)

	engine = NewEngine(WithSource(mapSource{"xmins.csv": frameOf(t, "xmins", labels)}))
	cfg, err := engine.Resolve(context.Background(), mustDefaultSchema(t), inputs, table)
	require.NoError(t, err)
	assert.Equal(t, "xmins.csv", cfg.Threshold.File)
	assert.Equal(t, int64(66), cfg.Threshold.Window)
}

func TestResolveMonthlySnapsAnalysisWindow(t *testing.T) {
	start := time.Date(2020, time.January, 15, 0, 0, 0, 0, time.UTC)
	table := dailyFrame(t, "db", start, 27)
	cfg, err := NewEngine().Resolve(context.Background(), mustDefaultSchema(t), Inputs{
		OptApproach: {"monthly"},
		OptDateI:    {"20-01-2020"},
		OptDateF:    {"05-02-2020"},
	}, table)
	require.NoError(t, err)

	require.Len(t, cfg.MonthlyBounds, 2)
	assert.Equal(t, MonthBounds{Month: "01-2020", Prev: "15-01-2020", First: "15-01-2020", Last: "31-01-2020"}, cfg.MonthlyBounds[0])
	assert.Equal(t, MonthBounds{Month: "02-2020", Prev: "31-01-2020", First: "01-02-2020", Last: "10-02-2020"}, cfg.MonthlyBounds[1])

	dateI, _ := cfg.Get(OptDateI)
	dateF, _ := cfg.Get(OptDateF)
	assert.Equal(t, cfg.MonthlyBounds[0].First, dateI)
	assert.Equal(t, cfg.MonthlyBounds[1].Last, dateF)
	assert.Equal(t, ProvenanceExplicit, cfg.Provenance(OptDateI))
}

func TestResolveRecordsTraces(t *testing.T) {
	cfg, err := resolveDefault(t, Inputs{"tau": {"3"}}, 10)
	require.NoError(t, err)

	trace, ok := cfg.Trace(OptTickers)
	require.True(t, ok)
	final, ok := trace.Final()
	require.True(t, ok)
	assert.Equal(t, phaseDataset, final.Phase)
	assert.Equal(t, sourceInference, final.Source)

	trace, ok = cfg.Trace("tau")
	require.True(t, ok)
	require.Len(t, trace.Steps, 2)
	assert.Equal(t, sourceInput, trace.Steps[0].Source)
	assert.Equal(t, "3", trace.Steps[0].Value)
	assert.Equal(t, sourceCallback, trace.Steps[1].Source)
	assert.Equal(t, int64(3), trace.Steps[1].Value)
}

func TestDescribeReflectsEagerMode(t *testing.T) {
	schema := mustDefaultSchema(t)
	engine := NewEngine()

	descriptors, err := engine.Describe(context.Background(), schema, nil)
	require.NoError(t, err)
	byName := indexDescriptors(descriptors)
	assert.Equal(t, "[static|rolling|increasing|monthly]  [default: static]", byName[OptApproach].Metavar)
	assert.Contains(t, byName[OptApproach].Help, "[defaults: (504, 1)]")
	assert.False(t, byName[OptNormTarget].Hidden)
	assert.True(t, byName["partition"].Hidden)

	descriptors, err = engine.Describe(context.Background(), schema, Inputs{"analyze_group": nil})
	require.NoError(t, err)
	byName = indexDescriptors(descriptors)
	assert.Equal(t, "[rolling|static|increasing|monthly]  [default: rolling]", byName[OptApproach].Metavar)
	assert.Contains(t, byName[OptApproach].Help, "[defaults: (252, 1)]")
	assert.True(t, byName[OptNormTarget].Hidden)
	assert.False(t, byName["partition"].Hidden)
	assert.Contains(t, byName[OptXmin].Help, "* average")
	assert.False(t, byName["analyze_group"].ShowDefault)
}

func indexDescriptors(descriptors []*Descriptor) map[string]*Descriptor {
	out := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		out[d.Name] = d
	}
	return out
}
