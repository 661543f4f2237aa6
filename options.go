package opts

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jyscao/tail-risk/dataset"
	"github.com/jyscao/tail-risk/grammar"
)

// DefaultDateLayout is the layout of dataset index labels (dd-mm-yyyy).
const DefaultDateLayout = "02-01-2006"

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger        *slog.Logger
	evaluator     Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	callbacks     *CallbackRegistry
	evalLogger    EvaluatorLogger
	activity      activityConfig
	metrics       *Metrics
	groupDefaults GroupDefaults
	source        grammar.Source
	dateLayout    string
	newRunID      func() string
	now           func() time.Time
}

func applyOptions(opts []Option) engineConfig {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.programCache == nil {
		cfg.programCache = NewProgramCache()
	}
	if cfg.functions == nil {
		cfg.functions = defaultFunctions()
	}
	if cfg.callbacks == nil {
		cfg.callbacks = DefaultCallbacks()
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = SlogEvaluatorLogger(cfg.logger)
	}
	if cfg.source == nil {
		cfg.source = dataset.FileSource{}
	}
	if cfg.dateLayout == "" {
		cfg.dateLayout = DefaultDateLayout
	}
	if cfg.newRunID == nil {
		cfg.newRunID = func() string { return uuid.NewString() }
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg
}

// WithLogger sets the structured logger used for phase and warning logs.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		cfg.logger = logger
	}
}

// WithEvaluator forces every applicability rule through e regardless of the
// engine a descriptor names.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *engineConfig) {
		cfg.evaluator = e
	}
}

// WithCallbackRegistry replaces the built-in callback set.
func WithCallbackRegistry(registry *CallbackRegistry) Option {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.callbacks = registry.Clone()
	}
}

// WithFunctionRegistry configures the functions exposed to applicability
// rules.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for applicability rules.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *engineConfig) {
		if cfg.functions == nil {
			cfg.functions = defaultFunctions()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithGroupDefaults replaces the embedded group-mode default table.
func WithGroupDefaults(defaults GroupDefaults) Option {
	return func(cfg *engineConfig) {
		cfg.groupDefaults = defaults.Clone()
	}
}

// WithSource sets how auxiliary dataset paths are resolved.
func WithSource(source grammar.Source) Option {
	return func(cfg *engineConfig) {
		cfg.source = source
	}
}

// WithDateLayout sets the time layout of dataset index labels.
func WithDateLayout(layout string) Option {
	return func(cfg *engineConfig) {
		cfg.dateLayout = layout
	}
}

// WithRunIDGenerator overrides how run identifiers are minted.
func WithRunIDGenerator(fn func() string) Option {
	return func(cfg *engineConfig) {
		cfg.newRunID = fn
	}
}

// WithClock overrides the time source used to stamp configurations.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) {
		cfg.now = now
	}
}
