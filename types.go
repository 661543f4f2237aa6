package opts

import (
	"fmt"
	"strings"
	"time"

	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/layering"
)

// Provenance records whether a value was typed by the user or fell back to a
// declared or inferred default. It is fixed once an option resolves.
type Provenance int

const (
	ProvenanceDefault Provenance = iota
	ProvenanceExplicit
)

func (p Provenance) String() string {
	if p == ProvenanceExplicit {
		return "EXPLICIT"
	}
	return "DEFAULT"
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provenance) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "DEFAULT", "":
		*p = ProvenanceDefault
	case "EXPLICIT":
		*p = ProvenanceExplicit
	default:
		return fmt.Errorf("opts: unknown provenance %q", text)
	}
	return nil
}

// GrammarKind is the fixed set of option grammars.
type GrammarKind int

const (
	// GrammarScalar takes a single value (or one per repetition when Multiple).
	GrammarScalar GrammarKind = iota
	// GrammarChoiceMap takes a choice key plus trailing values, with per-choice
	// trailing defaults.
	GrammarChoiceMap
	// GrammarVariadic takes any number of raw tokens.
	GrammarVariadic
)

func (k GrammarKind) String() string {
	switch k {
	case GrammarChoiceMap:
		return "choice-map"
	case GrammarVariadic:
		return "variadic"
	default:
		return "scalar"
	}
}

// ValueType names the closed set of scalar coercions.
type ValueType string

const (
	TypeString ValueType = "str"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypePath   ValueType = "path"
	TypeChoice ValueType = "choice"
)

// TypeSpec is a resolved type attribute. Choices is set for TypeChoice.
type TypeSpec struct {
	Name    ValueType
	Choices []string
}

// VnargsClass is the only recognised option class; it marks a variable-arity
// option.
const VnargsClass = "VnargsOption"

// Descriptor is one declared option. The engine clones descriptors at the
// start of every run, so eager callbacks may rewrite defaults and visibility
// without touching the Schema.
type Descriptor struct {
	Name        string
	Aliases     []string
	Default     any
	Kind        GrammarKind
	Type        TypeSpec
	Callback    string
	Class       string
	Eager       bool
	Hidden      bool
	Multiple    bool
	Help        string
	ShowDefault bool
	Metavar     string
	Applicable  string
	Engine      string
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Aliases = append([]string(nil), d.Aliases...)
	out.Type.Choices = append([]string(nil), d.Type.Choices...)
	out.Default = cloneData(d.Default)
	return &out
}

// Choices returns the declared choice map of a choice-map option.
func (d *Descriptor) Choices() (grammar.ChoiceMap, bool) {
	m, ok := d.Default.(grammar.ChoiceMap)
	return m, ok
}

// IsFlag reports whether the option takes no value on the command line.
func (d *Descriptor) IsFlag() bool {
	return d.Kind == GrammarScalar && d.Type.Name == TypeBool && !d.Multiple
}

// Flags returns the command-line spellings of the option. A "--on/--off"
// declaration contributes both spellings.
func (d *Descriptor) Flags() []string {
	var flags []string
	for _, alias := range d.Aliases {
		for _, part := range strings.Split(alias, "/") {
			if part = strings.TrimSpace(part); part != "" {
				flags = append(flags, part)
			}
		}
	}
	if len(flags) == 0 {
		flags = append(flags, "--"+strings.ReplaceAll(d.Name, "_", "-"))
	}
	return flags
}

// NegatedFlags returns the "off" spellings of on/off flag pairs.
func (d *Descriptor) NegatedFlags() []string {
	var out []string
	for _, alias := range d.Aliases {
		parts := strings.Split(alias, "/")
		if len(parts) == 2 {
			out = append(out, strings.TrimSpace(parts[1]))
		}
	}
	return out
}

// Value is a resolved option value tagged with its provenance.
type Value struct {
	Data       any
	Provenance Provenance
}

// Explicit reports whether the user supplied the value.
func (v Value) Explicit() bool { return v.Provenance == ProvenanceExplicit }

// Values maps option names to resolved values.
type Values map[string]Value

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for name, value := range v {
		out[name] = Value{Data: cloneData(value.Data), Provenance: value.Provenance}
	}
	return out
}

// Data returns the resolved data for name, nil when absent.
func (v Values) Data(name string) any {
	return v[name].Data
}

// Bool reports whether name resolved to true.
func (v Values) Bool(name string) bool {
	b, _ := v[name].Data.(bool)
	return b
}

// String returns name's data when it is a string.
func (v Values) String(name string) (string, bool) {
	s, ok := v[name].Data.(string)
	return s, ok
}

// Inputs holds the raw tokens the user typed per option name. Presence of a
// key marks the option explicit.
type Inputs map[string][]string

// Clone returns a deep copy of in.
func (in Inputs) Clone() Inputs {
	if in == nil {
		return nil
	}
	out := make(Inputs, len(in))
	for name, tokens := range in {
		out[name] = append([]string(nil), tokens...)
	}
	return out
}

// Warning is advisory text produced when an explicit value is dropped.
type Warning struct {
	Option  string `json:"option" yaml:"option"`
	Message string `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	if w.Option == "" {
		return w.Message
	}
	return w.Option + ": " + w.Message
}

// Analysis approaches.
const (
	ApproachStatic     = "static"
	ApproachMonthly    = "monthly"
	ApproachRolling    = "rolling"
	ApproachIncreasing = "increasing"
)

// IsFixedWindow reports whether approach analyses one fixed date window.
func IsFixedWindow(approach string) bool {
	return approach == ApproachStatic || approach == ApproachMonthly
}

// IsRolling reports whether approach moves its window through time.
func IsRolling(approach string) bool {
	return approach == ApproachRolling || approach == ApproachIncreasing
}

// ApproachArgs is the resolved value of the approach option.
type ApproachArgs struct {
	Approach  string `json:"approach" yaml:"approach"`
	Lookback  *int64 `json:"lookback" yaml:"lookback"`
	Frequency *int64 `json:"frequency" yaml:"frequency"`
}

// Step returns the sampling stride, 1 when no frequency applies.
func (a ApproachArgs) Step() int {
	if a.Frequency == nil || *a.Frequency < 1 {
		return 1
	}
	return int(*a.Frequency)
}

// MonthBounds records the characteristic dates of one calendar month: the
// date before the month's first analysed date, that first date, and the last
// analysed date.
type MonthBounds struct {
	Month string `json:"month" yaml:"month"`
	Prev  string `json:"prev" yaml:"prev"`
	First string `json:"first" yaml:"first"`
	Last  string `json:"last" yaml:"last"`
}

// Bounds returns the three-slot tuple (Prev, First, Last).
func (m MonthBounds) Bounds() [3]string {
	return [3]string{m.Prev, m.First, m.Last}
}

// RuleContext carries inputs needed when evaluating an applicability rule.
type RuleContext struct {
	Values   map[string]any
	Option   string
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	if ctx.Values == nil {
		ctx.Values = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) label() string {
	if ctx.Option != "" {
		return ctx.Option
	}
	return "unknown"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	variables []string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithRuleVariables declares the identifiers a rule may reference. Engines
// that type-check at compile time reject any other identifier.
func WithRuleVariables(names ...string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.variables = append(cfg.variables, names...)
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	var cfg compileConfig
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}

// ruleBuiltins are bound in every rule environment and cannot be shadowed
// by an option of the same name.
var ruleBuiltins = []string{"now", "option", "args", "metadata"}

func isRuleBuiltin(name string) bool {
	for _, builtin := range ruleBuiltins {
		if name == builtin {
			return true
		}
	}
	return false
}

// bindings returns every identifier visible to a rule.
func (ctx RuleContext) bindings() map[string]any {
	env := make(map[string]any, len(ctx.Values)+len(ruleBuiltins))
	for key, value := range ctx.Values {
		env[key] = value
	}
	env["now"] = ctx.timestamp()
	env["option"] = ctx.Option
	env["args"] = ctx.Args
	env["metadata"] = ctx.Metadata
	return env
}

func cloneData(v any) any {
	return layering.Clone(v)
}
