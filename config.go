package opts

import (
	"time"

	"github.com/jyscao/tail-risk/grammar"
)

// Config is the outcome of a successful resolution run. It is never
// returned partially built.
type Config struct {
	RunID         string
	Schema        string
	Order         []string
	Values        Values
	Warnings      []Warning
	MonthlyBounds []MonthBounds
	Threshold     *grammar.Threshold
	Hidden        map[string]bool
	Traces        map[string]Trace
	ResolvedAt    time.Time
}

// Get returns the resolved data for name.
func (c *Config) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.Values[name]
	return v.Data, ok
}

// Provenance returns the provenance recorded for name.
func (c *Config) Provenance(name string) Provenance {
	if c == nil {
		return ProvenanceDefault
	}
	return c.Values[name].Provenance
}

// Visible reports whether name is shown for the resolved mode.
func (c *Config) Visible(name string) bool {
	if c == nil {
		return false
	}
	_, declared := c.Values[name]
	return declared && !c.Hidden[name]
}

// Trace returns the resolution history of name.
func (c *Config) Trace(name string) (Trace, bool) {
	if c == nil {
		return Trace{}, false
	}
	t, ok := c.Traces[name]
	return t, ok
}

// OptionSnapshot is the serialisable view of one resolved option.
type OptionSnapshot struct {
	Name       string     `json:"name" yaml:"name"`
	Value      any        `json:"value" yaml:"value"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	Hidden     bool       `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

// Snapshot is the serialisable view of a Config, used for output and
// persistence.
type Snapshot struct {
	RunID         string           `json:"run_id" yaml:"run_id"`
	Schema        string           `json:"schema" yaml:"schema"`
	ResolvedAt    time.Time        `json:"resolved_at" yaml:"resolved_at"`
	Options       []OptionSnapshot `json:"options" yaml:"options"`
	Warnings      []Warning        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	MonthlyBounds []MonthBounds    `json:"monthly_bounds,omitempty" yaml:"monthly_bounds,omitempty"`
}

// Snapshot flattens c into declaration order with plain values.
func (c *Config) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	out := Snapshot{
		RunID:         c.RunID,
		Schema:        c.Schema,
		ResolvedAt:    c.ResolvedAt,
		Warnings:      append([]Warning(nil), c.Warnings...),
		MonthlyBounds: append([]MonthBounds(nil), c.MonthlyBounds...),
	}
	for _, name := range c.Order {
		v := c.Values[name]
		out.Options = append(out.Options, OptionSnapshot{
			Name:       name,
			Value:      snapshotValue(v.Data),
			Provenance: v.Provenance,
			Hidden:     c.Hidden[name],
		})
	}
	return out
}

// Lookup returns the snapshot of name.
func (s Snapshot) Lookup(name string) (OptionSnapshot, bool) {
	for _, opt := range s.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return OptionSnapshot{}, false
}

func snapshotValue(data any) any {
	switch v := data.(type) {
	case grammar.Selection:
		return []any{v.Choice, v.Args.Native()}
	case grammar.ChoiceMap:
		return v.Keys()
	default:
		return cloneData(data)
	}
}
