package opts

import (
	"encoding/json"
)

// Trace captures how an option's value evolved across resolution phases.
type Trace struct {
	Option string      `json:"option"`
	Steps  []TraceStep `json:"steps"`
}

// TraceStep records one phase that produced or replaced the option's value.
type TraceStep struct {
	Phase      string     `json:"phase"`
	Source     string     `json:"source"`
	Value      any        `json:"value,omitempty"`
	Provenance Provenance `json:"provenance"`
	Note       string     `json:"note,omitempty"`
}

// Final returns the last recorded step.
func (t Trace) Final() (TraceStep, bool) {
	if len(t.Steps) == 0 {
		return TraceStep{}, false
	}
	return t.Steps[len(t.Steps)-1], true
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// Trace phases and sources.
const (
	phaseEager      = "eager"
	phaseOrdinary   = "ordinary"
	phaseDataset    = "dataset"
	phasePipeline   = "post-parse"
	sourceInput     = "input"
	sourceDefault   = "default"
	sourceGroup     = "group-defaults"
	sourceCallback  = "callback"
	sourceInference = "inference"
)

type tracer struct {
	traces map[string]*Trace
	order  []string
}

func newTracer() *tracer {
	return &tracer{traces: make(map[string]*Trace)}
}

func (t *tracer) record(option, phase, source string, v Value, note string) {
	if t == nil {
		return
	}
	trace, ok := t.traces[option]
	if !ok {
		trace = &Trace{Option: option}
		t.traces[option] = trace
		t.order = append(t.order, option)
	}
	trace.Steps = append(trace.Steps, TraceStep{
		Phase:      phase,
		Source:     source,
		Value:      cloneData(v.Data),
		Provenance: v.Provenance,
		Note:       note,
	})
}

func (t *tracer) snapshot() map[string]Trace {
	if t == nil {
		return nil
	}
	out := make(map[string]Trace, len(t.traces))
	for name, trace := range t.traces {
		out[name] = Trace{Option: trace.Option, Steps: append([]TraceStep(nil), trace.Steps...)}
	}
	return out
}
