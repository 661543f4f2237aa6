package opts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// registry stores named entries case-insensitively and rejects duplicates.
// Lookups fold case; names reports each entry as it was registered.
type registry[F any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]registryEntry[F]
}

type registryEntry[F any] struct {
	name string
	fn   F
}

func (r *registry[F]) label() string {
	if r.kind == "" {
		return "entry"
	}
	return r.kind
}

func (r *registry[F]) set(name string, fn F) error {
	if name == "" {
		return fmt.Errorf("opts: %s name must not be empty", r.label())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]registryEntry[F])
	}
	key := strings.ToLower(name)
	if existing, exists := r.entries[key]; exists {
		return fmt.Errorf("opts: %s %q already registered as %q", r.label(), name, existing.name)
	}
	r.entries[key] = registryEntry[F]{name: name, fn: fn}
	return nil
}

func (r *registry[F]) get(name string) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[strings.ToLower(name)]
	return entry.fn, ok
}

func (r *registry[F]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.name)
	}
	sort.Strings(names)
	return names
}

func (r *registry[F]) copyInto(dst *registry[F]) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dst.entries = make(map[string]registryEntry[F], len(r.entries))
	for key, entry := range r.entries {
		dst.entries[key] = entry
	}
}

// Function represents a callable registered against evaluators.
type Function func(args ...any) (any, error)

// FunctionRegistry stores custom rule functions keyed by name.
type FunctionRegistry struct {
	reg registry[Function]
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{reg: registry[Function]{kind: "function"}}
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("opts: function %q is nil", name)
	}
	return r.reg.set(name, fn)
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	clone := NewFunctionRegistry()
	r.reg.copyInto(&clone.reg)
	return clone
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("opts: function registry is nil")
	}
	fn, ok := r.reg.get(name)
	if !ok || fn == nil {
		return nil, fmt.Errorf("opts: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names, as registered, sorted
// alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	return r.reg.names()
}

// CallbackRegistry maps schema callback names to implementations.
type CallbackRegistry struct {
	reg registry[Callback]
}

// NewCallbackRegistry constructs an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{reg: registry[Callback]{kind: "callback"}}
}

// Register stores cb under name guarding against duplicates.
func (r *CallbackRegistry) Register(name string, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("opts: callback %q is nil", name)
	}
	return r.reg.set(name, cb)
}

// Lookup returns the callback registered for name.
func (r *CallbackRegistry) Lookup(name string) (Callback, bool) {
	if r == nil {
		return nil, false
	}
	return r.reg.get(name)
}

// Clone returns a shallow copy of the registry.
func (r *CallbackRegistry) Clone() *CallbackRegistry {
	if r == nil {
		return nil
	}
	clone := NewCallbackRegistry()
	r.reg.copyInto(&clone.reg)
	return clone
}

// Names returns registered callback names sorted alphabetically.
func (r *CallbackRegistry) Names() []string {
	if r == nil {
		return nil
	}
	return r.reg.names()
}

// defaultFunctions exposes approach predicates to applicability rules.
func defaultFunctions() *FunctionRegistry {
	fns := NewFunctionRegistry()
	_ = fns.Register("rolling", approachPredicate(IsRolling))
	_ = fns.Register("fixed_window", approachPredicate(IsFixedWindow))
	return fns
}

func approachPredicate(pred func(string) bool) Function {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("opts: expected 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case string:
			return pred(v), nil
		case map[string]any:
			name, _ := v["approach"].(string)
			return pred(name), nil
		case nil:
			return false, nil
		default:
			return nil, fmt.Errorf("opts: expected approach name, got %T", args[0])
		}
	}
}
