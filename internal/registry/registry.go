// Package registry is the in-process stand-in for dotted-path dynamic
// import: a statically compiled target cannot import-by-string at
// runtime, so user code registers named callables at process start
// and the Work's `function` field becomes a lookup key.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// Result is the triple a registered function returns: results merge
// recursively into the Work's existing results, products/plots are
// appended to the Work's artifact lists.
type Result struct {
	Results  map[string]interface{}
	Products []string
	Plots    []string
}

// ArgSource chooses how a registered function receives its input.
type ArgSource string

const (
	// ArgKwargs passes the merged parameter map as keyword arguments.
	ArgKwargs ArgSource = "kwargs"
	// ArgWork passes the full Work object.
	ArgWork ArgSource = "work"
)

// KwargsFunc is a callable invoked with the merged parameter map.
type KwargsFunc func(ctx context.Context, params map[string]interface{}) (Result, error)

// WorkFunc is a callable invoked with the full Work payload (as a
// generic map, since internal/registry must not import internal/work
// to avoid a dependency cycle with callers that register functions
// before the work package is wired in).
type WorkFunc func(ctx context.Context, w map[string]interface{}) (Result, error)

// Entry is one registered callable plus its CLI-wrapper defaults.
type Entry struct {
	ArgSource ArgSource
	Kwargs    KwargsFunc
	Work      WorkFunc
	// Defaults mirrors a CLI-wrapper command's declared default
	// parameter table, introspected via an optional defaults()
	// method on the original user function.
	Defaults map[string]interface{}
}

// Registry is a concurrency-safe map of dotted name to Entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the callable registered under name.
func (r *Registry) Register(name string, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry
}

// Lookup returns the Entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Invoke merges entry.Defaults with params (explicit params win;
// a params value of nil deletes the key rather than passing a null),
// then dispatches to the Kwargs or Work callable per entry.ArgSource.
func (r *Registry) Invoke(ctx context.Context, name string, params, workObject map[string]interface{}) (Result, error) {
	entry, ok := r.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("registry: no function registered for %q", name)
	}

	merged := MergeParameters(entry.Defaults, params)

	switch entry.ArgSource {
	case ArgWork:
		if entry.Work == nil {
			return Result{}, fmt.Errorf("registry: %q is registered with arg_source=work but has no Work callable", name)
		}
		withParams := make(map[string]interface{}, len(workObject)+1)
		for k, v := range workObject {
			withParams[k] = v
		}
		withParams["parameters"] = merged
		return entry.Work(ctx, withParams)
	default:
		if entry.Kwargs == nil {
			return Result{}, fmt.Errorf("registry: %q has no kwargs callable", name)
		}
		return entry.Kwargs(ctx, merged)
	}
}

// MergeParameters applies the CLI-wrapper merge rule: explicit >
// defaults > nil-drop. A key present in params with a nil value is
// omitted from the result even if defaults declared it.
func MergeParameters(defaults, params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(params))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range params {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
