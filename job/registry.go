package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased job handler. It receives the job being
// executed and returns the result payload, or an error describing the
// failure. The typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, j *Job) (json.RawMessage, error)

// Registry maps job names to type-erased handler functions.
// It is safe for concurrent use. Re-registration of a name silently
// replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register associates a job name with a handler, overwriting any previous
// registration for that name.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the job payload into T
// before calling the typed handler, and JSON-marshals the returned value.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, j *Job) (json.RawMessage, error) {
		var t T
		if len(j.Data) > 0 {
			if err := json.Unmarshal(j.Data, &t); err != nil {
				return nil, fmt.Errorf("unmarshal payload for job %q: %w", def.Name, err)
			}
		}
		out, err := def.Handler(ctx, t)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		data, marshalErr := json.Marshal(out)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal result for job %q: %w", def.Name, marshalErr)
		}
		return data, nil
	}

	r.Register(def.Name, handler)
}

// Resolve returns the handler for the given job name.
// Returns false if no handler is registered.
func (r *Registry) Resolve(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
