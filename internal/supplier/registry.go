package supplier

import "strings"

// Registry resolves supplier codes (and their aliases) to adapters. It is
// constructed once at startup and injected into the orchestrator; there is no
// global registry state.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to its code and any aliases. Codes are
// case-insensitive.
func (r *Registry) Register(adapter Adapter, aliases ...string) {
	r.adapters[normalize(adapter.Code())] = adapter
	for _, alias := range aliases {
		r.adapters[normalize(alias)] = adapter
	}
}

// Resolve returns the adapter for a supplier code. A miss is a retryable
// AdapterError, distinct from an adapter that rejects the booking.
func (r *Registry) Resolve(code string) (Adapter, error) {
	adapter, ok := r.adapters[normalize(code)]
	if !ok {
		return nil, &AdapterError{
			Code:      CodeAdapterNotFound,
			Message:   "no adapter registered for supplier " + code,
			Retryable: true,
			Details:   map[string]interface{}{"supplier": code},
		}
	}
	return adapter, nil
}

// Codes returns the registered codes and aliases.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	return codes
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
