package worker

import (
	"fmt"
	"sync"
	"time"

	"commandcenter/internal/domain/job"
	"commandcenter/internal/port/inbound"
)

// HandlerRegistry maps job types to their handlers. Registration happens at
// startup; lookups at dispatch time are read-only.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[job.Type]inbound.JobHandler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[job.Type]inbound.JobHandler)}
}

// Register adds a handler, rejecting duplicate job types.
func (r *HandlerRegistry) Register(h inbound.JobHandler) error {
	if h == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("handler already registered for job type %q", h.Type())
	}
	r.handlers[h.Type()] = h
	return nil
}

// Get returns the handler for the job type, or false.
func (r *HandlerRegistry) Get(t job.Type) (inbound.JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// CustomBackoffRegistry resolves custom backoff policies by name. Policies
// reference functions by name only; the executable code lives here, never
// in config or job records.
type CustomBackoffRegistry struct {
	mu    sync.RWMutex
	funcs map[string]job.CustomBackoffFunc
}

// NewCustomBackoffRegistry creates an empty backoff registry.
func NewCustomBackoffRegistry() *CustomBackoffRegistry {
	return &CustomBackoffRegistry{funcs: make(map[string]job.CustomBackoffFunc)}
}

// Register adds a named backoff function, rejecting duplicates.
func (r *CustomBackoffRegistry) Register(name string, fn job.CustomBackoffFunc) error {
	if name == "" {
		return fmt.Errorf("backoff name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("backoff function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("backoff function already registered for name %q", name)
	}
	r.funcs[name] = fn
	return nil
}

// Delay resolves the delay for the policy and attempt. Custom policies use
// the registered function; unregistered names fall back to the policy's
// built-in curve.
func (r *CustomBackoffRegistry) Delay(policy job.BackoffPolicy, attempt int) time.Duration {
	if policy.Kind == job.BackoffCustom {
		r.mu.RLock()
		fn, ok := r.funcs[policy.Name]
		r.mu.RUnlock()
		if ok {
			return fn(attempt)
		}
	}
	return policy.Delay(attempt)
}
