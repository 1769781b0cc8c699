// Package jobs runs queued background work: source ingestion and script
// batches. Jobs live in the jobs table; a small worker pool claims them with
// SKIP LOCKED semantics, reports progress over the realtime bus, and applies
// the retry policy when handlers fail.
package jobs

import (
	"fmt"
	"sync"
)

// Handler executes one job type. Run returns the result payload to persist on
// the job row; terminal status mapping from the returned error is the
// worker's business, not the handler's.
type Handler interface {
	Type() string
	Run(jc *Context) (any, error)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job type %s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
