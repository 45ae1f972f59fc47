package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCommand is returned for an identifier nothing registered.
var ErrUnknownCommand = errors.New("unknown command")

// Handler runs one command.
type Handler func(ctx context.Context) Outcome

// Registry maps command identifiers to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds id to h. Registering an id twice is an error.
func (r *Registry) Register(id string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[id]; ok {
		return fmt.Errorf("command %q already registered", id)
	}
	r.handlers[id] = h
	return nil
}

// Execute runs the handler bound to id.
func (r *Registry) Execute(ctx context.Context, id string) (Outcome, error) {
	r.mu.RLock()
	h, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	return h(ctx), nil
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterAll binds both editor commands to runner.
func RegisterAll(reg *Registry, runner *Runner) error {
	for _, a := range []Action{ActionRefactor, ActionGenerate} {
		if err := reg.Register(a.ID(), func(ctx context.Context) Outcome {
			return runner.Run(ctx, a)
		}); err != nil {
			return err
		}
	}
	return nil
}
