package commands

import (
	"context"
	"errors"
	"fmt"
)

// Handler performs the side effect bound to a verb. The returned string is
// the success detail (a confirmation, an answer, a list of file paths); a
// non-nil error marks the action as failed.
//
// Handlers run concurrently with the other commands of a batch and must honour
// ctx, which carries the per-action deadline.
type Handler func(ctx context.Context, cmd Command) (string, error)

// Binding attaches a Handler to a verb.
type Binding struct {
	Verb    Verb
	Handler Handler
}

// Registry maps verbs to handlers. It is populated once by NewRegistry and is
// read-only afterwards, so lookups need no locking.
type Registry struct {
	handlers map[Verb]Handler
}

// NewRegistry builds a Registry from bindings. An unknown verb, a nil handler
// or a verb bound twice is a configuration error.
func NewRegistry(bindings ...Binding) (*Registry, error) {
	handlers := make(map[Verb]Handler, len(bindings))
	var errs []error
	for _, b := range bindings {
		switch {
		case !b.Verb.Valid():
			errs = append(errs, fmt.Errorf("registry: unknown verb %q", b.Verb))
		case b.Handler == nil:
			errs = append(errs, fmt.Errorf("registry: nil handler for %q", b.Verb))
		default:
			if _, dup := handlers[b.Verb]; dup {
				errs = append(errs, fmt.Errorf("registry: verb %q bound twice", b.Verb))
				continue
			}
			handlers[b.Verb] = b.Handler
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Registry{handlers: handlers}, nil
}

// Resolve returns the handler bound to v. The boolean is false when nothing is
// bound, which is distinct from a handler that runs and fails.
func (r *Registry) Resolve(v Verb) (Handler, bool) {
	h, ok := r.handlers[v]
	return h, ok
}

// Verbs returns the bound verbs in catalogue order.
func (r *Registry) Verbs() []Verb {
	var out []Verb
	for _, v := range Verbs() {
		if _, ok := r.handlers[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
