// Package handlers declares the capability set every intent handler
// implements and the deterministic registry the Orchestrator uses to route
// a recognized Intent to exactly one of them.
package handlers

import (
	"context"
	"fmt"

	"github.com/normanking/aura-orchestrator/internal/aurerrors"
	"github.com/normanking/aura-orchestrator/internal/types"
)

// Handler is the capability set every intent handler implements.
type Handler interface {
	Handle(ctx context.Context, u types.Utterance, intent types.Intent) types.HandlerResult
	Supports(kind types.IntentKind) bool
}

// Registry maps an Intent.Kind to exactly one Handler. Selection is
// deterministic; the core never falls back to a different intent's
// handler silently.
type Registry struct {
	byKind map[types.IntentKind]Handler
}

// NewRegistry builds a Registry from the given handlers, indexing each one
// by every IntentKind it reports supporting.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{byKind: make(map[types.IntentKind]Handler)}
	for _, h := range hs {
		for _, kind := range []types.IntentKind{
			types.GUIInteraction, types.QuestionAnswering,
			types.ConversationalChat, types.DeferredActionIntent,
		} {
			if h.Supports(kind) {
				r.byKind[kind] = h
			}
		}
	}
	return r
}

// Select returns the handler registered for kind, or an InternalError if
// none was registered.
func (r *Registry) Select(kind types.IntentKind) (Handler, error) {
	h, ok := r.byKind[kind]
	if !ok {
		return nil, aurerrors.Wrap(aurerrors.ErrInternalError,
			fmt.Errorf("handlers: no handler registered for intent kind %q", kind))
	}
	return h, nil
}
