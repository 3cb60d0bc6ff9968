package pipeline

import (
	"context"
	"errors"
)

// Phase identifies one of the five ordered stages a Pipeline runs.
type Phase string

const (
	PhaseRID      Phase = "rid"
	PhaseManifest Phase = "manifest"
	PhaseBundle   Phase = "bundle"
	PhaseNetwork  Phase = "network"
	PhaseFinal    Phase = "final"
)

// phases is the fixed execution order; Pipeline.Process walks it exactly
// once per call.
var phases = []Phase{PhaseRID, PhaseManifest, PhaseBundle, PhaseNetwork, PhaseFinal}

// ErrStopChain is returned by a HandlerFunc to halt the current phase and
// every phase after it. Pipeline.Process returns (nil, nil) for that object
// when a handler stops the chain -- it is not itself an error condition.
var ErrStopChain = errors.New("pipeline: stop chain")

// HandlerFunc processes an Object, optionally mutating it in place. It
// returns ErrStopChain to halt remaining phases, or any other non-nil error
// to abort processing with a failure.
type HandlerFunc func(ctx context.Context, hctx *Context, obj *Object) error

// Handler is one link in a phase's chain, optionally filtered by the
// object's entity type or event type so unrelated objects skip it cheaply.
type Handler struct {
	Phase       Phase
	Name        string
	Fn          HandlerFunc
	EntityTypes map[string]struct{} // nil means unfiltered
	EventTypes  map[string]struct{} // nil means unfiltered
}

func (h Handler) matches(obj *Object) bool {
	if h.EntityTypes != nil {
		if _, ok := h.EntityTypes[obj.EntityType]; !ok {
			return false
		}
	}
	if h.EventTypes != nil {
		if _, ok := h.EventTypes[obj.EventType]; !ok {
			return false
		}
	}
	return true
}

// EntityTypeSet builds a Handler.EntityTypes / EventTypes filter set.
func EntityTypeSet(types ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}
