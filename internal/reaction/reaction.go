// Package reaction implements the reaction plug-in contract (spec §6.2)
// and the concrete reaction kinds named in §3.1: log, http, sse, grpc,
// profiler, platform, and application.
package reaction

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Handler is the plug-in contract every reaction kind implements (spec
// §6.2). Delivery is at-least-once: a reaction may observe the same
// ResultDelta more than once after a crash/restart, and must tolerate it.
type Handler interface {
	// Start begins delivering result deltas read from deltas until ctx is
	// canceled or Stop is called.
	Start(ctx context.Context, deltas <-chan model.ResultDelta) error

	// Stop releases any connections/resources held by the reaction.
	Stop(ctx context.Context) error
}

// Factory builds a Handler from its kind-specific configuration payload.
type Factory func(id string, properties map[string]any) (Handler, error)

var registry = map[string]Factory{}

// Register installs a Factory for a reaction kind. Called from each kind's
// init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// Build resolves `kind` to a Handler instance.
func Build(kind, id string, properties map[string]any) (Handler, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, &UnknownKindError{Kind: kind}
	}
	return f(id, properties)
}

// KnownKind reports whether `kind` has a registered Factory.
func KnownKind(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// UnknownKindError indicates a reaction kind with no registered Factory.
type UnknownKindError struct{ Kind string }

func (e *UnknownKindError) Error() string {
	return "reaction: unknown kind " + e.Kind
}
