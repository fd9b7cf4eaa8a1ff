// Package source implements the source plug-in contract (spec §6.1) and
// the concrete source kinds named in §3.1: mock, postgres, http, grpc,
// platform, and application.
package source

import (
	"context"
	"fmt"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// ChangeSink receives change events a running source publishes.
type ChangeSink interface {
	PublishChange(ctx context.Context, ev model.ChangeEvent) error
}

// Source is the plug-in contract every source kind implements (spec §6.1).
// The live-streaming half (Start/Stop) and the bootstrap half
// (BeginBootstrap) are independent: a query's subscription to the live
// stream is established before bootstrap begins, so the query's own
// Data-Router mailbox (sized to bootstrap_buffer_size) is the buffer spec
// §4.3 describes sources maintaining during bootstrap. The bootstrap
// coordinator calls BeginBootstrap only when the source declares no
// bootstrap provider; sources with a native provider (`application`,
// `mock`, and `platform` when snapshot_url is set) answer it and the rest
// return ErrNoNativeProvider. Declared providers (`postgres`, `scriptfile`,
// `platform`, `noop`) are resolved independently by the bootstrap
// coordinator against the source's declarative config.
type Source interface {
	// Start opens external connections and begins delivering change
	// events to sink, filtered to labelFilter.
	Start(ctx context.Context, labelFilter []string, sink ChangeSink) error

	// Stop closes connections and flushes in-flight state.
	Stop(ctx context.Context) error

	// BeginBootstrap opens this source's native bootstrap session, if it
	// has one. Sources without a native provider return ErrNoNativeProvider.
	BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error)
}

// ErrNoNativeProvider is returned by BeginBootstrap when a source kind has
// no native bootstrap provider of its own (its default resolves to `noop`).
var ErrNoNativeProvider = fmt.Errorf("source: no native bootstrap provider")

// Session is a finite, totally ordered stream of insert events terminated
// by one terminating message, per spec §4.1.2/§6.1.
type Session struct {
	Inserts  <-chan model.Element
	Complete <-chan Completion
}

// Completion is the terminating message of a bootstrap session.
type Completion struct {
	Watermark    int64
	HasWatermark bool
	Err          error
}

// Factory builds a Source from its kind-specific configuration payload.
type Factory func(id string, properties map[string]any) (Source, error)

// registry maps a `kind` tag to its Factory, resolved at configuration
// parse time (spec §9: "rejecting unknown kinds at parse time ... gives
// earlier errors").
var registry = map[string]Factory{}

// Register installs a Factory for a source kind. Called from each kind's
// init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// Build resolves `kind` to a Source instance.
func Build(kind, id string, properties map[string]any) (Source, error) {
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

// UnknownKindError indicates a source kind with no registered Factory.
type UnknownKindError struct{ Kind string }

func (e *UnknownKindError) Error() string {
	return "source: unknown kind " + e.Kind
}
