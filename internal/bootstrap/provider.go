// Package bootstrap implements the Bootstrap Coordinator (spec §4.3): for
// each (source, query) pair that opts in, it runs the chosen provider to
// deliver an initial dataset and hands cleanly over to live streaming.
package bootstrap

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Insert is one element delivered during a bootstrap stream.
type Insert struct {
	Element model.Element
}

// Result is the terminating message of a bootstrap stream.
type Result struct {
	Watermark    int64
	HasWatermark bool
}

// Provider produces a finite, totally ordered insert stream for one
// (source, label filter) bootstrap request, optionally carrying a
// coordination watermark (spec §4.3 table).
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan Insert, <-chan Result, <-chan error)
}

// Request carries everything a Provider needs to produce its stream.
type Request struct {
	SourceID    string
	QueryID     string
	LabelFilter []string
	Properties  map[string]any // the source's declarative properties
}

// Factory builds a Provider from a source's declarative properties.
type Factory func(properties map[string]any) (Provider, error)

var registry = map[string]Factory{}

// Register installs a Factory for a provider kind. Called from each
// provider's init().
func Register(kind string, f Factory) {
	registry[kind] = f
}

// Build resolves `kind` to a Provider instance.
func Build(kind string, properties map[string]any) (Provider, error) {
	f, ok := registry[kind]
	if !ok {
		f = registry["noop"]
	}
	return f(properties)
}

// KnownKind reports whether `kind` has a registered Factory.
func KnownKind(kind string) bool {
	_, ok := registry[kind]
	return ok
}
