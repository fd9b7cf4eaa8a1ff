// Package registry implements the Component Registry & Lifecycle
// Controller (spec §4.2): one map per component kind, create/delete/
// start/stop/list/get operations, auto-start ordering, cascading-delete
// refusal, and the read-only/no-persist gate checks on mutating operations.
package registry

import (
	"context"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/bootstrap"
	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Persister is how the registry asks the configuration layer to persist a
// successful mutation (spec §4.5.3). A Registry built with a nil Persister
// treats persistence_enabled as false and read_only as false: all
// mutations apply in-memory only, useful for tests and embedding.
type Persister interface {
	ReadOnly() bool
	PersistenceEnabled() bool
	SaveSource(spec model.SourceSpec) error
	DeleteSource(id string) error
	SaveQuery(spec model.QuerySpec) error
	DeleteQuery(id string) error
	SaveReaction(spec model.ReactionSpec) error
	DeleteReaction(id string) error
}

// Registry owns the live component records and coordinates their lifecycle
// against the three channel-fabric routers.
type Registry struct {
	dataRouter  *channels.DataRouter
	bootRouter  *channels.BootstrapRouter
	subRouter   *channels.SubscriptionRouter
	coordinator *bootstrap.Coordinator
	persist     Persister
	log         *logging.Logger

	mu            sync.RWMutex
	sources       map[string]*sourceRecord
	queries       map[string]*queryRecord
	reactions     map[string]*reactionRecord
	sourceOrder   []string
	queryOrder    []string
	reactionOrder []string
}

// New builds a Registry bound to the process-wide routers.
func New(dataRouter *channels.DataRouter, bootRouter *channels.BootstrapRouter, subRouter *channels.SubscriptionRouter, persist Persister, log *logging.Logger) *Registry {
	return &Registry{
		dataRouter:  dataRouter,
		bootRouter:  bootRouter,
		subRouter:   subRouter,
		coordinator: bootstrap.NewCoordinator(bootRouter, log),
		persist:     persist,
		log:         log,
		sources:     make(map[string]*sourceRecord),
		queries:     make(map[string]*queryRecord),
		reactions:   make(map[string]*reactionRecord),
	}
}

func (r *Registry) readOnly() bool {
	return r.persist != nil && r.persist.ReadOnly()
}

func (r *Registry) persistenceEnabled() bool {
	return r.persist != nil && r.persist.PersistenceEnabled()
}

// checkMutable returns model.ErrReadOnly if mutating operations are
// currently disallowed (spec §4.5.3).
func (r *Registry) checkMutable() error {
	if r.readOnly() {
		return model.NewError(model.ErrReadOnly, "configuration is read-only")
	}
	return nil
}

// AutoStart starts every component configured with auto_start = true, in
// the order sources, then queries, then reactions, in configuration order
// within each kind (spec §4.2).
func (r *Registry) AutoStart(ctx context.Context) {
	r.mu.RLock()
	sourceIDs := r.orderedSourceIDs()
	queryIDs := r.orderedQueryIDs()
	reactionIDs := r.orderedReactionIDs()
	r.mu.RUnlock()

	for _, id := range sourceIDs {
		r.mu.RLock()
		rec, ok := r.sources[id]
		r.mu.RUnlock()
		if ok && rec.spec.AutoStartResolved() {
			if err := r.StartSource(ctx, id); err != nil {
				r.log.Named("registry").WithField("source_id", id).WithField("error", err).Warn("auto-start failed")
			}
		}
	}
	for _, id := range queryIDs {
		r.mu.RLock()
		rec, ok := r.queries[id]
		r.mu.RUnlock()
		if ok && rec.spec.AutoStartResolved() {
			if err := r.StartQuery(ctx, id); err != nil {
				r.log.Named("registry").WithField("query_id", id).WithField("error", err).Warn("auto-start failed")
			}
		}
	}
	for _, id := range reactionIDs {
		r.mu.RLock()
		rec, ok := r.reactions[id]
		r.mu.RUnlock()
		if ok && rec.spec.AutoStartResolved() {
			if err := r.StartReaction(ctx, id); err != nil {
				r.log.Named("registry").WithField("reaction_id", id).WithField("error", err).Warn("auto-start failed")
			}
		}
	}
}
