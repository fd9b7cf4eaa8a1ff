// Package query implements the continuous query runtime of spec §4.4: the
// element store, join index, compiled pattern plan, result multiset, and
// the per-event reconciliation algorithm that turns upstream element
// changes into added/updated/deleted result deltas.
package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/metrics"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/query/lang"
)

// Runtime is one running continuous query instance. It has no knowledge of
// routers or sources directly: the registry feeds it change events and
// bootstrap inserts, and reads ResultDelta off Deltas().
type Runtime struct {
	queryID string
	plan    lang.Plan
	log     *logging.Logger

	store *elementStore
	joins *joinIndex
	multi *resultMultiset

	sequence uint64 // atomic, strictly monotonic (spec §4.4 state item 5)

	mu            sync.Mutex
	bootstrapping bool

	multiMu sync.Mutex // guards multi against concurrent reconcile/Snapshot

	out chan model.ResultDelta

	failed atomic.Bool
}

// New builds a Runtime from a compiled Plan and the query's join specs.
func New(queryID string, plan lang.Plan, joins []model.JoinSpec, log *logging.Logger) *Runtime {
	return &Runtime{
		queryID: queryID,
		plan:    plan,
		log:     log,
		store:   newElementStore(),
		joins:   newJoinIndex(joins),
		multi:   newResultMultiset(),
		out:     make(chan model.ResultDelta, 256),
	}
}

// Deltas returns the channel the registry relays to the Data Router for
// this query's reaction subscribers.
func (r *Runtime) Deltas() <-chan model.ResultDelta { return r.out }

// Failed reports whether a panic inside pattern evaluation has already
// transitioned this query's processing to a permanently stopped state
// (spec §4.4 "Failure").
func (r *Runtime) Failed() bool { return r.failed.Load() }

// BeginBootstrap marks the runtime as populating state from a bootstrap
// insert stream: no result deltas are emitted until EndBootstrap is called
// (spec §4.4 "Bootstrap-phase processing").
func (r *Runtime) BeginBootstrap() {
	r.mu.Lock()
	r.bootstrapping = true
	r.mu.Unlock()
}

// ApplyBootstrapInsert folds one bootstrap-provided element into the
// element/join indices without emitting a result delta.
func (r *Runtime) ApplyBootstrapInsert(el model.Element) {
	r.store.upsert(el)
	r.joins.update(el)
}

// EndBootstrap completes the bootstrap phase: the current result set is
// emitted as a single added delta carrying DeltaControl kind and sequence
// 1, so a fresh result is observable even though none of its rows arrived
// through ProcessChange (spec §4.4, Open Question resolved in DESIGN.md).
func (r *Runtime) EndBootstrap(ctx context.Context, sourceTimeMs int64) {
	r.mu.Lock()
	r.bootstrapping = false
	r.mu.Unlock()

	rows, err := r.evaluateSafely()
	if err != nil {
		r.fail(err)
		return
	}
	r.multiMu.Lock()
	added, _, _ := r.multi.reconcile(rows)
	r.multiMu.Unlock()
	if len(added) == 0 {
		return
	}
	seq := atomic.AddUint64(&r.sequence, 1)
	r.emit(ctx, model.ResultDelta{
		QueryID:      r.queryID,
		Sequence:     seq,
		SourceTimeMs: sourceTimeMs,
		Kind:         model.DeltaControl,
		Added:        added,
	})
}

// ProcessChange implements spec §4.4's per-event algorithm: update the
// element store and join indices, recompute the pattern's matched rows,
// reconcile against the held result set, and emit one delta if anything
// changed. Bootstrap-phase events are folded into state with no delta.
func (r *Runtime) ProcessChange(ctx context.Context, ev model.ChangeEvent) {
	if r.Failed() {
		return
	}

	r.mu.Lock()
	bootstrapping := r.bootstrapping
	r.mu.Unlock()

	if !r.applyToStore(ev) {
		return // malformed event: logged and dropped, per spec §4.4 "Failure"
	}

	if bootstrapping {
		return
	}

	rows, err := r.evaluateSafely()
	if err != nil {
		r.fail(err)
		return
	}

	r.multiMu.Lock()
	added, updated, deleted := r.multi.reconcile(rows)
	r.multiMu.Unlock()
	if len(added) == 0 && len(updated) == 0 && len(deleted) == 0 {
		return
	}

	seq := atomic.AddUint64(&r.sequence, 1)
	r.emit(ctx, model.ResultDelta{
		QueryID:      r.queryID,
		Sequence:     seq,
		SourceTimeMs: ev.SourceTimeMs,
		Kind:         model.DeltaChange,
		Added:        added,
		Updated:      updated,
		Deleted:      deleted,
	})
}

// applyToStore updates the element store/join index for one change event,
// reporting false for an internally inconsistent event (e.g. Delete for an
// unknown element) that should be logged and dropped rather than
// propagated.
func (r *Runtime) applyToStore(ev model.ChangeEvent) bool {
	switch ev.Op {
	case model.OpInsert:
		r.store.upsert(*ev.After)
		r.joins.update(*ev.After)
		return true
	case model.OpUpdate:
		old, existed := r.store.upsert(*ev.After)
		if !existed {
			r.log.Named("query").WithField("query_id", r.queryID).WithField("element_id", ev.After.ID).
				Warn("update for untracked element; treating as insert")
		} else {
			r.joins.forget(old)
		}
		r.joins.update(*ev.After)
		return true
	case model.OpDelete:
		old, existed := r.store.remove(ev.Before.ID)
		if !existed {
			r.log.Named("query").WithField("query_id", r.queryID).WithField("element_id", ev.Before.ID).
				Warn("delete for untracked element; dropping")
			return false
		}
		r.joins.forget(old)
		return true
	default:
		return false
	}
}

// evaluateSafely recovers from a panic inside pattern evaluation, turning
// it into an error the caller maps onto the Failed transition (spec §4.4
// "Failure": "A panic inside pattern evaluation transitions the query to
// Failed.").
func (r *Runtime) evaluateSafely() (rows []model.Row, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during pattern evaluation: %v", p)
		}
	}()
	lookup := &runtimeLookup{store: r.store, joins: r.joins}
	return r.plan.Evaluate(lookup)
}

// Snapshot returns a point-in-time copy of the currently held result set
// (spec §4.2 get_query_results).
func (r *Runtime) Snapshot() []model.Row {
	r.multiMu.Lock()
	defer r.multiMu.Unlock()
	return r.multi.snapshot()
}

func (r *Runtime) fail(err error) {
	r.failed.Store(true)
	r.log.Named("query").WithField("query_id", r.queryID).WithField("error", err).Error("query failed")
}

func (r *Runtime) emit(ctx context.Context, delta model.ResultDelta) {
	select {
	case r.out <- delta:
		metrics.IncQuerySequence(r.queryID)
	case <-ctx.Done():
	}
}
