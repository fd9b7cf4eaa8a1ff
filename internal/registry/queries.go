package registry

import (
	"context"
	"time"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/query"
)

// CreateQuery compiles and registers a new query component in the Stopped
// state (spec §4.2 create). Sources referenced by the query need not exist
// yet: the dependency is only checked at start time and at delete time on
// the dependent side (reactions -> queries, queries -> sources).
func (r *Registry) CreateQuery(spec model.QuerySpec) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if err := model.ValidateID(model.KindQuery, spec.ID); err != nil {
		return model.Wrap(model.ErrConfigValidate, "invalid query id", err)
	}
	if spec.QueryText == "" {
		return model.NewError(model.ErrConfigValidate, "query "+spec.ID+" has empty query_text")
	}
	if _, err := query.Build(spec, r.log); err != nil {
		return model.Wrap(model.ErrConfigValidate, "compile query "+spec.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.queries[spec.ID]; exists {
		return model.NewError(model.ErrAlreadyExists, "query "+spec.ID+" already exists")
	}
	r.queries[spec.ID] = newQueryRecord(spec)
	r.queryOrder = append(r.queryOrder, spec.ID)

	if r.persistenceEnabled() {
		if err := r.persist.SaveQuery(spec); err != nil {
			delete(r.queries, spec.ID)
			r.queryOrder = r.queryOrder[:len(r.queryOrder)-1]
			return model.Wrap(model.ErrConfigValidate, "persist query", err)
		}
	}
	return nil
}

// DeleteQuery removes a query, refusing if any reaction still lists it as
// a dependency.
func (r *Registry) DeleteQuery(ctx context.Context, id string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}

	r.mu.Lock()
	rec, ok := r.queries[id]
	if !ok {
		r.mu.Unlock()
		return model.NewError(model.ErrNotFound, "query "+id+" not found")
	}
	for _, rt := range r.reactions {
		for _, qid := range rt.spec.Queries {
			if qid == id {
				r.mu.Unlock()
				return model.NewError(model.ErrHasDependents, "reaction "+rt.spec.ID+" depends on query "+id)
			}
		}
	}
	delete(r.queries, id)
	r.queryOrder = removeID(r.queryOrder, id)
	r.mu.Unlock()

	r.stopQueryRecord(ctx, rec)
	if r.persistenceEnabled() {
		return r.persist.DeleteQuery(id)
	}
	return nil
}

// ListQueries returns every registered query's id and state.
func (r *Registry) ListQueries() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentInfo, 0, len(r.queries))
	for _, id := range r.queryOrder {
		rec := r.queries[id]
		out = append(out, ComponentInfo{Kind: model.KindQuery, ID: id, State: rec.sm.Current()})
	}
	return out
}

// GetQuery returns one query's info.
func (r *Registry) GetQuery(id string) (ComponentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.queries[id]
	if !ok {
		return ComponentInfo{}, model.NewError(model.ErrNotFound, "query "+id+" not found")
	}
	return ComponentInfo{Kind: model.KindQuery, ID: id, State: rec.sm.Current()}, nil
}

// GetQueryResults returns a snapshot of the query's currently held result
// multiset (spec §4.2 get_query_results).
func (r *Registry) GetQueryResults(id string) ([]model.Row, error) {
	r.mu.RLock()
	rec, ok := r.queries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, model.NewError(model.ErrNotFound, "query "+id+" not found")
	}
	if rec.runtime == nil {
		return nil, model.NewError(model.ErrComponentFailed, "query "+id+" is not running")
	}
	return rec.runtime.Snapshot(), nil
}

// sourceReadyTimeout bounds how long a starting query waits for a
// not-yet-running source before failing (spec §4.2: "a query whose source
// isn't yet Running blocks in Starting until the source publishes a
// readiness signal").
const sourceReadyTimeout = 30 * time.Second

// StartQuery transitions a query Stopped/Failed -> Starting -> Running:
// waits for its sources to be Running, subscribes to their change streams,
// runs bootstrap if enabled, and begins live processing.
func (r *Registry) StartQuery(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.queries[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "query "+id+" not found")
	}

	if rec.sm.Current() == model.StateRunning {
		return nil
	}
	if changed, err := rec.sm.Transition(model.StateStarting); err != nil {
		return model.Wrap(model.ErrComponentFailed, "query "+id+" cannot start", err)
	} else if !changed {
		return nil
	}

	rt, err := query.Build(rec.spec, r.log)
	if err != nil {
		rec.sm.Force(model.StateFailed)
		return model.Wrap(model.ErrConfigValidate, "compile query "+id, err)
	}
	rec.runtime = rt

	sourceRecs, err := r.waitForSources(ctx, rec.spec.Sources)
	if err != nil {
		rec.sm.Force(model.StateFailed)
		return err
	}

	r.subRouter.RegisterHandler(id, func(msg channels.ControlMessage) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch msg.Kind {
		case channels.ControlSubscribe:
			rec.subscribers[msg.FromID] = true
		case channels.ControlUnsubscribe:
			delete(rec.subscribers, msg.FromID)
		}
	})

	// Reactions started before this query sent their Subscribe while no
	// handler was registered; record those subscriptions now.
	r.mu.RLock()
	for _, rrec := range r.reactions {
		if st := rrec.sm.Current(); st != model.StateRunning && st != model.StateStarting {
			continue
		}
		for _, qid := range rrec.spec.Queries {
			if qid == id {
				rec.mu.Lock()
				rec.subscribers[rrec.spec.ID] = true
				rec.mu.Unlock()
			}
		}
	}
	r.mu.RUnlock()

	runCtx, cancel := context.WithCancel(ctx)
	rec.cancel = cancel

	bufSize := rec.spec.BootstrapBufferSizeResolved()
	changeCh := r.dataRouter.Register(id, bufSize)

	for _, sourceID := range rec.spec.Sources {
		r.subRouter.Send(channels.ControlMessage{Kind: channels.ControlSubscribe, FromID: id, ToID: sourceID})
	}

	if rec.spec.EnableBootstrapResolved() && len(sourceRecs) > 0 {
		if err := r.runBootstrap(runCtx, rec, sourceRecs); err != nil {
			rec.sm.Force(model.StateFailed)
			cancel()
			return model.Wrap(model.ErrComponentFailed, "bootstrap query "+id, err)
		}
	}

	go r.pumpQueryChanges(runCtx, rec, changeCh)
	go r.pumpQueryDeltas(runCtx, rec, id)

	rec.sm.Transition(model.StateRunning)
	return nil
}

// waitForSources blocks until every named source is Running (or already
// Failed, which fails fast) or sourceReadyTimeout elapses.
func (r *Registry) waitForSources(ctx context.Context, sourceIDs []string) ([]*sourceRecord, error) {
	deadline := time.Now().Add(sourceReadyTimeout)
	recs := make([]*sourceRecord, len(sourceIDs))

	for i, sid := range sourceIDs {
		for {
			r.mu.RLock()
			srec, ok := r.sources[sid]
			r.mu.RUnlock()
			if !ok {
				return nil, model.NewError(model.ErrConfigValidate, "source "+sid+" not found")
			}
			state := srec.sm.Current()
			if state == model.StateRunning {
				recs[i] = srec
				break
			}
			if state == model.StateFailed {
				return nil, model.NewError(model.ErrComponentFailed, "source "+sid+" is failed")
			}
			if time.Now().After(deadline) {
				return nil, model.NewError(model.ErrComponentFailed, "timed out waiting for source "+sid+" to become Running")
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return recs, nil
}

// runBootstrap drives one bootstrap session per configured source,
// sequentially, folding every insert into the runtime before emitting the
// single bootstrap-completion delta (spec §4.3, §4.4).
func (r *Registry) runBootstrap(ctx context.Context, rec *queryRecord, sources []*sourceRecord) error {
	rec.runtime.BeginBootstrap()

	for i, srec := range sources {
		req := channels.BootstrapRequest{
			QueryID:    rec.spec.ID,
			SourceID:   rec.spec.Sources[i],
			BufferSize: rec.spec.BootstrapBufferSizeResolved(),
		}
		session, err := r.coordinator.Begin(ctx, srec.instance, req, srec.spec.BootstrapProvider, srec.spec.Properties)
		if err != nil {
			return err
		}
		for ins := range session.Inserts {
			rec.runtime.ApplyBootstrapInsert(ins.Element)
		}
		done := <-session.Complete
		if done.Err != nil {
			return done.Err
		}
		rec.watermarks[req.SourceID] = sourceWatermark{value: done.Watermark, has: done.HasWatermark}
	}

	rec.runtime.EndBootstrap(ctx, time.Now().UnixMilli())
	return nil
}

func (r *Registry) pumpQueryChanges(ctx context.Context, rec *queryRecord, in <-chan channels.DataMessage) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			if msg.Change != nil {
				if rec.alreadyBootstrapped(*msg.Change) {
					continue
				}
				rec.runtime.ProcessChange(ctx, *msg.Change)
				if rec.runtime.Failed() {
					rec.sm.Force(model.StateFailed)
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) pumpQueryDeltas(ctx context.Context, rec *queryRecord, queryID string) {
	for {
		select {
		case delta, ok := <-rec.runtime.Deltas():
			if !ok {
				return
			}
			for _, reactionID := range rec.subscriberIDs() {
				delta := delta
				if err := r.dataRouter.Publish(ctx, reactionID, channels.DataMessage{Delta: &delta}); err != nil {
					r.log.Named("registry").WithField("query_id", queryID).WithField("reaction_id", reactionID).
						WithField("error", err).Warn("delta publish failed")
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// StopQuery transitions Running -> Stopping -> Stopped.
func (r *Registry) StopQuery(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.queries[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "query "+id+" not found")
	}
	r.stopQueryRecord(ctx, rec)
	return nil
}

func (r *Registry) stopQueryRecord(ctx context.Context, rec *queryRecord) {
	cur := rec.sm.Current()
	if cur == model.StateStopped || cur == model.StateStopping {
		return
	}
	rec.sm.Transition(model.StateStopping)
	if rec.cancel != nil {
		rec.cancel()
	}
	for _, sourceID := range rec.spec.Sources {
		r.subRouter.Send(channels.ControlMessage{Kind: channels.ControlUnsubscribe, FromID: rec.spec.ID, ToID: sourceID})
	}
	r.subRouter.UnregisterHandler(rec.spec.ID)
	r.dataRouter.Unregister(rec.spec.ID)
	rec.sm.Transition(model.StateStopped)
}
