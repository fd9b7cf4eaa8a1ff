package registry

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/source"
)

// CreateSource registers a new source component in the Stopped state
// (spec §4.2 create).
func (r *Registry) CreateSource(spec model.SourceSpec) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if err := model.ValidateID(model.KindSource, spec.ID); err != nil {
		return model.Wrap(model.ErrConfigValidate, "invalid source id", err)
	}
	if !source.KnownKind(spec.Kind) {
		return model.NewError(model.ErrConfigValidate, "unknown source kind "+spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[spec.ID]; exists {
		return model.NewError(model.ErrAlreadyExists, "source "+spec.ID+" already exists")
	}
	r.sources[spec.ID] = newSourceRecord(spec)
	r.sourceOrder = append(r.sourceOrder, spec.ID)

	if r.persistenceEnabled() {
		if err := r.persist.SaveSource(spec); err != nil {
			delete(r.sources, spec.ID)
			r.sourceOrder = r.sourceOrder[:len(r.sourceOrder)-1]
			return model.Wrap(model.ErrConfigValidate, "persist source", err)
		}
	}
	return nil
}

// DeleteSource removes a source, refusing if any query still lists it as
// a dependency (spec §4.2 delete, HasDependents).
func (r *Registry) DeleteSource(ctx context.Context, id string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}

	r.mu.Lock()
	rec, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return model.NewError(model.ErrNotFound, "source "+id+" not found")
	}
	for _, q := range r.queries {
		for _, sid := range q.spec.Sources {
			if sid == id {
				r.mu.Unlock()
				return model.NewError(model.ErrHasDependents, "query "+q.spec.ID+" depends on source "+id)
			}
		}
	}
	delete(r.sources, id)
	r.sourceOrder = removeID(r.sourceOrder, id)
	r.mu.Unlock()

	r.stopSourceRecord(ctx, rec)
	if r.persistenceEnabled() {
		return r.persist.DeleteSource(id)
	}
	return nil
}

// ListSources returns every registered source's id and state.
func (r *Registry) ListSources() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentInfo, 0, len(r.sources))
	for _, id := range r.sourceOrder {
		rec := r.sources[id]
		out = append(out, ComponentInfo{Kind: model.KindSource, ID: id, State: rec.sm.Current()})
	}
	return out
}

// GetSource returns one source's info.
func (r *Registry) GetSource(id string) (ComponentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sources[id]
	if !ok {
		return ComponentInfo{}, model.NewError(model.ErrNotFound, "source "+id+" not found")
	}
	return ComponentInfo{Kind: model.KindSource, ID: id, State: rec.sm.Current()}, nil
}

// StartSource transitions a source Stopped/Failed -> Starting -> Running,
// registers its subscription-router control handler, and begins delivering
// change events (spec §3.2, §4.2).
func (r *Registry) StartSource(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.sources[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "source "+id+" not found")
	}

	if rec.sm.Current() == model.StateRunning {
		return nil // idempotent
	}
	if changed, err := rec.sm.Transition(model.StateStarting); err != nil {
		return model.Wrap(model.ErrComponentFailed, "source "+id+" cannot start", err)
	} else if !changed {
		return nil
	}

	instance, err := source.Build(rec.spec.Kind, id, rec.spec.Properties)
	if err != nil {
		rec.sm.Force(model.StateFailed)
		return model.Wrap(model.ErrConfigValidate, "build source "+id, err)
	}
	rec.instance = instance

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

	runCtx, cancel := context.WithCancel(ctx)
	rec.cancel = cancel

	if err := instance.Start(runCtx, nil, &sourceSink{reg: r, sourceID: id}); err != nil {
		rec.sm.Force(model.StateFailed)
		cancel()
		return model.Wrap(model.ErrComponentFailed, "start source "+id, err)
	}

	rec.sm.Transition(model.StateRunning)
	return nil
}

// StopSource transitions Running -> Stopping -> Stopped.
func (r *Registry) StopSource(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.sources[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "source "+id+" not found")
	}
	r.stopSourceRecord(ctx, rec)
	return nil
}

func (r *Registry) stopSourceRecord(ctx context.Context, rec *sourceRecord) {
	cur := rec.sm.Current()
	if cur == model.StateStopped || cur == model.StateStopping {
		return
	}
	rec.sm.Transition(model.StateStopping)
	if rec.cancel != nil {
		rec.cancel()
	}
	if rec.instance != nil {
		if err := rec.instance.Stop(ctx); err != nil {
			r.log.Named("registry").WithField("source_id", rec.spec.ID).WithField("error", err).Warn("source stop error")
		}
	}
	r.subRouter.UnregisterHandler(rec.spec.ID)
	rec.sm.Transition(model.StateStopped)
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
