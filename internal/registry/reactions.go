package registry

import (
	"context"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/reaction"
)

// CreateReaction registers a new reaction component in the Stopped state.
func (r *Registry) CreateReaction(spec model.ReactionSpec) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if err := model.ValidateID(model.KindReaction, spec.ID); err != nil {
		return model.Wrap(model.ErrConfigValidate, "invalid reaction id", err)
	}
	if !reaction.KnownKind(spec.Kind) {
		return model.NewError(model.ErrConfigValidate, "unknown reaction kind "+spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reactions[spec.ID]; exists {
		return model.NewError(model.ErrAlreadyExists, "reaction "+spec.ID+" already exists")
	}
	r.reactions[spec.ID] = newReactionRecord(spec)
	r.reactionOrder = append(r.reactionOrder, spec.ID)

	if r.persistenceEnabled() {
		if err := r.persist.SaveReaction(spec); err != nil {
			delete(r.reactions, spec.ID)
			r.reactionOrder = r.reactionOrder[:len(r.reactionOrder)-1]
			return model.Wrap(model.ErrConfigValidate, "persist reaction", err)
		}
	}
	return nil
}

// DeleteReaction removes a reaction. Reactions have no dependents of their
// own, so deletion never fails with HasDependents.
func (r *Registry) DeleteReaction(ctx context.Context, id string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}

	r.mu.Lock()
	rec, ok := r.reactions[id]
	if !ok {
		r.mu.Unlock()
		return model.NewError(model.ErrNotFound, "reaction "+id+" not found")
	}
	delete(r.reactions, id)
	r.reactionOrder = removeID(r.reactionOrder, id)
	r.mu.Unlock()

	r.stopReactionRecord(ctx, rec)
	if r.persistenceEnabled() {
		return r.persist.DeleteReaction(id)
	}
	return nil
}

// ListReactions returns every registered reaction's id and state.
func (r *Registry) ListReactions() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentInfo, 0, len(r.reactions))
	for _, id := range r.reactionOrder {
		rec := r.reactions[id]
		out = append(out, ComponentInfo{Kind: model.KindReaction, ID: id, State: rec.sm.Current()})
	}
	return out
}

// GetReaction returns one reaction's info.
func (r *Registry) GetReaction(id string) (ComponentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.reactions[id]
	if !ok {
		return ComponentInfo{}, model.NewError(model.ErrNotFound, "reaction "+id+" not found")
	}
	return ComponentInfo{Kind: model.KindReaction, ID: id, State: rec.sm.Current()}, nil
}

// StartReaction transitions a reaction Stopped/Failed -> Starting ->
// Running. A reaction may start before the queries it subscribes to: it
// simply receives no deltas until they start emitting (spec §4.2).
func (r *Registry) StartReaction(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.reactions[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "reaction "+id+" not found")
	}

	if rec.sm.Current() == model.StateRunning {
		return nil
	}
	if changed, err := rec.sm.Transition(model.StateStarting); err != nil {
		return model.Wrap(model.ErrComponentFailed, "reaction "+id+" cannot start", err)
	} else if !changed {
		return nil
	}

	handler, err := reaction.Build(rec.spec.Kind, id, rec.spec.Properties)
	if err != nil {
		rec.sm.Force(model.StateFailed)
		return model.Wrap(model.ErrConfigValidate, "build reaction "+id, err)
	}
	rec.handler = handler

	runCtx, cancel := context.WithCancel(ctx)
	rec.cancel = cancel

	mailbox := r.dataRouter.Register(id, rec.spec.PriorityQueueCapacity)

	for _, queryID := range rec.spec.Queries {
		r.subRouter.Send(channels.ControlMessage{Kind: channels.ControlSubscribe, FromID: id, ToID: queryID})
	}

	if err := handler.Start(runCtx, deltaChan(runCtx, mailbox)); err != nil {
		rec.sm.Force(model.StateFailed)
		cancel()
		return model.Wrap(model.ErrComponentFailed, "start reaction "+id, err)
	}

	rec.sm.Transition(model.StateRunning)
	return nil
}

// StopReaction transitions Running -> Stopping -> Stopped.
func (r *Registry) StopReaction(ctx context.Context, id string) error {
	r.mu.RLock()
	rec, ok := r.reactions[id]
	r.mu.RUnlock()
	if !ok {
		return model.NewError(model.ErrNotFound, "reaction "+id+" not found")
	}
	r.stopReactionRecord(ctx, rec)
	return nil
}

func (r *Registry) stopReactionRecord(ctx context.Context, rec *reactionRecord) {
	cur := rec.sm.Current()
	if cur == model.StateStopped || cur == model.StateStopping {
		return
	}
	rec.sm.Transition(model.StateStopping)
	if rec.cancel != nil {
		rec.cancel()
	}
	if rec.handler != nil {
		if err := rec.handler.Stop(ctx); err != nil {
			r.log.Named("registry").WithField("reaction_id", rec.spec.ID).WithField("error", err).Warn("reaction stop error")
		}
	}
	for _, queryID := range rec.spec.Queries {
		r.subRouter.Send(channels.ControlMessage{Kind: channels.ControlUnsubscribe, FromID: rec.spec.ID, ToID: queryID})
	}
	r.dataRouter.Unregister(rec.spec.ID)
	rec.sm.Transition(model.StateStopped)
}
