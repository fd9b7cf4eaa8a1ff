package registry

import (
	"context"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/lifecycle"
	"github.com/ruokun-niu/drasi-server/internal/metrics"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/query"
	"github.com/ruokun-niu/drasi-server/internal/reaction"
	"github.com/ruokun-niu/drasi-server/internal/source"
)

// sourceRecord is the registry's live state for one source component: its
// declared spec, state machine, running instance (nil until Starting has
// succeeded once), and the set of query ids currently subscribed to its
// change stream.
type sourceRecord struct {
	spec     model.SourceSpec
	sm       *lifecycle.StateMachine
	instance source.Source
	cancel   context.CancelFunc

	mu          sync.Mutex
	subscribers map[string]bool // query ids
}

func newSourceRecord(spec model.SourceSpec) *sourceRecord {
	rec := &sourceRecord{
		spec:        spec,
		sm:          lifecycle.NewStateMachine(),
		subscribers: make(map[string]bool),
	}
	rec.sm.OnChange(func(state model.ComponentState) { metrics.SetComponentState(model.KindSource, spec.ID, state) })
	return rec
}

func (s *sourceRecord) subscriberIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	return ids
}

type queryRecord struct {
	spec    model.QuerySpec
	sm      *lifecycle.StateMachine
	runtime *query.Runtime
	cancel  context.CancelFunc

	mu          sync.Mutex
	subscribers map[string]bool // reaction ids

	// watermarks holds, per source id, the bootstrap cutover position from
	// that source's BootstrapComplete (spec §4.3 step 5). It is populated
	// once by runBootstrap before the live pump goroutines start and is
	// read-only thereafter, so no lock guards it.
	watermarks map[string]sourceWatermark
}

// sourceWatermark is the bootstrap cutover position for one source: a
// change event with HasPosition and Position <= Value was already folded
// into the bootstrap snapshot and must not be reapplied (spec §4.1.3's
// "position > w" ordering guarantee).
type sourceWatermark struct {
	value int64
	has   bool
}

func newQueryRecord(spec model.QuerySpec) *queryRecord {
	rec := &queryRecord{
		spec:        spec,
		sm:          lifecycle.NewStateMachine(),
		subscribers: make(map[string]bool),
		watermarks:  make(map[string]sourceWatermark),
	}
	rec.sm.OnChange(func(state model.ComponentState) { metrics.SetComponentState(model.KindQuery, spec.ID, state) })
	return rec
}

// alreadyBootstrapped reports whether ev falls at or before the bootstrap
// cutover watermark recorded for its source, meaning it is already
// reflected in the element store from the bootstrap snapshot and must be
// dropped rather than reapplied (spec §4.1.3, §4.3 step 5).
func (q *queryRecord) alreadyBootstrapped(ev model.ChangeEvent) bool {
	if !ev.HasPosition {
		return false
	}
	wm, ok := q.watermarks[ev.SourceID]
	if !ok || !wm.has {
		return false
	}
	return ev.Position <= wm.value
}

func (q *queryRecord) subscriberIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.subscribers))
	for id := range q.subscribers {
		ids = append(ids, id)
	}
	return ids
}

type reactionRecord struct {
	spec    model.ReactionSpec
	sm      *lifecycle.StateMachine
	handler reaction.Handler
	cancel  context.CancelFunc
}

func newReactionRecord(spec model.ReactionSpec) *reactionRecord {
	rec := &reactionRecord{spec: spec, sm: lifecycle.NewStateMachine()}
	rec.sm.OnChange(func(state model.ComponentState) { metrics.SetComponentState(model.KindReaction, spec.ID, state) })
	return rec
}

// ComponentInfo is the read-only view the API/CLI layer renders for
// list/get (spec §4.2, §6.3).
type ComponentInfo struct {
	Kind  model.ComponentKind `json:"kind"`
	ID    string               `json:"id"`
	State model.ComponentState `json:"state"`
}

// orderedSourceIDs, orderedQueryIDs and orderedReactionIDs return each
// kind's ids in insertion order is not preserved by Go maps, so the
// registry additionally tracks creation order explicitly.
func (r *Registry) orderedSourceIDs() []string   { return append([]string(nil), r.sourceOrder...) }
func (r *Registry) orderedQueryIDs() []string     { return append([]string(nil), r.queryOrder...) }
func (r *Registry) orderedReactionIDs() []string  { return append([]string(nil), r.reactionOrder...) }
