package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/channels"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/source"

	_ "github.com/ruokun-niu/drasi-server/internal/reaction" // registers "log"
	_ "github.com/ruokun-niu/drasi-server/internal/source"   // registers "mock"
)

func newTestRegistry() *Registry {
	log := logging.NewDefault("test")
	return New(
		channels.NewDataRouter(64, log),
		channels.NewBootstrapRouter(log),
		channels.NewSubscriptionRouter(log),
		nil, // no Persister: in-memory only
		log,
	)
}

func TestCreateSourceRejectsUnknownKind(t *testing.T) {
	r := newTestRegistry()
	err := r.CreateSource(model.SourceSpec{ID: "s1", Kind: "nonsense"})
	assert.Error(t, err)
	assert.True(t, model.Is(err, model.ErrConfigValidate))
}

func TestCreateSourceRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	err := r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"})
	assert.True(t, model.Is(err, model.ErrAlreadyExists))
}

func TestDeleteSourceRefusedWhileQueryDepends(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	require.NoError(t, r.CreateQuery(model.QuerySpec{
		ID: "q1", QueryText: "MATCH (i:Item) RETURN i.id AS id", Sources: []string{"s1"},
	}))

	err := r.DeleteSource(context.Background(), "s1")
	assert.True(t, model.Is(err, model.ErrHasDependents))
}

func TestDeleteSourceNotFound(t *testing.T) {
	r := newTestRegistry()
	err := r.DeleteSource(context.Background(), "missing")
	assert.True(t, model.Is(err, model.ErrNotFound))
}

// TestEndToEndSourceQueryReactionPipeline wires a mock source into a query
// into a log reaction and confirms an injected change event reaches the
// query as a result delta (spec scenario A/B's basic wiring, without
// asserting on captured log output).
func TestEndToEndSourceQueryReactionPipeline(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	require.NoError(t, r.CreateQuery(model.QuerySpec{
		ID:        "q1",
		QueryText: "MATCH (i:Item) RETURN i.id AS id",
		Sources:   []string{"s1"},
	}))
	require.NoError(t, r.CreateReaction(model.ReactionSpec{ID: "r1", Kind: "log", Queries: []string{"q1"}}))

	require.NoError(t, r.StartSource(ctx, "s1"))
	require.NoError(t, r.StartQuery(ctx, "q1"))
	require.NoError(t, r.StartReaction(ctx, "r1"))

	info, err := r.GetSource("s1")
	require.NoError(t, err)
	assert.Equal(t, model.StateRunning, info.State)

	rec := r.queries["q1"]
	require.NotNil(t, rec)

	mockSrc, ok := source.AsMock(r.sources["s1"].instance)
	require.True(t, ok)
	require.NoError(t, mockSrc.Inject(ctx, model.ChangeEvent{
		Op:           model.OpInsert,
		After:        &model.Element{Kind: model.ElementNode, ID: "1", Labels: []string{"Item"}, Properties: model.Properties{}},
		SourceID:     "s1",
		SourceTimeMs: time.Now().UnixMilli(),
	}))

	require.Eventually(t, func() bool {
		return len(rec.runtime.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, r.StopReaction(ctx, "r1"))
	require.NoError(t, r.StopQuery(ctx, "q1"))
	require.NoError(t, r.StopSource(ctx, "s1"))
}

// TestStartQueryFailsFastWhenSourceFailed exercises the readiness-wait
// short-circuit: a query whose declared source is Failed never blocks for
// the full timeout.
func TestStartQueryFailsFastWhenSourceFailed(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	require.NoError(t, r.CreateQuery(model.QuerySpec{
		ID: "q1", QueryText: "MATCH (i:Item) RETURN i.id AS id", Sources: []string{"s1"},
	}))

	r.sources["s1"].sm.Force(model.StateFailed)

	start := time.Now()
	err := r.StartQuery(ctx, "q1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReadOnlyPersisterBlocksMutations(t *testing.T) {
	log := logging.NewDefault("test")
	r := New(
		channels.NewDataRouter(64, log),
		channels.NewBootstrapRouter(log),
		channels.NewSubscriptionRouter(log),
		&fakeReadOnlyPersister{},
		log,
	)

	err := r.CreateSource(model.SourceSpec{ID: "s1", Kind: "mock"})
	assert.True(t, model.Is(err, model.ErrReadOnly))
}

type fakeReadOnlyPersister struct{}

func (f *fakeReadOnlyPersister) ReadOnly() bool            { return true }
func (f *fakeReadOnlyPersister) PersistenceEnabled() bool  { return true }
func (f *fakeReadOnlyPersister) SaveSource(model.SourceSpec) error     { return nil }
func (f *fakeReadOnlyPersister) DeleteSource(string) error             { return nil }
func (f *fakeReadOnlyPersister) SaveQuery(model.QuerySpec) error       { return nil }
func (f *fakeReadOnlyPersister) DeleteQuery(string) error              { return nil }
func (f *fakeReadOnlyPersister) SaveReaction(model.ReactionSpec) error { return nil }
func (f *fakeReadOnlyPersister) DeleteReaction(string) error           { return nil }
