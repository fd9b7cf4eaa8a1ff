package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func testLogger() *logging.Logger {
	return logging.NewDefault("test")
}

func buildRuntime(t *testing.T, queryText string) *Runtime {
	t.Helper()
	rt, err := Build(model.QuerySpec{ID: "q1", QueryText: queryText}, testLogger())
	require.NoError(t, err)
	return rt
}

func insertEvent(id string, label string, props model.Properties) model.ChangeEvent {
	return model.ChangeEvent{
		Op:           model.OpInsert,
		After:        &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: props},
		SourceID:     "s1",
		SourceTimeMs: time.Now().UnixMilli(),
	}
}

func updateEvent(id string, label string, before, after model.Properties) model.ChangeEvent {
	return model.ChangeEvent{
		Op:           model.OpUpdate,
		Before:       &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: before},
		After:        &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: after},
		SourceID:     "s1",
		SourceTimeMs: time.Now().UnixMilli(),
	}
}

func deleteEvent(id string, label string, props model.Properties) model.ChangeEvent {
	return model.ChangeEvent{
		Op:           model.OpDelete,
		Before:       &model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: props},
		SourceID:     "s1",
		SourceTimeMs: time.Now().UnixMilli(),
	}
}

// TestScenarioAInsertUpdateDelete exercises spec scenario A: a query over a
// single labeled node with a WHERE filter emits Added, Updated, and Deleted
// deltas for a matching row as it is inserted, mutated in place, and removed.
func TestScenarioAInsertUpdateDelete(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) WHERE i.price > 10 RETURN i.id AS id, i.price AS price")
	ctx := context.Background()

	rt.ProcessChange(ctx, insertEvent("1", "Item", model.Properties{"price": 12}))
	delta := requireDelta(t, rt)
	assert.Equal(t, model.DeltaChange, delta.Kind)
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "1", delta.Added[0]["id"])
	assert.EqualValues(t, 1, delta.Sequence)

	rt.ProcessChange(ctx, updateEvent("1", "Item", model.Properties{"price": 12}, model.Properties{"price": 20}))
	delta = requireDelta(t, rt)
	require.Len(t, delta.Updated, 1)
	assert.EqualValues(t, 20, delta.Updated[0].After["price"])
	assert.EqualValues(t, 2, delta.Sequence)

	rt.ProcessChange(ctx, deleteEvent("1", "Item", model.Properties{"price": 20}))
	delta = requireDelta(t, rt)
	require.Len(t, delta.Deleted, 1)
	assert.Equal(t, "1", delta.Deleted[0]["id"])
	assert.EqualValues(t, 3, delta.Sequence)
}

// TestWhereFilterSuppressesNonMatchingRows confirms a row that never
// satisfies WHERE produces no delta at all (spec §4.4 step 4: no-op updates
// emit nothing).
func TestWhereFilterSuppressesNonMatchingRows(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) WHERE i.price > 10 RETURN i.id AS id")
	ctx := context.Background()

	rt.ProcessChange(ctx, insertEvent("1", "Item", model.Properties{"price": 5}))
	select {
	case <-rt.Deltas():
		t.Fatal("expected no delta for a row that never matched WHERE")
	case <-time.After(20 * time.Millisecond):
	}
}

// TestBootstrapThenChangeEmitsControlThenChangeDeltas confirms the bootstrap
// completion delta carries DeltaControl and a strictly increasing sequence
// continues into steady-state change deltas.
func TestBootstrapThenChangeEmitsControlThenChangeDeltas(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) RETURN i.id AS id")
	ctx := context.Background()

	rt.BeginBootstrap()
	rt.ApplyBootstrapInsert(model.Element{Kind: model.ElementNode, ID: "1", Labels: []string{"Item"}, Properties: model.Properties{}})
	rt.EndBootstrap(ctx, time.Now().UnixMilli())

	bootstrapDelta := requireDelta(t, rt)
	assert.Equal(t, model.DeltaControl, bootstrapDelta.Kind)
	require.Len(t, bootstrapDelta.Added, 1)
	assert.EqualValues(t, 1, bootstrapDelta.Sequence)

	rt.ProcessChange(ctx, insertEvent("2", "Item", model.Properties{}))
	changeDelta := requireDelta(t, rt)
	assert.Equal(t, model.DeltaChange, changeDelta.Kind)
	assert.EqualValues(t, 2, changeDelta.Sequence)
}

// TestEventsDuringBootstrapDoNotEmit confirms change events arriving while
// bootstrapping is true are folded into state without a delta.
func TestEventsDuringBootstrapDoNotEmit(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) RETURN i.id AS id")
	ctx := context.Background()

	rt.BeginBootstrap()
	rt.ProcessChange(ctx, insertEvent("1", "Item", model.Properties{}))

	select {
	case <-rt.Deltas():
		t.Fatal("expected no delta while bootstrapping")
	case <-time.After(20 * time.Millisecond):
	}
}

// TestEvaluationErrorFailsTheQuery exercises the "Failure" edge case: an
// error raised (directly, or via the panic-recovery path) during pattern
// evaluation transitions the runtime into a permanent Failed state and
// further ProcessChange calls are no-ops.
func TestEvaluationErrorFailsTheQuery(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) WHERE i.missing.nested RETURN i.id AS id")
	ctx := context.Background()

	assert.False(t, rt.Failed())
	rt.ProcessChange(ctx, insertEvent("1", "Item", model.Properties{}))
	assert.True(t, rt.Failed())

	rt.ProcessChange(ctx, insertEvent("2", "Item", model.Properties{}))
	select {
	case <-rt.Deltas():
		t.Fatal("expected no further deltas once failed")
	case <-time.After(20 * time.Millisecond):
	}
}

// TestUpdateForUntrackedElementIsTreatedAsInsert covers the edge case where
// an Update arrives for an element the store never saw an Insert for.
func TestUpdateForUntrackedElementIsTreatedAsInsert(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) RETURN i.id AS id")
	ctx := context.Background()

	rt.ProcessChange(ctx, updateEvent("1", "Item", model.Properties{}, model.Properties{}))
	delta := requireDelta(t, rt)
	require.Len(t, delta.Added, 1)
	assert.Equal(t, "1", delta.Added[0]["id"])
}

// TestSnapshotReflectsCurrentResults exercises the Snapshot() read path used
// by get_query_results, independent from the ProcessChange/Deltas flow.
func TestSnapshotReflectsCurrentResults(t *testing.T) {
	rt := buildRuntime(t, "MATCH (i:Item) RETURN i.id AS id")
	ctx := context.Background()

	rt.ProcessChange(ctx, insertEvent("1", "Item", model.Properties{}))
	<-rt.Deltas()

	rows := rt.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0]["id"])
}

func requireDelta(t *testing.T, rt *Runtime) model.ResultDelta {
	t.Helper()
	select {
	case d := <-rt.Deltas():
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a delta")
		return model.ResultDelta{}
	}
}
