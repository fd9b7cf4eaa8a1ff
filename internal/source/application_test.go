package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func TestApplicationSourceInjectRequiresRunning(t *testing.T) {
	s, err := newApplicationSource("a1", nil)
	require.NoError(t, err)
	err = s.(*ApplicationSource).Inject(context.Background(), model.ChangeEvent{Op: model.OpInsert, After: &model.Element{ID: "1"}})
	assert.Error(t, err)
}

func TestApplicationSourceRemembersInsertsForReplay(t *testing.T) {
	h, err := newApplicationSource("a1", nil)
	require.NoError(t, err)
	a := h.(*ApplicationSource)
	sink := &capturingSink{}
	require.NoError(t, a.Start(context.Background(), nil, sink))

	require.NoError(t, a.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "1", Labels: []string{"Item"}},
	}))
	require.NoError(t, a.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "2", Labels: []string{"Item"}},
	}))
	require.Len(t, sink.events, 2)

	session, err := a.BeginBootstrap(context.Background(), nil, 0)
	require.NoError(t, err)

	var ids []string
	for el := range session.Inserts {
		ids = append(ids, el.ID)
	}
	done := <-session.Complete
	assert.NoError(t, done.Err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
}

func TestApplicationSourceBeginBootstrapFiltersByLabel(t *testing.T) {
	h, err := newApplicationSource("a1", nil)
	require.NoError(t, err)
	a := h.(*ApplicationSource)
	sink := &capturingSink{}
	require.NoError(t, a.Start(context.Background(), nil, sink))

	require.NoError(t, a.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "1", Labels: []string{"Item"}},
	}))
	require.NoError(t, a.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "2", Labels: []string{"Widget"}},
	}))

	session, err := a.BeginBootstrap(context.Background(), []string{"Widget"}, 0)
	require.NoError(t, err)

	var ids []string
	for el := range session.Inserts {
		ids = append(ids, el.ID)
	}
	<-session.Complete
	assert.Equal(t, []string{"2"}, ids)
}

func TestApplicationSourceStopClearsSink(t *testing.T) {
	h, err := newApplicationSource("a1", nil)
	require.NoError(t, err)
	a := h.(*ApplicationSource)
	sink := &capturingSink{}
	require.NoError(t, a.Start(context.Background(), nil, sink))
	require.NoError(t, a.Stop(context.Background()))

	err = a.Inject(context.Background(), model.ChangeEvent{Op: model.OpInsert, After: &model.Element{ID: "1"}})
	assert.Error(t, err)
}

func TestApplicationSourceBootstrapRespectsContextCancellation(t *testing.T) {
	h, err := newApplicationSource("a1", nil)
	require.NoError(t, err)
	a := h.(*ApplicationSource)
	sink := &capturingSink{}
	require.NoError(t, a.Start(context.Background(), nil, sink))
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Inject(context.Background(), model.ChangeEvent{
			Op: model.OpInsert, After: &model.Element{ID: string(rune('a' + i))},
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	// bufferSize=1 against 5 buffered elements: the replay goroutine blocks
	// sending the second element until either it's drained or ctx is done.
	session, err := a.BeginBootstrap(ctx, nil, 1)
	require.NoError(t, err)
	<-session.Inserts // drain exactly one, leaving the goroutine blocked on the next send
	cancel()

	select {
	case done := <-session.Complete:
		assert.ErrorIs(t, done.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("expected bootstrap session to complete after cancellation")
	}
}
