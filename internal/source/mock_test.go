package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

type capturingSink struct {
	events []model.ChangeEvent
}

func (s *capturingSink) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func TestMockSourceInjectRequiresRunning(t *testing.T) {
	m := &MockSource{}
	err := m.Inject(context.Background(), model.ChangeEvent{Op: model.OpInsert, After: &model.Element{ID: "1"}})
	assert.Error(t, err)
}

func TestMockSourceInjectDeliversToSinkWhenRunning(t *testing.T) {
	m := &MockSource{}
	sink := &capturingSink{}
	require.NoError(t, m.Start(context.Background(), nil, sink))

	ev := model.ChangeEvent{Op: model.OpInsert, After: &model.Element{ID: "1", Labels: []string{"Item"}}}
	require.NoError(t, m.Inject(context.Background(), ev))
	require.Len(t, sink.events, 1)
	assert.Equal(t, "1", sink.events[0].After.ID)
}

func TestMockSourceInjectFiltersByLabel(t *testing.T) {
	m := &MockSource{}
	sink := &capturingSink{}
	require.NoError(t, m.Start(context.Background(), []string{"Item"}, sink))

	require.NoError(t, m.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "1", Labels: []string{"Widget"}},
	}))
	assert.Empty(t, sink.events)

	require.NoError(t, m.Inject(context.Background(), model.ChangeEvent{
		Op: model.OpInsert, After: &model.Element{ID: "2", Labels: []string{"Item"}},
	}))
	assert.Len(t, sink.events, 1)
}

func TestMockSourceStopClearsSinkAndRejectsInject(t *testing.T) {
	m := &MockSource{}
	sink := &capturingSink{}
	require.NoError(t, m.Start(context.Background(), nil, sink))
	require.NoError(t, m.Stop(context.Background()))

	err := m.Inject(context.Background(), model.ChangeEvent{Op: model.OpInsert, After: &model.Element{ID: "1"}})
	assert.Error(t, err)
}

func TestMockSourceBeginBootstrapIsImmediatelyEmptyAndComplete(t *testing.T) {
	m := &MockSource{}
	session, err := m.BeginBootstrap(context.Background(), nil, 0)
	require.NoError(t, err)

	_, open := <-session.Inserts
	assert.False(t, open)

	done := <-session.Complete
	assert.NoError(t, done.Err)
}

func TestAsMockTypeAssertion(t *testing.T) {
	var s Source = &MockSource{id: "m1"}
	m, ok := AsMock(s)
	require.True(t, ok)
	assert.Equal(t, "m1", m.id)

	_, ok = AsMock(fakeSource{})
	assert.False(t, ok)
}

type fakeSource struct{}

func (fakeSource) Start(context.Context, []string, ChangeSink) error { return nil }
func (fakeSource) Stop(context.Context) error                        { return nil }
func (fakeSource) BeginBootstrap(context.Context, []string, int) (Session, error) {
	return Session{}, ErrNoNativeProvider
}
