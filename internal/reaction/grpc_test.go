package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func TestJSONCodecRoundTripsResultDelta(t *testing.T) {
	c := jsonCodec{}
	in := model.ResultDelta{QueryID: "q1", Sequence: 5, Added: []model.Row{{"id": "1"}}}

	data, err := c.Marshal(&in)
	require.NoError(t, err)

	var out model.ResultDelta
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in.QueryID, out.QueryID)
	assert.Equal(t, in.Sequence, out.Sequence)
	assert.Equal(t, "json", c.Name())
}

func TestNewGRPCReactionDefaultsMethodName(t *testing.T) {
	h, err := newGRPCReaction("g1", nil)
	require.NoError(t, err)
	g := h.(*GRPCReaction)
	assert.Equal(t, "/drasi.changes.v1.Feed/Stream", g.cfg.Method)
}

func TestGRPCReactionBroadcastDropsForSlowClient(t *testing.T) {
	h, err := newGRPCReaction("g1", nil)
	require.NoError(t, err)
	g := h.(*GRPCReaction)

	ch := make(chan model.ResultDelta) // unbuffered, never drained
	g.mu.Lock()
	g.clients[ch] = struct{}{}
	g.mu.Unlock()

	assert.NotPanics(t, func() {
		g.broadcast(model.ResultDelta{Sequence: 1})
	})
}
