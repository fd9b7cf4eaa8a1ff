package channels

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
)

func testLog() *logging.Logger { return logging.NewDefault("test") }

func TestDataRouterDeliversInFIFOOrder(t *testing.T) {
	r := NewDataRouter(10, testLog())
	ch := r.Register("recv", 0)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ev := model.ChangeEvent{SourceID: "s", Position: int64(i)}
		require.NoError(t, r.Publish(ctx, "recv", DataMessage{Change: &ev}))
	}

	for i := 0; i < 5; i++ {
		msg := <-ch
		assert.EqualValues(t, i, msg.Change.Position)
	}
}

func TestDataRouterPublishToUnknownReceiverErrors(t *testing.T) {
	r := NewDataRouter(10, testLog())
	err := r.Publish(context.Background(), "nobody", DataMessage{})
	assert.Error(t, err)
}

func TestDataRouterBackpressureBlocksUntilDrained(t *testing.T) {
	r := NewDataRouter(1, testLog())
	ch := r.Register("recv", 1)
	ctx := context.Background()

	require.NoError(t, r.Publish(ctx, "recv", DataMessage{}))

	delivered := make(chan struct{})
	go func() {
		_ = r.Publish(ctx, "recv", DataMessage{})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("expected second publish to block while buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	<-ch // drain one slot
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected blocked publish to complete once buffer drained")
	}
}

func TestDataRouterTryPublishNonBlockingWhenFull(t *testing.T) {
	r := NewDataRouter(1, testLog())
	r.Register("recv", 1)

	delivered, err := r.TryPublish("recv", DataMessage{})
	require.NoError(t, err)
	assert.True(t, delivered)

	delivered, err = r.TryPublish("recv", DataMessage{})
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestDataRouterUnregisterClearsQueueDepth(t *testing.T) {
	r := NewDataRouter(10, testLog())
	r.Register("recv", 0)
	assert.Equal(t, 0, r.QueueDepth("recv"))
	r.Unregister("recv")
	assert.Equal(t, 0, r.QueueDepth("recv")) // unknown receiver reports 0, not a panic
}
