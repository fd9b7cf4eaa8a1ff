package reaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/resilience"
)

func TestNewHTTPReactionRequiresURL(t *testing.T) {
	_, err := newHTTPReaction("h1", nil)
	assert.Error(t, err)
}

func TestHTTPReactionDeliversDeltaAsJSONPost(t *testing.T) {
	var gotBody model.ResultDelta
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, err := newHTTPReaction("h1", map[string]any{"url": srv.URL})
	require.NoError(t, err)
	hr := h.(*HTTPReaction)
	hr.cfg.Retry = resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	require.NoError(t, hr.deliver(context.Background(), model.ResultDelta{QueryID: "q1", Sequence: 7}))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "q1", gotBody.QueryID)
	assert.EqualValues(t, 7, gotBody.Sequence)
}

func TestHTTPReactionRetriesOnServerError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h, err := newHTTPReaction("h1", map[string]any{"url": srv.URL})
	require.NoError(t, err)
	hr := h.(*HTTPReaction)
	hr.cfg.Retry = resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	require.NoError(t, hr.deliver(context.Background(), model.ResultDelta{QueryID: "q1"}))
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}
