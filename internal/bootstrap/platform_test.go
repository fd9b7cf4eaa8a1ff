package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlatformProviderRequiresReadAllURL(t *testing.T) {
	_, err := newPlatformProvider(nil)
	assert.Error(t, err)
}

func TestJoinLabels(t *testing.T) {
	assert.Equal(t, "", joinLabels(nil))
	assert.Equal(t, "A", joinLabels([]string{"A"}))
	assert.Equal(t, "A,B", joinLabels([]string{"A", "B"}))
}

func TestPlatformProviderStreamsRecordsFromReadAllResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"1","labels":["Item"],"properties":{"v":1}}]}`))
	}))
	defer srv.Close()

	p, err := newPlatformProvider(map[string]any{"read_all_url": srv.URL})
	require.NoError(t, err)

	inserts, results, errs := p.Stream(context.Background(), Request{})
	var ids []string
	for ins := range inserts {
		ids = append(ids, ins.Element.ID)
	}
	res := <-results
	assert.False(t, res.HasWatermark)
	_, open := <-errs
	assert.False(t, open)
	assert.Equal(t, []string{"1"}, ids)
}

func TestPlatformProviderSurfacesHTTPError(t *testing.T) {
	p, err := newPlatformProvider(map[string]any{"read_all_url": "http://127.0.0.1:1"})
	require.NoError(t, err)

	inserts, _, errs := p.Stream(context.Background(), Request{})
	for range inserts {
	}
	err = <-errs
	assert.Error(t, err)
}
