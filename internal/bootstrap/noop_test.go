package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderCompletesImmediatelyWithoutData(t *testing.T) {
	p, err := newNoopProvider(nil)
	require.NoError(t, err)

	inserts, results, errs := p.Stream(context.Background(), Request{})

	_, open := <-inserts
	assert.False(t, open)

	res, open := <-results
	require.True(t, open)
	assert.False(t, res.HasWatermark)

	_, open = <-errs
	assert.False(t, open)
}
