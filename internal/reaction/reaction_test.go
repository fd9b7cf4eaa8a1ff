package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUnknownKindReturnsUnknownKindError(t *testing.T) {
	_, err := Build("not-a-real-kind", "r1", nil)
	require.Error(t, err)
	var unknownErr *UnknownKindError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestBuildKnownKindResolvesRegisteredFactory(t *testing.T) {
	h, err := Build("log", "r1", nil)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestKnownKindReflectsRegistry(t *testing.T) {
	assert.True(t, KnownKind("log"))
	assert.False(t, KnownKind("not-a-real-kind"))
}
