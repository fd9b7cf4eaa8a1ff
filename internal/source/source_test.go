package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUnknownKindReturnsUnknownKindError(t *testing.T) {
	_, err := Build("not-a-real-kind", "s1", nil)
	require.Error(t, err)
	var unknownErr *UnknownKindError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestBuildKnownKindResolvesRegisteredFactory(t *testing.T) {
	s, err := Build("mock", "s1", nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestKnownKindReflectsRegistry(t *testing.T) {
	assert.True(t, KnownKind("mock"))
	assert.False(t, KnownKind("not-a-real-kind"))
}
