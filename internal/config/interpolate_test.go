package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookup(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestInterpolateSubstitutesKnownVar(t *testing.T) {
	out, err := interpolate("host: ${HOST}", fakeLookup(map[string]string{"HOST": "db.internal"}))
	require.NoError(t, err)
	assert.Equal(t, "host: db.internal", out)
}

func TestInterpolateUsesDefaultWhenUnset(t *testing.T) {
	out, err := interpolate("port: ${PORT:-5432}", fakeLookup(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, "port: 5432", out)
}

func TestInterpolateKnownVarOverridesDefault(t *testing.T) {
	out, err := interpolate("port: ${PORT:-5432}", fakeLookup(map[string]string{"PORT": "6543"}))
	require.NoError(t, err)
	assert.Equal(t, "port: 6543", out)
}

func TestInterpolateUnsetWithoutDefaultErrors(t *testing.T) {
	_, err := interpolate("token: ${TOKEN}", fakeLookup(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN")
}

func TestInterpolateReportsEveryUnsetNameWithoutDefault(t *testing.T) {
	_, err := interpolate("${A}-${B}", fakeLookup(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A")
	assert.Contains(t, err.Error(), "B")
}

func TestInterpolateMultipleReferences(t *testing.T) {
	out, err := interpolate("${A}-${B:-b}-${A}", fakeLookup(map[string]string{"A": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "x-b-x", out)
}

func TestInterpolateLeavesPlainTextAlone(t *testing.T) {
	out, err := interpolate("no refs here", fakeLookup(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, "no refs here", out)
}
