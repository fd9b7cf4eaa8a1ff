package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "drasi-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidDocument(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
sources:
  - id: s1
    kind: mock
queries:
  - id: q1
    query_text: "MATCH (i:Item) RETURN i.id AS id"
    sources: [s1]
reactions:
  - id: r1
    kind: log
    queries: [q1]
`)
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, doc.Server.Port)
	require.Len(t, doc.Sources, 1)
	assert.Equal(t, "s1", doc.Sources[0].ID)
}

func TestLoadExpandsEnvironmentReferences(t *testing.T) {
	t.Setenv("DRASI_TEST_PORT", "9999")
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: ${DRASI_TEST_PORT}
sources: []
queries: []
reactions: []
`)
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, doc.Server.Port)
}

func TestLoadFallsBackToDefaultWhenEnvUnset(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: ${DRASI_TEST_UNSET_PORT:-8123}
sources: []
queries: []
reactions: []
`)
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, doc.Server.Port)
}

func TestLoadRejectsUnsetEnvVarWithoutDefault(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
sources: []
queries: []
reactions:
  - id: r1
    kind: log
    queries: []
    properties:
      token: ${DRASI_TEST_DEFINITELY_UNSET_TOKEN}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, model.Is(err, model.ErrConfigParse))
}

func TestLoadReturnsLoadErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/drasi-config.yaml")
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadReturnsValidationErrorForInvalidDocument(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
sources: []
queries:
  - id: q1
    query_text: "MATCH (i:Item) RETURN i.id AS id"
    sources: [missing-source]
reactions: []
`)
	_, err := Load(path)
	require.Error(t, err)
}
