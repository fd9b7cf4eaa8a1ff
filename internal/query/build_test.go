package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func TestBuildRejectsGQLQueryLanguage(t *testing.T) {
	spec := model.QuerySpec{ID: "q1", QueryText: "MATCH (i:Item) RETURN i.id AS id", QueryLanguage: model.LangGQL}
	_, err := Build(spec, testLogger())
	assert.Error(t, err)
}

func TestBuildPropagatesCompileErrorWithQueryID(t *testing.T) {
	spec := model.QuerySpec{ID: "bad-query", QueryText: "RETURN 1"}
	_, err := Build(spec, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-query")
}

func TestBuildReturnsRuntimeForValidCypher(t *testing.T) {
	spec := model.QuerySpec{ID: "q1", QueryText: "MATCH (i:Item) RETURN i.id AS id"}
	rt, err := Build(spec, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, rt)
}
