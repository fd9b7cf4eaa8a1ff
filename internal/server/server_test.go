package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruokun-niu/drasi-server/internal/config"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"

	_ "github.com/ruokun-niu/drasi-server/internal/reaction" // registers "log"
	_ "github.com/ruokun-niu/drasi-server/internal/source"   // registers "mock"
)

func testDoc(port int) *config.Document {
	return &config.Document{
		Server:  config.ServerSettings{Host: "127.0.0.1", Port: port},
		Logging: config.LoggingSettings{Level: "info", Format: "text", Output: "stdout"},
		Routers: config.RouterSettings{DefaultDispatchBufferCapacity: 64},
		Sources: []model.SourceSpec{{ID: "s1", Kind: "mock"}},
		Queries: []model.QuerySpec{{
			ID: "q1", QueryText: "MATCH (i:Item) RETURN i.id AS id", Sources: []string{"s1"},
		}},
		Reactions: []model.ReactionSpec{{ID: "r1", Kind: "log", Queries: []string{"q1"}}},
	}
}

func TestLoadComponentsRegistersEveryDeclaredComponent(t *testing.T) {
	s := New(testDoc(0), logging.NewDefault("test"))
	require.NoError(t, s.LoadComponents())

	assert.Len(t, s.Registry().ListSources(), 1)
	assert.Len(t, s.Registry().ListQueries(), 1)
	assert.Len(t, s.Registry().ListReactions(), 1)
}

func TestLoadComponentsFailsFastOnInvalidSourceKind(t *testing.T) {
	doc := testDoc(0)
	doc.Sources[0].Kind = "not-a-real-kind"
	s := New(doc, logging.NewDefault("test"))

	err := s.LoadComponents()
	assert.Error(t, err)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	s := New(testDoc(0), logging.NewDefault("test"))
	require.NoError(t, s.LoadComponents())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)

	for _, info := range s.Registry().ListSources() {
		assert.Equal(t, model.StateStopped, info.State)
	}
}

func TestExitCodeForMapsErrorsToSpecExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitCodeFor(nil))
	assert.Equal(t, 2, ExitCodeFor(&config.LoadError{Err: errors.New("bad yaml")}))
	assert.Equal(t, 2, ExitCodeFor(model.NewError(model.ErrConfigValidate, "bad config")))
	assert.Equal(t, 3, ExitCodeFor(errors.New("anything else")))
}
