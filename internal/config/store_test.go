package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func TestStoreSaveSourcePersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drasi-config.yaml")

	doc := defaults()
	doc.Persistence.Enabled = true
	doc.Persistence.Path = path

	s := NewStore(doc)
	require.NoError(t, s.SaveSource(model.SourceSpec{ID: "s1", Kind: "mock"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk Document
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	require.Len(t, onDisk.Sources, 1)
	assert.Equal(t, "s1", onDisk.Sources[0].ID)
}

func TestStoreSaveSourceUpdatesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	doc := defaults()
	doc.Persistence.Enabled = true
	doc.Persistence.Path = filepath.Join(dir, "cfg.yaml")

	s := NewStore(doc)
	require.NoError(t, s.SaveSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	require.NoError(t, s.SaveSource(model.SourceSpec{ID: "s1", Kind: "http"}))

	assert.Len(t, doc.Sources, 1)
	assert.Equal(t, "http", doc.Sources[0].Kind)
}

func TestStoreDeleteSourceRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	doc := defaults()
	doc.Persistence.Enabled = true
	doc.Persistence.Path = filepath.Join(dir, "cfg.yaml")

	s := NewStore(doc)
	require.NoError(t, s.SaveSource(model.SourceSpec{ID: "s1", Kind: "mock"}))
	require.NoError(t, s.DeleteSource("s1"))
	assert.Empty(t, doc.Sources)
}

func TestStoreDisabledPersistenceSkipsDiskWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	doc := defaults()
	doc.Persistence.Enabled = false
	doc.Persistence.Path = path

	s := NewStore(doc)
	require.NoError(t, s.SaveSource(model.SourceSpec{ID: "s1", Kind: "mock"}))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreReadOnlyAndPersistenceEnabledFlags(t *testing.T) {
	doc := defaults()
	doc.Persistence.Enabled = true
	doc.Persistence.ReadOnly = true
	s := NewStore(doc)
	assert.True(t, s.ReadOnly())
	assert.True(t, s.PersistenceEnabled())
}
