package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Store persists successful registry mutations back to the configuration
// file (spec §4.5.3): single-writer serialized, atomic via temp-file +
// rename so a crash mid-write never corrupts the file on disk.
type Store struct {
	mu       sync.Mutex
	path     string
	enabled  bool
	readOnly bool
	doc      *Document
}

// NewStore builds a Store from an already-loaded Document.
func NewStore(doc *Document) *Store {
	return &Store{
		path:     doc.Persistence.Path,
		enabled:  doc.Persistence.Enabled,
		readOnly: doc.Persistence.ReadOnly,
		doc:      doc,
	}
}

func (s *Store) ReadOnly() bool            { return s.readOnly }
func (s *Store) PersistenceEnabled() bool { return s.enabled }

func (s *Store) SaveSource(spec model.SourceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Sources {
		if existing.ID == spec.ID {
			s.doc.Sources[i] = spec
			return s.flush()
		}
	}
	s.doc.Sources = append(s.doc.Sources, spec)
	return s.flush()
}

func (s *Store) DeleteSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Sources {
		if existing.ID == id {
			s.doc.Sources = append(s.doc.Sources[:i], s.doc.Sources[i+1:]...)
			break
		}
	}
	return s.flush()
}

func (s *Store) SaveQuery(spec model.QuerySpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Queries {
		if existing.ID == spec.ID {
			s.doc.Queries[i] = spec
			return s.flush()
		}
	}
	s.doc.Queries = append(s.doc.Queries, spec)
	return s.flush()
}

func (s *Store) DeleteQuery(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Queries {
		if existing.ID == id {
			s.doc.Queries = append(s.doc.Queries[:i], s.doc.Queries[i+1:]...)
			break
		}
	}
	return s.flush()
}

func (s *Store) SaveReaction(spec model.ReactionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Reactions {
		if existing.ID == spec.ID {
			s.doc.Reactions[i] = spec
			return s.flush()
		}
	}
	s.doc.Reactions = append(s.doc.Reactions, spec)
	return s.flush()
}

func (s *Store) DeleteReaction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.doc.Reactions {
		if existing.ID == id {
			s.doc.Reactions = append(s.doc.Reactions[:i], s.doc.Reactions[i+1:]...)
			break
		}
	}
	return s.flush()
}

// flush serializes the current document and atomically replaces the file
// on disk. Caller must hold s.mu.
func (s *Store) flush() error {
	if !s.enabled {
		return nil
	}
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".drasi-config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename config file into place: %w", err)
	}
	return nil
}
