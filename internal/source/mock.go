package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("mock", newMockSource)
}

// MockSource is a programmatically driven source used by tests and by
// embedding callers that want to inject change events directly (spec
// scenario A uses this kind).
type MockSource struct {
	id string

	mu          sync.RWMutex
	sink        ChangeSink
	labelFilter map[string]bool
	running     bool
}

func newMockSource(id string, _ map[string]any) (Source, error) {
	return &MockSource{id: id}, nil
}

// AsMock type-asserts a Source back to *MockSource for test injection.
func AsMock(s Source) (*MockSource, bool) {
	m, ok := s.(*MockSource)
	return m, ok
}

func (m *MockSource) Start(ctx context.Context, labelFilter []string, sink ChangeSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
	m.labelFilter = toSet(labelFilter)
	m.running = true
	return nil
}

func (m *MockSource) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.sink = nil
	return nil
}

// BeginBootstrap returns an immediately-complete, empty session: MockSource
// carries no durable dataset of its own.
func (m *MockSource) BeginBootstrap(ctx context.Context, labelFilter []string, bufferSize int) (Session, error) {
	inserts := make(chan model.Element)
	complete := make(chan Completion, 1)
	close(inserts)
	complete <- Completion{}
	close(complete)
	return Session{Inserts: inserts, Complete: complete}, nil
}

// Inject delivers one change event as if it arrived from the external
// system, applying the label filter negotiated at Start.
func (m *MockSource) Inject(ctx context.Context, ev model.ChangeEvent) error {
	m.mu.RLock()
	sink, running, filter := m.sink, m.running, m.labelFilter
	m.mu.RUnlock()

	if !running || sink == nil {
		return fmt.Errorf("mock source %s not running", m.id)
	}
	if !matchesFilter(ev, filter) {
		return nil
	}
	return sink.PublishChange(ctx, ev)
}

func toSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}

func matchesFilter(ev model.ChangeEvent, filter map[string]bool) bool {
	if len(filter) == 0 {
		return true
	}
	var el *model.Element
	if ev.After != nil {
		el = ev.After
	} else {
		el = ev.Before
	}
	if el == nil {
		return true
	}
	for _, l := range el.Labels {
		if filter[l] {
			return true
		}
	}
	return false
}
