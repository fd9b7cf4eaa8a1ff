package query

import (
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/query/lang"
)

// elementStore is the element store of spec §4.4 state item 1: a mapping
// element_id → current properties for every node/relation that has ever
// been inserted and not yet deleted, indexed by label for pattern lookup.
type elementStore struct {
	mu      sync.RWMutex
	byID    map[string]model.Element
	byLabel map[string]map[string]struct{} // label -> set of element ids
}

func newElementStore() *elementStore {
	return &elementStore{
		byID:    make(map[string]model.Element),
		byLabel: make(map[string]map[string]struct{}),
	}
}

func (s *elementStore) upsert(el model.Element) (old model.Element, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed = s.byID[el.ID]
	if existed {
		s.unindexLabels(old)
	}
	s.byID[el.ID] = el
	s.indexLabels(el)
	return old, existed
}

func (s *elementStore) remove(id string) (model.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.byID[id]
	if !existed {
		return model.Element{}, false
	}
	s.unindexLabels(old)
	delete(s.byID, id)
	return old, true
}

func (s *elementStore) indexLabels(el model.Element) {
	for _, label := range el.Labels {
		set, ok := s.byLabel[label]
		if !ok {
			set = make(map[string]struct{})
			s.byLabel[label] = set
		}
		set[el.ID] = struct{}{}
	}
}

func (s *elementStore) unindexLabels(el model.Element) {
	for _, label := range el.Labels {
		if set, ok := s.byLabel[label]; ok {
			delete(set, el.ID)
		}
	}
}

// ElementsByLabel implements lang.ElementLookup. An empty label returns
// every element in the store (an unlabeled node pattern).
func (s *elementStore) ElementsByLabel(label string) []model.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if label == "" {
		out := make([]model.Element, 0, len(s.byID))
		for _, el := range s.byID {
			out = append(out, el)
		}
		return out
	}
	ids := s.byLabel[label]
	out := make([]model.Element, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

// Element implements lang.ElementLookup.
func (s *elementStore) Element(id string) (model.Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.byID[id]
	return el, ok
}

var _ lang.ElementLookup = (*runtimeLookup)(nil)

// runtimeLookup adapts elementStore + joinIndex to lang.ElementLookup.
type runtimeLookup struct {
	store *elementStore
	joins *joinIndex
}

func (l *runtimeLookup) ElementsByLabel(label string) []model.Element { return l.store.ElementsByLabel(label) }
func (l *runtimeLookup) Element(id string) (model.Element, bool)     { return l.store.Element(id) }
func (l *runtimeLookup) JoinPartners(joinID, label string, el model.Element) []model.Element {
	return l.joins.partners(joinID, label, el, l.store)
}
