package query

import (
	"fmt"
	"sync"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// joinIndex maintains, for each declared model.JoinSpec, a bidirectional
// mapping from (label, property-value) to the set of element ids sharing
// that value — the synthetic edges the runtime materialises during
// pattern evaluation (spec §4.4 state item 2).
type joinIndex struct {
	mu sync.RWMutex

	specs map[string]model.JoinSpec             // join id -> spec
	index map[string]map[string]map[string]bool // join id -> value -> element id -> true
}

func newJoinIndex(specs []model.JoinSpec) *joinIndex {
	j := &joinIndex{
		specs: make(map[string]model.JoinSpec, len(specs)),
		index: make(map[string]map[string]map[string]bool, len(specs)),
	}
	for _, s := range specs {
		j.specs[s.ID] = s
		j.index[s.ID] = make(map[string]map[string]bool)
	}
	return j
}

// keyFor returns the key a joinSpec reads for this element's label,
// along with whether the spec has a matching key for that label.
func (j *joinIndex) keyFor(spec model.JoinSpec, el model.Element) (propertyValue string, ok bool) {
	for _, k := range spec.Keys {
		if !el.HasLabel(k.Label) {
			continue
		}
		v, present := el.Properties[k.Property]
		if !present {
			return "", false
		}
		return fmt.Sprint(v), true
	}
	return "", false
}

// update adds this element's entries to every join spec it participates
// in. Entries for an older version of the element are not removed here;
// call forget with that version first.
func (j *joinIndex) update(el model.Element) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, spec := range j.specs {
		value, ok := j.keyFor(spec, el)
		if !ok {
			continue
		}
		bucket, exists := j.index[id][value]
		if !exists {
			bucket = make(map[string]bool)
			j.index[id][value] = bucket
		}
		bucket[el.ID] = true
	}
}

func (j *joinIndex) forget(el model.Element) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, spec := range j.specs {
		value, ok := j.keyFor(spec, el)
		if !ok {
			continue
		}
		if bucket, exists := j.index[id][value]; exists {
			delete(bucket, el.ID)
		}
	}
}

// partners returns every element of the given label sharing a join value
// with el under the named join spec.
func (j *joinIndex) partners(joinID, label string, el model.Element, store *elementStore) []model.Element {
	j.mu.RLock()
	spec, ok := j.specs[joinID]
	if !ok {
		j.mu.RUnlock()
		return nil
	}
	value, ok := j.keyFor(spec, el)
	if !ok {
		j.mu.RUnlock()
		return nil
	}
	bucket := j.index[joinID][value]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	j.mu.RUnlock()

	var out []model.Element
	for _, id := range ids {
		if candidate, found := store.Element(id); found && (label == "" || candidate.HasLabel(label)) && candidate.ID != el.ID {
			out = append(out, candidate)
		}
	}
	return out
}
