package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// resultMultiset is the result multiset of spec §4.4 state item 4: a
// mapping from a row's identity to (row, multiplicity), giving O(1)
// classification of a candidate row as new, duplicate, or a tombstone.
//
// Identity is the row's "id" field when the RETURN projection carries one
// (the common case: queries return the matched element's id alongside its
// other properties, as in spec scenario A), falling back to the full
// canonical row hash otherwise. Using the id field as identity is what
// lets a same-identity row with changed non-key fields become an Updated
// delta instead of a Deleted+Added pair, matching spec §4.4 step 4.
type resultMultiset struct {
	entries map[string]*multisetEntry
}

type multisetEntry struct {
	row          model.Row
	multiplicity int
}

func newResultMultiset() *resultMultiset {
	return &resultMultiset{entries: make(map[string]*multisetEntry)}
}

func rowIdentity(row model.Row) string {
	if id, ok := row["id"]; ok {
		return fmt.Sprint(id)
	}
	return rowKey(row)
}

// rowKey produces a canonical, order-independent hash of a row's fields.
func rowKey(row model.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, row[k])
	}
	return b.String()
}

func rowsEqual(a, b model.Row) bool {
	return rowKey(a) == rowKey(b)
}

// reconcile diffs a freshly recomputed result set against the held
// multiset, returning the real added/updated/deleted rows and leaving the
// multiset updated to reflect newRows (spec §4.4 step 4).
func (m *resultMultiset) reconcile(newRows []model.Row) (added []model.Row, updated []model.UpdatedRow, deleted []model.Row) {
	seen := make(map[string]bool, len(newRows))

	for _, row := range newRows {
		identity := rowIdentity(row)
		seen[identity] = true

		existing, ok := m.entries[identity]
		switch {
		case !ok:
			m.entries[identity] = &multisetEntry{row: row, multiplicity: 1}
			added = append(added, row)
		case !rowsEqual(existing.row, row):
			updated = append(updated, model.UpdatedRow{Before: existing.row, After: row})
			existing.row = row
		default:
			existing.multiplicity++
		}
	}

	for identity, entry := range m.entries {
		if seen[identity] {
			continue
		}
		deleted = append(deleted, entry.row)
		delete(m.entries, identity)
	}

	return added, updated, deleted
}

func (m *resultMultiset) snapshot() []model.Row {
	rows := make([]model.Row, 0, len(m.entries))
	for _, e := range m.entries {
		rows = append(rows, e.row)
	}
	return rows
}
