// Package lang compiles a small subset of Cypher (single/multi-label MATCH,
// a WHERE filter, and a RETURN projection) into a Plan the query runtime
// can evaluate against its element store. The real Cypher/GQL engine that
// the full continuous-query language supports is an external, swappable
// dependency (spec §1, "black box"); this package is the minimal
// in-process stand-in exercised by the runtime and its tests.
package lang

import "github.com/ruokun-niu/drasi-server/internal/model"

// NodeBinding is one `(var:Label)` node pattern in a MATCH clause.
type NodeBinding struct {
	Var    string
	Labels []string
}

// RelBinding is one `(a)-[:TYPE]->(b)` relation pattern in a MATCH clause.
type RelBinding struct {
	Var       string
	Types     []string
	FromVar   string
	ToVar     string
	Direction Direction
}

// Direction of a relation pattern.
type Direction int

const (
	DirOutgoing Direction = iota
	DirIncoming
	DirEither
)

// Projection is one `RETURN expr AS alias` item.
type Projection struct {
	Alias string
	Expr  string // gval expression text, evaluated against bound variables
}

// Plan is a compiled query: a pattern to match, an optional filter, and a
// RETURN projection. The runtime evaluates it against its ElementStore on
// every affected change (spec §4.4 step 3).
type Plan interface {
	// Nodes returns the node bindings this plan matches.
	Nodes() []NodeBinding
	// Relations returns the relation bindings this plan matches.
	Relations() []RelBinding
	// Evaluate runs the full pattern match against store (and joins, for
	// synthetic join specs), returning the current result rows.
	Evaluate(lookup ElementLookup) ([]model.Row, error)
}

// ElementLookup is the read-only view of runtime state a Plan evaluates
// against: every element currently tracked, and the synthetic join index.
type ElementLookup interface {
	ElementsByLabel(label string) []model.Element
	Element(id string) (model.Element, bool)
	JoinPartners(joinID, label string, el model.Element) []model.Element
}
