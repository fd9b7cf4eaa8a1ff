package lang

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/gval"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// Compile parses the supported Cypher subset — one MATCH clause (nodes and
// optional relations), an optional WHERE clause, and a RETURN clause — into
// a Plan. ORDER BY / LIMIT / TOP are rejected, matching the engine's
// inherited language limitations (spec §4.4).
func Compile(queryText string) (Plan, error) {
	text := strings.TrimSpace(queryText)
	if text == "" {
		return nil, fmt.Errorf("lang: query text must not be empty")
	}
	upper := strings.ToUpper(text)
	for _, forbidden := range []string{"ORDER BY", "LIMIT", "TOP "} {
		if strings.Contains(upper, forbidden) {
			return nil, fmt.Errorf("lang: %s is not supported", strings.TrimSpace(forbidden))
		}
	}

	matchText, whereText, returnText, err := splitClauses(text)
	if err != nil {
		return nil, err
	}

	nodes, rels, err := parseMatch(matchText)
	if err != nil {
		return nil, err
	}
	projections, err := parseReturn(returnText)
	if err != nil {
		return nil, err
	}

	whereEval, err := compileExpr(whereText)
	if err != nil {
		return nil, fmt.Errorf("lang: WHERE clause: %w", err)
	}
	projEvals := make([]compiledProjection, 0, len(projections))
	for _, p := range projections {
		eval, err := compileExpr(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("lang: RETURN expression %q: %w", p.Expr, err)
		}
		projEvals = append(projEvals, compiledProjection{alias: p.Alias, eval: eval})
	}

	return &plan{nodes: nodes, rels: rels, where: whereEval, projections: projEvals}, nil
}

var clauseRe = regexp.MustCompile(`(?i)\bMATCH\b|\bWHERE\b|\bRETURN\b`)

func splitClauses(text string) (matchText, whereText, returnText string, err error) {
	locs := clauseRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return "", "", "", fmt.Errorf("lang: missing MATCH clause")
	}

	keyword := func(loc []int) string { return strings.ToUpper(text[loc[0]:loc[1]]) }

	segments := map[string]string{}
	for i, loc := range locs {
		start := loc[1]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments[keyword(loc)] = strings.TrimSpace(text[start:end])
	}

	matchText, ok := segments["MATCH"]
	if !ok || matchText == "" {
		return "", "", "", fmt.Errorf("lang: missing MATCH clause")
	}
	returnText, ok = segments["RETURN"]
	if !ok || returnText == "" {
		return "", "", "", fmt.Errorf("lang: missing RETURN clause")
	}
	return matchText, segments["WHERE"], returnText, nil
}

// nodeRe matches one `(var:Label1:Label2)` node pattern.
var nodeRe = regexp.MustCompile(`\(\s*(\w+)\s*:\s*([\w:]+)\s*\)`)

// relRe matches one `(a)-[:TYPE]->(b)` or `(a)<-[:TYPE]-(b)` relation pattern.
var relRe = regexp.MustCompile(`\(\s*(\w+)\s*\)\s*(<)?-\[\s*(\w*)?\s*:\s*([\w:]+)\s*\]-\s*(>)?\s*\(\s*(\w+)\s*\)`)

func parseMatch(matchText string) ([]NodeBinding, []RelBinding, error) {
	var rels []RelBinding
	covered := make(map[string]bool)

	for _, m := range relRe.FindAllStringSubmatch(matchText, -1) {
		incoming, relVar, types, outgoing, toVarText := m[2] == "<", m[3], strings.Split(m[4], ":"), m[5] == ">", m[6]
		fromVar := m[1]
		dir := DirEither
		switch {
		case outgoing && !incoming:
			dir = DirOutgoing
		case incoming && !outgoing:
			dir = DirIncoming
		}
		rels = append(rels, RelBinding{Var: relVar, Types: types, FromVar: fromVar, ToVar: toVarText, Direction: dir})
		covered[m[0]] = true
	}

	withoutRels := relRe.ReplaceAllString(matchText, " ")
	var nodes []NodeBinding
	seen := make(map[string]bool)
	for _, m := range nodeRe.FindAllStringSubmatch(withoutRels, -1) {
		v, labels := m[1], strings.Split(m[2], ":")
		if seen[v] {
			continue
		}
		seen[v] = true
		nodes = append(nodes, NodeBinding{Var: v, Labels: labels})
	}

	for _, m := range relRe.FindAllStringSubmatch(matchText, -1) {
		for _, v := range []string{m[1], m[6]} {
			if !seen[v] {
				seen[v] = true
				nodes = append(nodes, NodeBinding{Var: v})
			}
		}
	}

	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("lang: MATCH clause has no node patterns")
	}
	return nodes, rels, nil
}

func parseReturn(returnText string) ([]Projection, error) {
	parts := splitTopLevelComma(returnText)
	projections := make([]Projection, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		expr, alias := part, ""
		if idx := strings.Index(strings.ToUpper(part), " AS "); idx >= 0 {
			expr = strings.TrimSpace(part[:idx])
			alias = strings.TrimSpace(part[idx+4:])
		} else {
			alias = defaultAlias(expr)
		}
		projections = append(projections, Projection{Alias: alias, Expr: expr})
	}
	if len(projections) == 0 {
		return nil, fmt.Errorf("lang: RETURN clause has no projections")
	}
	return projections, nil
}

func defaultAlias(expr string) string {
	if i := strings.LastIndex(expr, "."); i >= 0 {
		return expr[i+1:]
	}
	return expr
}

func splitTopLevelComma(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

type compiledProjection struct {
	alias string
	eval  gval.Evaluable
}

func compileExpr(text string) (gval.Evaluable, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return gval.Full().NewEvaluable(text)
}

// plan is the Compile-produced Plan implementation. Evaluation is a full
// recompute of the pattern's current result set against the live element
// store on every call, rather than a true incremental delta-network: the
// runtime still only emits the reconciled diff (spec §4.4 step 4), so
// observable behavior matches an incremental engine even though this
// implementation trades some CPU for simplicity.
type plan struct {
	nodes       []NodeBinding
	rels        []RelBinding
	where       gval.Evaluable
	projections []compiledProjection
}

func (p *plan) Nodes() []NodeBinding    { return p.nodes }
func (p *plan) Relations() []RelBinding { return p.rels }

func (p *plan) Evaluate(lookup ElementLookup) ([]model.Row, error) {
	if len(p.rels) > 0 {
		return p.evaluateWithRelations(lookup)
	}
	return p.evaluateSingleNode(lookup)
}

func (p *plan) evaluateSingleNode(lookup ElementLookup) ([]model.Row, error) {
	nb := p.nodes[0]
	var rows []model.Row
	for _, label := range labelsOrAll(nb.Labels) {
		for _, el := range lookup.ElementsByLabel(label) {
			bindings := map[string]any{nb.Var: elementVars(el)}
			ok, err := p.matchesWhere(bindings)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			row, err := p.project(bindings)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// evaluateWithRelations supports exactly one relation hop between two node
// bindings. The hop is resolved only through the runtime's synthetic join
// index, each relation type naming a join spec id; relation elements in the
// element store are not traversed, and the arrow direction does not change
// which binding the join starts from.
func (p *plan) evaluateWithRelations(lookup ElementLookup) ([]model.Row, error) {
	rel := p.rels[0]
	fromBinding, toBinding := p.bindingOf(rel.FromVar), p.bindingOf(rel.ToVar)
	if fromBinding == nil || toBinding == nil {
		return nil, fmt.Errorf("lang: relation references unbound variable")
	}

	var rows []model.Row
	for _, fromLabel := range labelsOrAll(fromBinding.Labels) {
		for _, fromEl := range lookup.ElementsByLabel(fromLabel) {
			for _, joinID := range rel.Types {
				for _, toLabel := range labelsOrAll(toBinding.Labels) {
					for _, toEl := range lookup.JoinPartners(joinID, toLabel, fromEl) {
						bindings := map[string]any{
							fromBinding.Var: elementVars(fromEl),
							toBinding.Var:   elementVars(toEl),
						}
						ok, err := p.matchesWhere(bindings)
						if err != nil {
							return nil, err
						}
						if !ok {
							continue
						}
						row, err := p.project(bindings)
						if err != nil {
							return nil, err
						}
						rows = append(rows, row)
					}
				}
			}
		}
	}
	return rows, nil
}

func (p *plan) bindingOf(v string) *NodeBinding {
	for i := range p.nodes {
		if p.nodes[i].Var == v {
			return &p.nodes[i]
		}
	}
	return nil
}

func (p *plan) matchesWhere(bindings map[string]any) (bool, error) {
	if p.where == nil {
		return true, nil
	}
	v, err := p.where.EvalBool(nil, bindings)
	if err != nil {
		return false, err
	}
	return v, nil
}

func (p *plan) project(bindings map[string]any) (model.Row, error) {
	row := make(model.Row, len(p.projections))
	for _, proj := range p.projections {
		v, err := proj.eval(nil, bindings)
		if err != nil {
			return nil, err
		}
		row[proj.alias] = v
	}
	return row, nil
}

func labelsOrAll(labels []string) []string {
	if len(labels) == 0 || (len(labels) == 1 && labels[0] == "") {
		return []string{""}
	}
	return labels
}

func elementVars(el model.Element) map[string]any {
	vars := make(map[string]any, len(el.Properties)+2)
	for k, v := range el.Properties {
		vars[k] = v
	}
	vars["id"] = el.ID
	return vars
}
