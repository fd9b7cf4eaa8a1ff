package query

import (
	"fmt"

	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/model"
	"github.com/ruokun-niu/drasi-server/internal/query/lang"
)

// Build compiles a QuerySpec's query_text and returns a ready-to-drive
// Runtime. Only Cypher is supported today; GQL is rejected with a clear
// error rather than silently mis-parsed.
func Build(spec model.QuerySpec, log *logging.Logger) (*Runtime, error) {
	if spec.LanguageResolved() != model.LangCypher {
		return nil, fmt.Errorf("query %s: query_language %s is not supported", spec.ID, spec.LanguageResolved())
	}
	plan, err := lang.Compile(spec.QueryText)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.ID, err)
	}
	return New(spec.ID, plan, spec.Joins, log), nil
}
