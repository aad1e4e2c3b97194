// Package search builds PostgreSQL full-text and tag-overlap SQL fragments
// for node content queries.
package search

import (
	"fmt"
	"slices"
	"strings"
)

// textConfig is the text search configuration used to build search_vector.
// It must match the generated column in the node_contents table.
const textConfig = "simple"

// Clause is a set of SQL fragments plus the arguments they bind. A zero
// Clause means the filter does not apply.
type Clause struct {
	// Where is a boolean expression, e.g. search_vector @@ plainto_tsquery('simple', $3).
	Where string
	// Order is an ORDER BY term, or "" when the clause has no natural ranking.
	Order string
	// Headline is a select expression aliased as headline, or "".
	Headline string
	Args     []any
}

// Empty reports whether the clause applies no filter.
func (c Clause) Empty() bool {
	return c.Where == ""
}

// Keyword generates a full-text clause over node_contents.search_vector,
// binding the query at placeholder $paramIdx. Blank queries yield a zero Clause.
func Keyword(query string, paramIdx int) Clause {
	query = strings.TrimSpace(query)
	if query == "" {
		return Clause{}
	}

	tsquery := fmt.Sprintf("plainto_tsquery('%s', $%d)", textConfig, paramIdx)
	return Clause{
		Where:    "search_vector @@ " + tsquery,
		Order:    fmt.Sprintf("ts_rank(search_vector, %s) DESC", tsquery),
		Headline: fmt.Sprintf("ts_headline('%s', display_name, %s) AS headline", textConfig, tsquery),
		Args:     []any{query},
	}
}

// Tags generates a clause matching nodes that carry at least one of the given
// tags, binding the normalized tag set at placeholder $paramIdx. Tags are
// trimmed and deduplicated; an empty set yields a zero Clause.
func Tags(tags []string, paramIdx int) Clause {
	normalized := NormalizeTags(tags)
	if len(normalized) == 0 {
		return Clause{}
	}
	return Clause{
		Where: fmt.Sprintf("tags && $%d::text[]", paramIdx),
		Args:  []any{normalized},
	}
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
