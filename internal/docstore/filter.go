package docstore

import (
	"fmt"

	"github.com/toolscope/discovery-engine/internal/model"
)

// knownColumns whitelists the record fields a structured filter clause may
// reference, matching the explicit column list in a `records` row rather
// than reaching into a free-form JSONB blob the way a Mongo-style filter
// would. Unknown fields are rejected, not silently ignored.
var knownColumns = map[string]string{
	"categories":     "categories",
	"functionality":  "functionality",
	"searchKeywords": "search_keywords",
	"useCases":       "use_cases",
	"interfaces":     "interfaces",
	"deployment":     "deployment",
	"platform":       "deployment",
	"url":            "url",
	"updatedAt":      "updated_at",
}

var arrayColumns = map[string]bool{
	"categories":      true,
	"functionality":   true,
	"search_keywords": true,
	"use_cases":       true,
	"interfaces":      true,
	"deployment":      true,
}

// toSQLWhere translates a structured filter into a WHERE clause over the
// records table, numbering placeholders starting at startParam.
func toSQLWhere(filter model.Filter, startParam int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	param := startParam

	for _, c := range filter {
		// The free-tier predicate queries inside the pricing JSONB schedule
		// rather than a real column: a zero-cost "free" or "freemium" tier
		// counts as having a free tier.
		if c.Field == "pricing.hasFreeTier" {
			if c.Op != model.FilterEq {
				return "", nil, fmt.Errorf("docstore: pricing.hasFreeTier only supports =")
			}
			cond := `(pricing ? 'free' OR (pricing->>'freemium')::numeric = 0)`
			if want, _ := c.Value.(bool); !want {
				cond = "NOT " + cond
			}
			clauses = append(clauses, cond)
			continue
		}

		col, ok := knownColumns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("docstore: unknown filter field %q", c.Field)
		}

		switch c.Op {
		case model.FilterEq:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, param))
			args = append(args, c.Value)
			param++
		case model.FilterContains:
			if !arrayColumns[col] {
				return "", nil, fmt.Errorf("docstore: field %q does not support contains", c.Field)
			}
			clauses = append(clauses, fmt.Sprintf("$%d = ANY(%s)", param, col))
			args = append(args, fmt.Sprint(c.Value))
			param++
		case model.FilterLT, model.FilterLTE, model.FilterGT, model.FilterGTE:
			op, err := sqlRangeOp(c.Op)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, op, param))
			args = append(args, c.Value)
			param++
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", c.Op)
		}
	}

	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args, nil
}

func sqlRangeOp(op model.FilterOp) (string, error) {
	switch op {
	case model.FilterLT:
		return "<", nil
	case model.FilterLTE:
		return "<=", nil
	case model.FilterGT:
		return ">", nil
	case model.FilterGTE:
		return ">=", nil
	default:
		return "", fmt.Errorf("not a range operator: %q", op)
	}
}
