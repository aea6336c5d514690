package vectorstore

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/toolscope/discovery-engine/internal/model"
)

// toQdrantFilter translates a flat AND-of-clauses model.Filter into a
// Qdrant Filter's Must list. Only equality, containment ("any" match
// against a list field), and range operators are in the abstract filter
// language, so the translation is a direct per-clause mapping with no
// recursive AST, unlike a general-purpose query-language converter.
func toQdrantFilter(filter model.Filter) (*qdrant.Filter, error) {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for _, clause := range filter {
		cond, err := toQdrantCondition(clause)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return &qdrant.Filter{Must: conditions}, nil
}

func toQdrantCondition(clause model.FilterClause) (*qdrant.Condition, error) {
	switch clause.Op {
	case model.FilterEq:
		return qdrant.NewMatch(clause.Field, fmt.Sprint(clause.Value)), nil
	case model.FilterContains:
		values, err := toStrings(clause.Value)
		if err != nil {
			return nil, fmt.Errorf("vectorstore.toQdrantCondition: %s: %w", clause.Field, err)
		}
		return qdrant.NewMatchKeywords(clause.Field, values...), nil
	case model.FilterLT, model.FilterLTE, model.FilterGT, model.FilterGTE:
		f, err := toFloat(clause.Value)
		if err != nil {
			return nil, fmt.Errorf("vectorstore.toQdrantCondition: %s: %w", clause.Field, err)
		}
		rng := &qdrant.Range{}
		switch clause.Op {
		case model.FilterLT:
			rng.Lt = &f
		case model.FilterLTE:
			rng.Lte = &f
		case model.FilterGT:
			rng.Gt = &f
		case model.FilterGTE:
			rng.Gte = &f
		}
		return qdrant.NewRange(clause.Field, rng), nil
	default:
		return nil, fmt.Errorf("vectorstore.toQdrantCondition: unsupported operator %q", clause.Op)
	}
}

func toStrings(v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		out := make([]string, len(val))
		for i, e := range val {
			out[i] = fmt.Sprint(e)
		}
		return out, nil
	default:
		return []string{fmt.Sprint(v)}, nil
	}
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}
