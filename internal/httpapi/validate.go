package httpapi

import (
	"fmt"

	"github.com/toolscope/discovery-engine/internal/apperr"
)

// validate checks the request's field bounds before anything downstream
// runs; a rejected request makes no external calls.
func validate(req EnhancedSearchRequest) error {
	if len(req.Query) == 0 || len(req.Query) > 500 {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("query must be 1..500 characters, got %d", len(req.Query)))
	}

	if l := req.Options.VectorOptions.Limit; l != 0 && (l < 1 || l > 100) {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("vectorOptions.limit must be 1..100, got %d", l))
	}

	if k := req.Options.MergeOptions.RRFKValue; k != 0 && (k < 1 || k > 200) {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("mergeOptions.rrfKValue must be 1..200, got %d", k))
	}
	if m := req.Options.MergeOptions.MaxResults; m != 0 && (m < 1 || m > 200) {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("mergeOptions.maxResults must be 1..200, got %d", m))
	}

	if th := req.Options.DuplicateDetectionOptions.Threshold; th != 0 && (th < 0 || th > 1) {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("duplicateDetectionOptions.threshold must be 0..1, got %v", th))
	}

	if p := req.Options.Pagination; p.Page != 0 || p.Limit != 0 {
		if p.Page < 0 {
			return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("pagination.page must be >= 1, got %d", p.Page))
		}
		if p.Limit != 0 && (p.Limit < 1 || p.Limit > 100) {
			return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("pagination.limit must be 1..100, got %d", p.Limit))
		}
	}

	switch req.Options.Sort.Field {
	case "", SortByRelevance, SortByName, SortByCategory, SortByScore:
	default:
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("sort.field %q not recognized", req.Options.Sort.Field))
	}
	switch req.Options.Sort.Order {
	case "", SortAsc, SortDesc:
	default:
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("sort.order %q not recognized", req.Options.Sort.Order))
	}

	if t := req.Options.Performance.TimeoutMS; t != 0 && (t < 100 || t > 30000) {
		return apperr.Wrap(apperr.KindInputInvalid, "httpapi.validate", fmt.Errorf("performance.timeout must be 100..30000ms, got %d", t))
	}

	return nil
}
