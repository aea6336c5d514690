package vectorstore

import "github.com/google/uuid"

// pointNamespace is a fixed namespace UUID so DerivePointID is reproducible
// across processes and across the seeder/reader split — both must derive
// the same point ID for (namespace, recordID) without coordinating.
var pointNamespace = uuid.MustParse("7e3f9b9e-7f7e-4a1c-9f3f-7d3c5b6a2e10")

// DerivePointID returns a stable, deterministic point ID for a record
// within a namespace — a space name in the legacy one-table-per-space
// layout, the configured point-ID namespace in the enhanced layout — so
// re-seeding the same record produces the same point (upsert, not a new
// row) instead of accumulating duplicates.
func DerivePointID(namespace string, recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"|"+recordID)).String()
}
