package model

// SpaceName identifies one of the fixed named vector spaces a record is
// embedded into. The set is closed; callers must not invent new names.
type SpaceName string

const (
	SpaceSemantic              SpaceName = "semantic"
	SpaceEntitiesCategories    SpaceName = "entities.categories"
	SpaceEntitiesFunctionality SpaceName = "entities.functionality"
	SpaceEntitiesAliases       SpaceName = "entities.aliases"
	SpaceCompositesToolType    SpaceName = "composites.toolType"
)

// AllSpaces lists every named vector space in the fixed order used for
// deterministic batch seeding and for stable fan-out ordering in the retriever.
var AllSpaces = []SpaceName{
	SpaceSemantic,
	SpaceEntitiesCategories,
	SpaceEntitiesFunctionality,
	SpaceEntitiesAliases,
	SpaceCompositesToolType,
}

// VectorDimension is the fixed embedding width shared by every space.
const VectorDimension = 1024

// NamedVector pairs an embedding with the space it was produced for.
type NamedVector struct {
	Space  SpaceName `json:"space"`
	Values []float32 `json:"values"`
}

// Point is a single stored vector entry: a deterministic ID derived from
// (namespace, recordID), the record it represents, and the space-keyed
// vectors attached to it (enhanced layout) or the single vector for its
// collection (legacy layout, one space per Point).
type Point struct {
	ID       string                  `json:"id"`
	RecordID string                  `json:"recordId"`
	Vectors  map[SpaceName][]float32 `json:"vectors,omitempty"`
	Payload  map[string]any          `json:"payload,omitempty"`
}
