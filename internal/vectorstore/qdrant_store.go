package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/toolscope/discovery-engine/internal/model"
)

// DefaultPointNamespace seeds point-ID derivation for the enhanced layout
// when the caller does not configure one. Changing it is a reindex: every
// derived point ID changes with it.
const DefaultPointNamespace = "discovery-engine"

// QdrantStore is the enhanced layout: one collection, one point per
// record, with every space stored as a named vector on that point, the way
// Qdrant's native named-vector support is designed to be used.
type QdrantStore struct {
	client         *qdrant.Client
	collectionName string
	namespace      string
}

// QdrantConfig configures a QdrantStore. Namespace is the point-ID
// derivation namespace shared by the indexer and every reader; it defaults
// to DefaultPointNamespace.
type QdrantConfig struct {
	Client           *qdrant.Client
	CollectionName   string
	Namespace        string
	InitializeSchema bool
}

// NewQdrantStore connects to an existing collection, or creates one sized
// for every space in model.AllSpaces when InitializeSchema is set.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("vectorstore.NewQdrantStore: client is required")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("vectorstore.NewQdrantStore: collection name is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultPointNamespace
	}

	s := &QdrantStore{client: cfg.Client, collectionName: cfg.CollectionName, namespace: cfg.Namespace}

	if cfg.InitializeSchema {
		if err := s.initialize(ctx); err != nil {
			return nil, fmt.Errorf("vectorstore.NewQdrantStore: %w", err)
		}
	}
	return s, nil
}

func (s *QdrantStore) initialize(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	vectorsConfig := make(map[string]*qdrant.VectorParams, len(model.AllSpaces))
	for _, space := range model.AllSpaces {
		vectorsConfig[string(space)] = &qdrant.VectorParams{
			Size:     uint64(model.VectorDimension),
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectorsConfig),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collectionName, err)
	}
	return nil
}

// pointID derives the record's single point ID from the namespace alone,
// never the space: every space's vector lands on the same point.
func (s *QdrantStore) pointID(p model.Point) string {
	if p.ID != "" {
		return p.ID
	}
	return DerivePointID(s.namespace, p.RecordID)
}

// Upsert merges the given space's vector onto each record's single point:
// a record seen for the first time gets a new point carrying this space's
// named vector, an already-indexed record keeps its point and its other
// spaces' vectors and has only this space's vector and the payload
// replaced.
func (s *QdrantStore) Upsert(ctx context.Context, space model.SpaceName, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(points))
	for i, p := range points {
		ids[i] = qdrant.NewID(s.pointID(p))
	}

	existing, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            ids,
	})
	if err != nil {
		return fmt.Errorf("vectorstore.Upsert: check existing points: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, pt := range existing {
		known[pt.GetId().GetUuid()] = true
	}

	var inserts []*qdrant.PointStruct
	var updates []*qdrant.PointVectors
	for i, p := range points {
		vec, ok := p.Vectors[space]
		if !ok {
			return fmt.Errorf("vectorstore.Upsert: point %s has no vector for space %s", p.RecordID, space)
		}
		vectors := qdrant.NewVectorsMap(map[string]*qdrant.Vector{string(space): qdrant.NewVectorDense(vec)})

		payload, err := qdrant.TryValueMap(withRecordID(p.Payload, p.RecordID))
		if err != nil {
			return fmt.Errorf("vectorstore.Upsert: payload for %s: %w", p.RecordID, err)
		}

		if !known[ids[i].GetUuid()] {
			inserts = append(inserts, &qdrant.PointStruct{
				Id:      ids[i],
				Vectors: vectors,
				Payload: payload,
			})
			continue
		}

		updates = append(updates, &qdrant.PointVectors{Id: ids[i], Vectors: vectors})
		_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: s.collectionName,
			Payload:        payload,
			PointsSelector: qdrant.NewPointsSelectorIDs([]*qdrant.PointId{ids[i]}),
		})
		if err != nil {
			return fmt.Errorf("vectorstore.Upsert: refresh payload for %s: %w", p.RecordID, err)
		}
	}

	if len(inserts) > 0 {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collectionName,
			Points:         inserts,
		})
		if err != nil {
			return fmt.Errorf("vectorstore.Upsert: %d points into %s: %w", len(inserts), s.collectionName, err)
		}
	}
	if len(updates) > 0 {
		_, err := s.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
			CollectionName: s.collectionName,
			Points:         updates,
		})
		if err != nil {
			return fmt.Errorf("vectorstore.Upsert: merge %s vectors onto %d points in %s: %w", space, len(updates), s.collectionName, err)
		}
	}
	return nil
}

// Search queries the named vector for space, restricted by filter.
func (s *QdrantStore) Search(ctx context.Context, space model.SpaceName, query []float32, topK int, filter model.Filter) ([]ScoredPoint, error) {
	using := string(space)
	queryPoints := &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Using:          &using,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrantUint64(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if len(filter) > 0 {
		qf, err := toQdrantFilter(filter)
		if err != nil {
			return nil, fmt.Errorf("vectorstore.Search: filter: %w", err)
		}
		queryPoints.Filter = qf
	}

	scored, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Search: query %s: %w", s.collectionName, err)
	}

	results := make([]ScoredPoint, 0, len(scored))
	for _, sp := range scored {
		payload := convertPayload(sp.GetPayload())
		recordID, _ := payload["recordId"].(string)
		delete(payload, "recordId")
		results = append(results, ScoredPoint{
			RecordID: recordID,
			Score:    float64(sp.GetScore()),
			Payload:  payload,
		})
	}
	return results, nil
}

// Delete removes the space's named vector from each record's point,
// leaving the other spaces' vectors on the point untouched.
func (s *QdrantStore) Delete(ctx context.Context, space model.SpaceName, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, len(recordIDs))
	for i, rid := range recordIDs {
		ids[i] = qdrant.NewID(DerivePointID(s.namespace, rid))
	}

	_, err := s.client.DeleteVectors(ctx, &qdrant.DeletePointVectors{
		CollectionName: s.collectionName,
		PointsSelector: qdrant.NewPointsSelectorIDs(ids),
		Vectors:        &qdrant.VectorsSelector{Names: []string{string(space)}},
	})
	if err != nil {
		return fmt.Errorf("vectorstore.Delete: %s vectors from %d points in %s: %w", space, len(ids), s.collectionName, err)
	}
	return nil
}

// RetrieveVector fetches the named vector stored for recordID under space.
func (s *QdrantStore) RetrieveVector(ctx context.Context, space model.SpaceName, recordID string) ([]float32, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(DerivePointID(s.namespace, recordID))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore.RetrieveVector: get %s: %w", recordID, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("vectorstore.RetrieveVector: %s has no point in %s", recordID, s.collectionName)
	}

	out := points[0].GetVectors()
	if named := out.GetVectors(); named != nil {
		if v, ok := named.GetVectors()[string(space)]; ok {
			return v.GetData(), nil
		}
	}
	return nil, fmt.Errorf("vectorstore.RetrieveVector: point for %s carries no %s vector", recordID, space)
}

// CollectionInfo counts the points carrying a named vector for space.
// Every record shares one point across spaces, so the count filters on
// which points actually hold this space's vector.
func (s *QdrantStore) CollectionInfo(ctx context.Context, space model.SpaceName) (CollectionInfo, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewHasVector(string(space))},
		},
	})
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("vectorstore.CollectionInfo: count %s: %w", space, err)
	}
	return CollectionInfo{PointCount: int(count), Dimension: model.VectorDimension}, nil
}

// Close closes the underlying Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func withRecordID(payload map[string]any, recordID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["recordId"] = recordID
	return out
}

func qdrantUint64(v uint64) *uint64 {
	return &v
}

func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = convertQdrantValue(v)
	}
	return out
}

func convertQdrantValue(value *qdrant.Value) any {
	if value == nil {
		return nil
	}
	switch kind := value.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		if kind.ListValue == nil {
			return nil
		}
		out := make([]any, len(kind.ListValue.Values))
		for i, v := range kind.ListValue.Values {
			out[i] = convertQdrantValue(v)
		}
		return out
	default:
		return nil
	}
}
