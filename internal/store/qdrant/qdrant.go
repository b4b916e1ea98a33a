// Package qdrant implements the vector store (C6) over a Qdrant collection,
// grounded on Tangerg-lynx's ai/providers/vectorstores/qdrant.VectorStore —
// adapted from Lynx's single embedding-model-per-collection shape to the
// spec's named dense+sparse point layout (§4.5).
package qdrant

import (
	"context"
	"fmt"

	qd "github.com/qdrant/go-client/qdrant"

	"github.com/madeindigio/codesearch/internal/store"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// VectorStore is a store.VectorStore backed by a Qdrant gRPC client.
type VectorStore struct {
	host   string
	port   int
	apiKey string
	client *qd.Client
}

var _ store.VectorStore = (*VectorStore)(nil)

// New builds a VectorStore that connects lazily on Connect. host/port
// address the Qdrant gRPC endpoint (default gRPC port 6334).
func New(host string, port int, apiKey string) *VectorStore {
	if port == 0 {
		port = 6334
	}
	return &VectorStore{host: host, port: port, apiKey: apiKey}
}

func (v *VectorStore) Connect(_ context.Context) error {
	client, err := qd.NewClient(&qd.Config{
		Host:   v.host,
		Port:   v.port,
		APIKey: v.apiKey,
	})
	if err != nil {
		return store.NewConnectionFailedError(err)
	}
	v.client = client
	return nil
}

func (v *VectorStore) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func (v *VectorStore) Ping(ctx context.Context) error {
	if _, err := v.client.HealthCheck(ctx); err != nil {
		return store.NewConnectionFailedError(err)
	}
	return nil
}

// EnsureCollection creates the named collection with a dense vector of the
// given dimension plus a named sparse vector, if it does not already exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, name string, denseDimension int) error {
	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return store.NewBackendError(err)
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qd.VectorsConfig{
			Config: &qd.VectorsConfig_ParamsMap{
				ParamsMap: &qd.VectorParamsMap{
					Map: map[string]*qd.VectorParams{
						denseVectorName: {
							Size:     uint64(denseDimension),
							Distance: qd.Distance_Cosine,
						},
					},
				},
			},
		},
		SparseVectorsConfig: &qd.SparseVectorConfig{
			Map: map[string]*qd.SparseVectorParams{
				sparseVectorName: {},
			},
		},
	})
	if err != nil {
		return store.NewBackendError(fmt.Errorf("create collection %s: %w", name, err))
	}
	return nil
}

func (v *VectorStore) Upsert(ctx context.Context, collection string, points []store.Point) error {
	if len(points) == 0 {
		return nil
	}

	qPoints := make([]*qd.PointStruct, 0, len(points))
	for _, p := range points {
		namedVectors := map[string]*qd.Vector{
			denseVectorName: {Data: p.Dense},
		}
		if p.Sparse != nil && len(p.Sparse.Indices) > 0 {
			namedVectors[sparseVectorName] = &qd.Vector{
				Data:    p.Sparse.Weights,
				Indices: &qd.SparseIndices{Data: p.Sparse.Indices},
			}
		}

		payload, err := qd.TryValueMap(p.Payload)
		if err != nil {
			return store.NewSerializationError(err)
		}

		qPoints = append(qPoints, &qd.PointStruct{
			Id: &qd.PointId{PointIdOptions: &qd.PointId_Num{Num: p.ID}},
			Vectors: &qd.Vectors{
				VectorsOptions: &qd.Vectors_Vectors{
					Vectors: &qd.NamedVectors{Vectors: namedVectors},
				},
			},
			Payload: payload,
		})
	}

	_, err := v.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: collection,
		Points:         qPoints,
	})
	if err != nil {
		return store.NewBackendError(fmt.Errorf("upsert %d points into %s: %w", len(qPoints), collection, err))
	}
	return nil
}

// Search runs a dense k-NN query against the named dense vector with an
// optional payload filter and score threshold (§4.5, §4.7). The sparse
// argument is ignored and only the dense vector is queried; the search
// core passes nil and issues no sparse-vector query of its own.
func (v *VectorStore) Search(ctx context.Context, collection string, dense []float32, _ *store.SparseVector, limit int, scoreThreshold float32, filter store.PayloadFilter) ([]store.ScoredPoint, error) {
	using := denseVectorName
	limit64 := uint64(limit)
	threshold := scoreThreshold

	query := &qd.QueryPoints{
		CollectionName: collection,
		Using:          &using,
		Query:          qd.NewQuery(dense...),
		Limit:          &limit64,
		ScoreThreshold: &threshold,
		WithPayload:    qd.NewWithPayload(true),
	}

	if len(filter) > 0 {
		qf, err := toFilter(filter)
		if err != nil {
			return nil, store.NewSerializationError(err)
		}
		query.Filter = qf
	}

	results, err := v.client.Query(ctx, query)
	if err != nil {
		return nil, store.NewBackendError(fmt.Errorf("query collection %s: %w", collection, err))
	}

	out := make([]store.ScoredPoint, 0, len(results))
	for _, r := range results {
		sp := store.ScoredPoint{Score: r.GetScore()}
		if id := r.GetId(); id != nil {
			sp.ID = id.GetNum()
		}
		if payload := r.GetPayload(); payload != nil {
			sp.Payload = fromPayload(payload)
		}
		out = append(out, sp)
	}
	return out, nil
}

func (v *VectorStore) Delete(ctx context.Context, collection string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qd.PointId{PointIdOptions: &qd.PointId_Num{Num: id}}
	}
	_, err := v.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: collection,
		Points: &qd.PointsSelector{
			PointsSelectorOneOf: &qd.PointsSelector_Points{
				Points: &qd.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return store.NewBackendError(fmt.Errorf("delete %d points from %s: %w", len(ids), collection, err))
	}
	return nil
}

func toFilter(filter store.PayloadFilter) (*qd.Filter, error) {
	conditions := make([]*qd.Condition, 0, len(filter))
	for key, value := range filter {
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("qdrant: unsupported filter value type for key %q", key)
		}
		conditions = append(conditions, &qd.Condition{
			ConditionOneOf: &qd.Condition_Field{
				Field: &qd.FieldCondition{
					Key:   key,
					Match: &qd.Match{MatchValue: &qd.Match_Keyword{Keyword: str}},
				},
			},
		})
	}
	return &qd.Filter{Must: conditions}, nil
}

func fromPayload(payload map[string]*qd.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.Kind.(type) {
		case *qd.Value_StringValue:
			out[k] = kind.StringValue
		case *qd.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qd.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qd.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
