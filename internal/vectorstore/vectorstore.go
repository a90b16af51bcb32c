// Package vectorstore adapts tracegraph's per-entity-type vector index
// requirement onto a Qdrant collection per entity type, plus one shared
// collection for event vectors.
//
// Grounded on the Qdrant wire contract described in
// original_source/vectadb/src/db/qdrant_client.rs: collections are named by
// entity type (plus a configured prefix), created with cosine distance and a
// fixed dimension, and searched with a top-k query returning (id, score)
// pairs sorted descending.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
	"github.com/tracegraph/tracegraph/internal/tracerr"
)

// ScoredID pairs an entity id with its similarity score.
type ScoredID struct {
	ID    string
	Score float32
}

// Store is the Vector Store Adapter: per-type collections, cosine similarity,
// upsert/delete by entity id, backed by a Qdrant client.
type Store struct {
	client           *qdrant.Client
	collectionPrefix string
}

// Config configures the connection to a Qdrant instance.
type Config struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	CollectionPrefix string
}

// New connects to Qdrant and returns a Store.
func New(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, tracerr.Wrap("vectorstore: connect", tracerr.VectorStoreFailure, err)
	}
	return &Store{client: client, collectionPrefix: cfg.CollectionPrefix}, nil
}

func (s *Store) collectionName(entityType string) string {
	return s.collectionPrefix + entityType
}

// CollectionExists reports whether the named entity type's collection has
// been created yet.
func (s *Store) CollectionExists(ctx context.Context, entityType string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collectionName(entityType))
	if err != nil {
		return false, tracerr.Wrap("vectorstore: collection exists", tracerr.VectorStoreFailure, err)
	}
	return exists, nil
}

// EnsureCollection creates the entity type's collection with the given
// dimension and cosine distance if it does not already exist. Collections
// are created lazily on first write of a given type (spec.md §5); changing
// dimension requires dropping and recreating — not orchestrated here.
func (s *Store) EnsureCollection(ctx context.Context, entityType string, dim uint64) error {
	name := s.collectionName(entityType)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return tracerr.Wrap("vectorstore: ensure collection", tracerr.VectorStoreFailure, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return tracerr.Wrap("vectorstore: ensure collection: create", tracerr.VectorStoreFailure, err)
	}
	return nil
}

// Upsert writes a single vector keyed by entityID into entityType's
// collection. Missing collections fail with a typed error — callers must
// call EnsureCollection first.
func (s *Store) Upsert(ctx context.Context, entityType, entityID string, vector []float32) error {
	name := s.collectionName(entityType)
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(entityID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{"entity_id": entityID}),
			},
		},
	})
	if err != nil {
		return tracerr.Wrap(fmt.Sprintf("vectorstore: upsert %s/%s", entityType, entityID), tracerr.VectorStoreFailure, err)
	}
	return nil
}

// Delete removes entityID's vector from entityType's collection.
func (s *Store) Delete(ctx context.Context, entityType, entityID string) error {
	name := s.collectionName(entityType)
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: qdrant.NewPointsSelectorIDS([]*qdrant.PointId{
			qdrant.NewIDUUID(entityID),
		}),
	})
	if err != nil {
		return tracerr.Wrap(fmt.Sprintf("vectorstore: delete %s/%s", entityType, entityID), tracerr.VectorStoreFailure, err)
	}
	return nil
}

// Search runs a top-k cosine search against entityType's collection. A
// missing collection returns an empty list rather than an error — the
// degraded-read policy spec.md §4.5 calls for.
func (s *Store) Search(ctx context.Context, entityType string, vector []float32, limit int) ([]ScoredID, error) {
	name := s.collectionName(entityType)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, tracerr.Wrap("vectorstore: search", tracerr.VectorStoreFailure, err)
	}
	if !exists {
		return nil, nil
	}

	limitU := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitU,
	})
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("vectorstore: search %s", entityType), tracerr.VectorStoreFailure, err)
	}

	results := make([]ScoredID, 0, len(points))
	for _, p := range points {
		id := pointIDToEntityID(p.Id)
		results = append(results, ScoredID{ID: id, Score: p.Score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// SearchAcross runs Search for each entity type, returning a per-type map.
// A failure for one type is not fatal to the others — the caller (Query
// Coordinator) decides whether that is acceptable for its execution context.
func (s *Store) SearchAcross(ctx context.Context, entityTypes []string, vector []float32, limit int) (map[string][]ScoredID, map[string]error) {
	results := make(map[string][]ScoredID, len(entityTypes))
	errs := make(map[string]error)
	for _, t := range entityTypes {
		r, err := s.Search(ctx, t, vector, limit)
		if err != nil {
			errs[t] = err
			continue
		}
		results[t] = r
	}
	return results, errs
}

func pointIDToEntityID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}
