package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// CreateRelation persists a new relation. The core's functional-relation
// check (at most one outgoing edge of a functional type per source) is
// enforced by the caller before this is reached — see App.AddRelation in
// internal/app and the write-path state machine in spec.md §4.9; Store itself performs no
// cardinality checks.
func (s *Store) CreateRelation(ctx context.Context, r *types.Relation) (*types.Relation, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = time.Now().UTC()

	if _, err := surrealdbCreateRelation(s, ctx, r); err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: create relation %s", r.RelationType), tracerr.GraphStoreFailure, err)
	}
	return r, nil
}

// GetRelation fetches a relation by id. Returns (nil, nil) when not found.
func (s *Store) GetRelation(ctx context.Context, id string) (*types.Relation, error) {
	rel, err := relationSelect(s, id)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: get relation %s", id), tracerr.GraphStoreFailure, err)
	}
	return rel, nil
}

// DeleteRelation removes a relation by id.
func (s *Store) DeleteRelation(ctx context.Context, id string) error {
	if err := relationDelete(s, id); err != nil {
		return tracerr.Wrap(fmt.Sprintf("graphstore: delete relation %s", id), tracerr.GraphStoreFailure, err)
	}
	return nil
}

// Outgoing returns relations where entityID is the source. When relationType
// is non-empty it further restricts to that relation type.
func (s *Store) Outgoing(ctx context.Context, entityID, relationType string) ([]types.Relation, error) {
	if relationType == "" {
		res, err := surrealdbQueryRelations(s,
			"SELECT * FROM relation WHERE source_id = $entity_id",
			map[string]any{"entity_id": entityID},
		)
		if err != nil {
			return nil, tracerr.Wrap(fmt.Sprintf("graphstore: outgoing %s", entityID), tracerr.GraphStoreFailure, err)
		}
		return res, nil
	}
	res, err := surrealdbQueryRelations(s,
		"SELECT * FROM relation WHERE source_id = $entity_id AND relation_type = $rel_type",
		map[string]any{"entity_id": entityID, "rel_type": relationType},
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: outgoing %s/%s", entityID, relationType), tracerr.GraphStoreFailure, err)
	}
	return res, nil
}

// Incoming returns relations where entityID is the target. When
// relationType is non-empty it further restricts to that relation type.
func (s *Store) Incoming(ctx context.Context, entityID, relationType string) ([]types.Relation, error) {
	if relationType == "" {
		res, err := surrealdbQueryRelations(s,
			"SELECT * FROM relation WHERE target_id = $entity_id",
			map[string]any{"entity_id": entityID},
		)
		if err != nil {
			return nil, tracerr.Wrap(fmt.Sprintf("graphstore: incoming %s", entityID), tracerr.GraphStoreFailure, err)
		}
		return res, nil
	}
	res, err := surrealdbQueryRelations(s,
		"SELECT * FROM relation WHERE target_id = $entity_id AND relation_type = $rel_type",
		map[string]any{"entity_id": entityID, "rel_type": relationType},
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: incoming %s/%s", entityID, relationType), tracerr.GraphStoreFailure, err)
	}
	return res, nil
}

// OutgoingCount reports how many outgoing edges of relationType exist from
// entityID — the check a functional relation's write path uses to reject a
// second outgoing edge (spec.md §4.2, §4.9).
func (s *Store) OutgoingCount(ctx context.Context, entityID, relationType string) (int, error) {
	rels, err := s.Outgoing(ctx, entityID, relationType)
	if err != nil {
		return 0, err
	}
	return len(rels), nil
}
