package graphstore

import (
	"context"
	"fmt"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// Traverse performs breadth-first expansion from startID following edges of
// relationType, up to depth hops, returning the reachable entities in
// discovery order. depth 0 returns the empty set; cycles terminate via a
// visited set keyed by entity id (spec.md §4.4).
func (s *Store) Traverse(ctx context.Context, startID, relationType string, depth int) ([]types.Entity, error) {
	entities, err := bfsTraverse(ctx, startID, depth,
		func(ctx context.Context, entityID string) ([]types.Relation, error) {
			return s.Outgoing(ctx, entityID, relationType)
		},
		s.GetEntity,
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: traverse %s/%s", startID, relationType), tracerr.GraphStoreFailure, err)
	}
	return entities, nil
}

// neighborFn fetches the outgoing relations to follow from entityID.
type neighborFn func(ctx context.Context, entityID string) ([]types.Relation, error)

// entityFn fetches the full entity record for an id.
type entityFn func(ctx context.Context, id string) (*types.Entity, error)

// bfsTraverse is the pure breadth-first core shared by Store.Traverse and
// (via injected closures) unit tests that don't need a live SurrealDB.
// Visited-set marking happens when a node is popped for expansion, matching
// the distilled Rust source's level-by-level loop rather than marking at
// enqueue time; the result keeps only each entity's first discovery, so an
// entity reached along several paths is listed once (see DESIGN.md Open
// Question decisions). The start entity is listed too when a cycle leads
// back to it.
func bfsTraverse(ctx context.Context, startID string, depth int, neighbors neighborFn, getEntity entityFn) ([]types.Entity, error) {
	if depth <= 0 {
		return nil, nil
	}

	visited := make(map[string]bool)
	listed := make(map[string]bool)
	var result []types.Entity
	currentLevel := []string{startID}

	for level := 0; level < depth; level++ {
		var nextLevel []string

		for _, entityID := range currentLevel {
			if visited[entityID] {
				continue
			}
			visited[entityID] = true

			rels, err := neighbors(ctx, entityID)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				target, err := getEntity(ctx, rel.TargetID)
				if err != nil {
					return nil, err
				}
				if target == nil {
					continue
				}
				if !listed[target.ID] {
					listed[target.ID] = true
					result = append(result, *target)
				}
				nextLevel = append(nextLevel, target.ID)
			}
		}

		currentLevel = nextLevel
		if len(currentLevel) == 0 {
			break
		}
	}

	return result, nil
}
