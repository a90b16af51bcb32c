package graphstore

import (
	"context"

	"github.com/surrealdb/surrealdb.go"

	"github.com/tracegraph/tracegraph/pkg/types"
)

// Thin wrappers around the generic surrealdb.go calls for types.Relation —
// kept in one place so relations.go reads as plain CRUD rather than repeated
// generic instantiations.

func surrealdbCreateRelation(s *Store, _ context.Context, r *types.Relation) (*types.Relation, error) {
	return surrealdb.Create[types.Relation](s.db, recordID("relation", r.ID), r)
}

func relationSelect(s *Store, id string) (*types.Relation, error) {
	return surrealdb.Select[types.Relation](s.db, recordID("relation", id))
}

func relationDelete(s *Store, id string) error {
	_, err := surrealdb.Delete[types.Relation](s.db, recordID("relation", id))
	return err
}

func surrealdbQueryRelations(s *Store, query string, vars map[string]any) ([]types.Relation, error) {
	res, err := surrealdb.Query[[]types.Relation](s.db, query, vars)
	if err != nil {
		return nil, err
	}
	return firstResult(res), nil
}
