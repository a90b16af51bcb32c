// Package graphstore adapts tracegraph's Graph Store Adapter contract onto a
// SurrealDB document-graph backend: typed entity/relation CRUD, directional
// edge lookup, and bounded-depth traversal.
//
// Grounded on the table layout and record-id scheme in
// original_source/vectadb/src/db/surrealdb_client.rs — the table set
// (ontology_schema, entity, relation, agent_trace, agent_event), the
// explicit record-id syntax (table:⟨id⟩), and the per-operation query shape —
// re-targeted at the surrealdb.go client instead of the Rust SDK. Method
// naming and error-wrapping convention follow
// pkg/memory/postgres/knowledge_graph.go.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// Config holds the connection parameters for a SurrealDB instance.
type Config struct {
	Endpoint  string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store is the Graph Store Adapter: entity and relation CRUD, directional
// edge lookup, and bounded-depth traversal, backed by SurrealDB.
//
// Store owns schema-definition statements for its tables and performs
// idempotent initialization on startup. It is safe for concurrent use — the
// underlying surrealdb.DB handles its own synchronization.
type Store struct {
	db *surrealdb.DB
}

// Connect dials a SurrealDB instance, authenticates, selects the configured
// namespace/database, and idempotently defines the tables tracegraph owns:
// ontology_schema, entity, relation, agent_trace, agent_event.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	db, err := surrealdb.New(cfg.Endpoint)
	if err != nil {
		return nil, tracerr.Wrap("graphstore: connect", tracerr.GraphStoreFailure, err)
	}

	if _, err := db.Signin(&surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}); err != nil {
		return nil, tracerr.Wrap("graphstore: signin", tracerr.GraphStoreFailure, err)
	}
	if err := db.Use(cfg.Namespace, cfg.Database); err != nil {
		return nil, tracerr.Wrap("graphstore: use namespace/database", tracerr.GraphStoreFailure, err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// initSchema defines the tables tracegraph owns, idempotently. Table
// definitions mirror the original SurrealDB DDL: entity/relation carry
// flexible (schemaless) property objects so the ontology — not the storage
// layer — governs shape; agent_trace/agent_event hold the ingestion path's
// records.
func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`DEFINE TABLE IF NOT EXISTS ontology_schema SCHEMAFULL;
		 DEFINE FIELD IF NOT EXISTS namespace ON ontology_schema TYPE string;
		 DEFINE FIELD IF NOT EXISTS version ON ontology_schema TYPE string;
		 DEFINE FIELD IF NOT EXISTS schema_json ON ontology_schema TYPE string;
		 DEFINE FIELD IF NOT EXISTS created_at ON ontology_schema TYPE datetime;
		 DEFINE INDEX IF NOT EXISTS idx_namespace ON ontology_schema COLUMNS namespace UNIQUE;`,
		`DEFINE TABLE IF NOT EXISTS entity SCHEMAFULL;
		 DEFINE FIELD IF NOT EXISTS entity_type ON entity TYPE string;
		 DEFINE FIELD IF NOT EXISTS properties ON entity FLEXIBLE TYPE object;
		 DEFINE FIELD IF NOT EXISTS embedding ON entity TYPE option<array>;
		 DEFINE FIELD IF NOT EXISTS metadata ON entity FLEXIBLE TYPE option<object>;
		 DEFINE FIELD IF NOT EXISTS created_at ON entity TYPE datetime DEFAULT time::now();
		 DEFINE FIELD IF NOT EXISTS updated_at ON entity TYPE datetime DEFAULT time::now();
		 DEFINE INDEX IF NOT EXISTS idx_type ON entity COLUMNS entity_type;`,
		`DEFINE TABLE IF NOT EXISTS relation SCHEMAFULL;
		 DEFINE FIELD IF NOT EXISTS relation_type ON relation TYPE string;
		 DEFINE FIELD IF NOT EXISTS source_id ON relation TYPE string;
		 DEFINE FIELD IF NOT EXISTS target_id ON relation TYPE string;
		 DEFINE FIELD IF NOT EXISTS properties ON relation FLEXIBLE TYPE object;
		 DEFINE FIELD IF NOT EXISTS created_at ON relation TYPE datetime DEFAULT time::now();
		 DEFINE INDEX IF NOT EXISTS idx_relation_type ON relation COLUMNS relation_type;
		 DEFINE INDEX IF NOT EXISTS idx_source ON relation COLUMNS source_id;
		 DEFINE INDEX IF NOT EXISTS idx_target ON relation COLUMNS target_id;`,
		`DEFINE TABLE IF NOT EXISTS agent_trace SCHEMAFULL;
		 DEFINE FIELD IF NOT EXISTS session_id ON agent_trace TYPE string;
		 DEFINE FIELD IF NOT EXISTS agent_id ON agent_trace TYPE option<string>;
		 DEFINE FIELD IF NOT EXISTS status ON agent_trace TYPE string;
		 DEFINE FIELD IF NOT EXISTS start_time ON agent_trace TYPE datetime;
		 DEFINE FIELD IF NOT EXISTS created_at ON agent_trace TYPE datetime DEFAULT time::now();
		 DEFINE FIELD IF NOT EXISTS updated_at ON agent_trace TYPE datetime DEFAULT time::now();
		 DEFINE INDEX IF NOT EXISTS idx_session_id ON agent_trace COLUMNS session_id;
		 DEFINE INDEX IF NOT EXISTS idx_agent_id ON agent_trace COLUMNS agent_id;
		 DEFINE INDEX IF NOT EXISTS idx_start_time ON agent_trace COLUMNS start_time;`,
		`DEFINE TABLE IF NOT EXISTS agent_event SCHEMAFULL;
		 DEFINE FIELD IF NOT EXISTS trace_id ON agent_event TYPE string;
		 DEFINE FIELD IF NOT EXISTS timestamp ON agent_event TYPE datetime;
		 DEFINE FIELD IF NOT EXISTS event_type ON agent_event TYPE option<string>;
		 DEFINE FIELD IF NOT EXISTS agent_id ON agent_event TYPE option<string>;
		 DEFINE FIELD IF NOT EXISTS session_id ON agent_event TYPE option<string>;
		 DEFINE FIELD IF NOT EXISTS properties ON agent_event FLEXIBLE TYPE object;
		 DEFINE FIELD IF NOT EXISTS source ON agent_event FLEXIBLE TYPE option<object>;
		 DEFINE FIELD IF NOT EXISTS created_at ON agent_event TYPE datetime DEFAULT time::now();
		 DEFINE INDEX IF NOT EXISTS idx_trace_id ON agent_event COLUMNS trace_id;
		 DEFINE INDEX IF NOT EXISTS idx_timestamp ON agent_event COLUMNS timestamp;`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Query(stmt, nil); err != nil {
			return tracerr.Wrap("graphstore: init schema", tracerr.GraphStoreFailure, err)
		}
	}
	return nil
}

// recordID builds the explicit table:⟨id⟩ record syntax SurrealDB uses for
// keyed lookups. The id is passed to the SurrealDB client as given; no
// escaping is applied here.
func recordID(table, id string) models.RecordID {
	return models.RecordID{Table: table, ID: id}
}

// newID generates an opaque short identifier for a new entity or relation.
func newID() string {
	return uuid.NewString()
}

// CreateEntity persists a new entity, assigning server-side created_at and
// updated_at timestamps. The caller supplies the id (already validated and
// assigned by the caller, per spec.md's "opaque short identifier" contract);
// if e.ID is empty one is generated.
func (s *Store) CreateEntity(ctx context.Context, e *types.Entity) (*types.Entity, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := surrealdb.Create[types.Entity](s.db, recordID("entity", e.ID), e)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: create entity %s/%s", e.EntityType, e.ID), tracerr.GraphStoreFailure, err)
	}
	return e, nil
}

// GetEntity fetches an entity by id. Returns (nil, nil) when it does not exist.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	e, err := surrealdb.Select[types.Entity](s.db, recordID("entity", id))
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: get entity %s", id), tracerr.GraphStoreFailure, err)
	}
	return e, nil
}

// UpdateEntity replaces an entity's stored fields wholesale — the core never
// merges field-level updates (spec.md §3). updated_at is refreshed;
// created_at is left untouched.
func (s *Store) UpdateEntity(ctx context.Context, e *types.Entity) (*types.Entity, error) {
	e.UpdatedAt = time.Now().UTC()
	_, err := surrealdb.Update[types.Entity](s.db, recordID("entity", e.ID), e)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: update entity %s", e.ID), tracerr.GraphStoreFailure, err)
	}
	return e, nil
}

// DeleteEntity removes an entity by id. Orphan relations referencing it are
// not cleaned up here — that is the caller's concern (spec.md §9).
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if _, err := surrealdb.Delete[types.Entity](s.db, recordID("entity", id)); err != nil {
		return tracerr.Wrap(fmt.Sprintf("graphstore: delete entity %s", id), tracerr.GraphStoreFailure, err)
	}
	return nil
}

// QueryByType returns every entity of the given type.
func (s *Store) QueryByType(ctx context.Context, entityType string) ([]types.Entity, error) {
	res, err := surrealdb.Query[[]types.Entity](s.db,
		"SELECT * FROM entity WHERE entity_type = $type",
		map[string]any{"type": entityType},
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: query by type %s", entityType), tracerr.GraphStoreFailure, err)
	}
	return firstResult(res), nil
}

// QueryByTypes returns every entity whose type is in entityTypes — the
// expanded-type-set query Reasoner.Expand feeds into vector/graph dispatch.
func (s *Store) QueryByTypes(ctx context.Context, entityTypes []string) ([]types.Entity, error) {
	res, err := surrealdb.Query[[]types.Entity](s.db,
		"SELECT * FROM entity WHERE entity_type IN $types",
		map[string]any{"types": entityTypes},
	)
	if err != nil {
		return nil, tracerr.Wrap("graphstore: query by types", tracerr.GraphStoreFailure, err)
	}
	return firstResult(res), nil
}

// firstResult unwraps the first statement's result set from a multi-statement
// SurrealDB query response. A nil or empty response yields a nil slice.
func firstResult[T any](res []surrealdb.QueryResult[T]) T {
	var zero T
	if len(res) == 0 {
		return zero
	}
	return res[0].Result
}
