package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// Trace/event persistence for the Event Ingestion path (spec.md §4.8). These
// live alongside entity/relation storage but use their own tables
// (agent_trace, agent_event) per the wire contract in spec.md §6.

// CreateTrace persists a new trace with status=running. The core only ever
// creates running traces; transitions are caller-driven (spec.md §4.9).
func (s *Store) CreateTrace(ctx context.Context, t *types.Trace) (*types.Trace, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = types.TraceRunning
	}

	if _, err := surrealdb.Create[types.Trace](s.db, recordID("agent_trace", t.ID), t); err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: create trace session=%s", t.SessionID), tracerr.GraphStoreFailure, err)
	}
	return t, nil
}

// MostRecentTraceBySession finds the most recently created trace with the
// given session id, used by trace-resolution strategy 2 (spec.md §4.8).
// Returns (nil, nil) when none exists.
func (s *Store) MostRecentTraceBySession(ctx context.Context, sessionID string) (*types.Trace, error) {
	res, err := surrealdb.Query[[]types.Trace](s.db,
		"SELECT * FROM agent_trace WHERE session_id = $session_id ORDER BY created_at DESC LIMIT 1",
		map[string]any{"session_id": sessionID},
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: most recent trace by session %s", sessionID), tracerr.GraphStoreFailure, err)
	}
	traces := firstResult(res)
	if len(traces) == 0 {
		return nil, nil
	}
	return &traces[0], nil
}

// MostRecentRunningTraceByAgent finds the most recent running trace for
// agentID whose start_time is at or after since, used by trace-resolution
// strategy 3 (spec.md §4.8). Returns (nil, nil) when none exists.
func (s *Store) MostRecentRunningTraceByAgent(ctx context.Context, agentID string, since time.Time) (*types.Trace, error) {
	res, err := surrealdb.Query[[]types.Trace](s.db,
		`SELECT * FROM agent_trace
		 WHERE agent_id = $agent_id AND status = 'running' AND start_time >= $since
		 ORDER BY start_time DESC LIMIT 1`,
		map[string]any{"agent_id": agentID, "since": since},
	)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: most recent running trace by agent %s", agentID), tracerr.GraphStoreFailure, err)
	}
	traces := firstResult(res)
	if len(traces) == 0 {
		return nil, nil
	}
	return &traces[0], nil
}

// CreateEvent persists a new event, append-only (spec.md §3).
func (s *Store) CreateEvent(ctx context.Context, e *types.Event) (*types.Event, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	e.CreatedAt = time.Now().UTC()

	if _, err := surrealdb.Create[types.Event](s.db, recordID("agent_event", e.ID), e); err != nil {
		return nil, tracerr.Wrap(fmt.Sprintf("graphstore: create event trace=%s", e.TraceID), tracerr.GraphStoreFailure, err)
	}
	return e, nil
}

// ContainsEdge returns the relation type name used for trace→event edges
// created during ingestion (spec.md §6).
const ContainsEdge = "contains"

// LinkTraceToEvent creates the "contains" edge from a trace to an event.
func (s *Store) LinkTraceToEvent(ctx context.Context, traceID, eventID string) error {
	rel := &types.Relation{
		RelationType: ContainsEdge,
		SourceID:     traceID,
		TargetID:     eventID,
	}
	_, err := s.CreateRelation(ctx, rel)
	return err
}
