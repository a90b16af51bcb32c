// Package ingest implements Event Ingestion: trace resolution, per-event
// persistence, and optional embedding of event properties into a shared
// vector collection (spec.md §4.8).
//
// Grounded on the agent_trace/agent_event table layout of
// original_source/vectadb's SurrealDB client plus the graph store's
// trace/event methods built in internal/graphstore
// (CreateTrace, MostRecentTraceBySession, MostRecentRunningTraceByAgent,
// CreateEvent, LinkTraceToEvent).
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// eventVectorCollection is the shared entity-type name used for the
// event-vector collection, distinguishing it from any schema entity type
// (spec.md §4.8 step 4, "shared event-vector collection").
const eventVectorCollection = "_event"

// recentTraceWindow bounds strategy 3 of trace resolution: a running trace
// is reused only if its start_time is within this window (spec.md §4.8).
const recentTraceWindow = time.Hour

// GraphStore is the subset of the Graph Store Adapter Ingestor needs.
type GraphStore interface {
	CreateTrace(ctx context.Context, t *types.Trace) (*types.Trace, error)
	MostRecentTraceBySession(ctx context.Context, sessionID string) (*types.Trace, error)
	MostRecentRunningTraceByAgent(ctx context.Context, agentID string, since time.Time) (*types.Trace, error)
	CreateEvent(ctx context.Context, e *types.Event) (*types.Event, error)
	LinkTraceToEvent(ctx context.Context, traceID, eventID string) error
}

// Embedder is the subset of the Embedding Service Ingestor needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorUpserter is the subset of the Vector Store Adapter Ingestor needs.
type VectorUpserter interface {
	EnsureCollection(ctx context.Context, entityType string, dim uint64) error
	Upsert(ctx context.Context, entityType, entityID string, vector []float32) error
}

// Ingestor is the Event Ingestion entry point.
type Ingestor struct {
	graph    GraphStore
	embedder Embedder
	vectors  VectorUpserter
}

// New returns an Ingestor wired to its collaborators. embedder/vectors may
// be nil when the deployment has no embedding provider configured; in that
// case generate_embeddings requests are skipped with a logged warning
// rather than failing the event.
func New(graph GraphStore, embedder Embedder, vectors VectorUpserter) *Ingestor {
	return &Ingestor{graph: graph, embedder: embedder, vectors: vectors}
}

// EventInput is the single-event ingestion contract (spec.md §4.8).
type EventInput struct {
	TraceID    string
	Timestamp  time.Time
	EventType  string
	AgentID    string
	SessionID  string
	Properties map[string]any
	Source     *types.EventSource
}

// Options are the batch-level knobs from spec.md §4.8.
type Options struct {
	AutoCreateTraces     bool
	GenerateEmbeddings   bool
	ExtractRelationships bool
}

// IngestResult reports the outcome of a single event write.
type IngestResult struct {
	EventID string
	TraceID string
}

// EventError identifies a single failed event within a batch, by its input
// index (spec.md §4.8 "Bulk semantics").
type EventError struct {
	Index   int
	Message string
}

// BatchResult aggregates the outcome of a batch ingest (spec.md §4.8).
type BatchResult struct {
	Succeeded int
	Failed    int
	TraceIDs  []string
	Errors    []EventError
}

// IngestEvent resolves the target trace, persists the event, links it to
// the trace, and — when requested — embeds and upserts its text content
// (spec.md §4.8 "Write path per event").
func (in *Ingestor) IngestEvent(ctx context.Context, input EventInput, opts Options) (*IngestResult, error) {
	traceID, err := in.resolveTrace(ctx, input, opts.AutoCreateTraces)
	if err != nil {
		return nil, err
	}

	event := &types.Event{
		TraceID:    traceID,
		Timestamp:  input.Timestamp,
		EventType:  input.EventType,
		AgentID:    input.AgentID,
		SessionID:  input.SessionID,
		Properties: input.Properties,
		Source:     input.Source,
	}
	created, err := in.graph.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	if err := in.graph.LinkTraceToEvent(ctx, traceID, created.ID); err != nil {
		return nil, err
	}

	if opts.GenerateEmbeddings {
		in.embedEvent(ctx, created)
	}

	return &IngestResult{EventID: created.ID, TraceID: traceID}, nil
}

// IngestBatch runs IngestEvent over every input independently: one event's
// failure never aborts the others (spec.md §4.8 "Bulk semantics" — no
// transactional rollback across events).
func (in *Ingestor) IngestBatch(ctx context.Context, inputs []EventInput, opts Options) *BatchResult {
	result := &BatchResult{}
	traceIDs := make(map[string]bool)

	for i, input := range inputs {
		r, err := in.IngestEvent(ctx, input, opts)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, EventError{Index: i, Message: err.Error()})
			continue
		}
		result.Succeeded++
		traceIDs[r.TraceID] = true
	}

	for id := range traceIDs {
		result.TraceIDs = append(result.TraceIDs, id)
	}
	sort.Strings(result.TraceIDs)
	return result
}

// resolveTrace implements the three cascading strategies plus the
// auto-create fallback of spec.md §4.8's trace-resolution algorithm.
func (in *Ingestor) resolveTrace(ctx context.Context, input EventInput, autoCreate bool) (string, error) {
	if input.TraceID != "" {
		return input.TraceID, nil
	}

	if input.SessionID != "" {
		trace, err := in.graph.MostRecentTraceBySession(ctx, input.SessionID)
		if err != nil {
			return "", err
		}
		if trace != nil {
			return trace.ID, nil
		}
	}

	if input.AgentID != "" {
		since := time.Now().UTC().Add(-recentTraceWindow)
		trace, err := in.graph.MostRecentRunningTraceByAgent(ctx, input.AgentID, since)
		if err != nil {
			return "", err
		}
		if trace != nil {
			return trace.ID, nil
		}
	}

	if !autoCreate {
		return "", tracerr.Wrap("ingest: resolve trace", tracerr.TraceResolutionFailure,
			fmt.Errorf("no trace_id, session, or agent match found and auto-create is disabled"))
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = "default"
	}
	trace, err := in.graph.CreateTrace(ctx, &types.Trace{
		SessionID: sessionID,
		AgentID:   input.AgentID,
		Status:    types.TraceRunning,
		StartTime: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return trace.ID, nil
}

// embedEvent extracts searchable text from the event's properties and, if
// non-empty, embeds and upserts it into the shared event-vector collection.
// Vector-stage failures are logged and never fail the event (spec.md §4.8
// step 4).
func (in *Ingestor) embedEvent(ctx context.Context, event *types.Event) {
	if in.embedder == nil || in.vectors == nil {
		slog.Warn("ingest: embeddings requested but no embedder/vector store configured", "event", event.ID)
		return
	}

	text := extractSearchableText(event.Properties)
	if text == "" {
		return
	}

	vec, err := in.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("ingest: embed event failed", "event", event.ID, "error", err)
		return
	}
	if err := in.vectors.EnsureCollection(ctx, eventVectorCollection, uint64(len(vec))); err != nil {
		slog.Warn("ingest: ensure event vector collection failed", "event", event.ID, "error", err)
		return
	}
	if err := in.vectors.Upsert(ctx, eventVectorCollection, event.ID, vec); err != nil {
		slog.Warn("ingest: upsert event vector failed", "event", event.ID, "error", err)
	}
}

// extractSearchableText concatenates non-nested scalar property values as
// "key: value" pairs, sorted by key for determinism (spec.md §4.8 step 4).
func extractSearchableText(properties map[string]any) string {
	if len(properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(properties))
	for k, v := range properties {
		switch v.(type) {
		case map[string]any, []any:
			continue // nested values are excluded
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, properties[k]))
	}
	return strings.Join(parts, ", ")
}
