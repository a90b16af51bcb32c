package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tracegraph/tracegraph/pkg/types"
)

type fakeGraph struct {
	traces          map[string]*types.Trace
	bySession       map[string]*types.Trace
	byAgentRunning  map[string]*types.Trace
	events          []*types.Event
	links           [][2]string
	createTraceErr  error
	nextTraceID     int
	nextEventID     int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		traces:         map[string]*types.Trace{},
		bySession:      map[string]*types.Trace{},
		byAgentRunning: map[string]*types.Trace{},
	}
}

func (f *fakeGraph) CreateTrace(_ context.Context, t *types.Trace) (*types.Trace, error) {
	if f.createTraceErr != nil {
		return nil, f.createTraceErr
	}
	f.nextTraceID++
	t.ID = "trace-auto"
	f.traces[t.ID] = t
	return t, nil
}

func (f *fakeGraph) MostRecentTraceBySession(_ context.Context, sessionID string) (*types.Trace, error) {
	return f.bySession[sessionID], nil
}

func (f *fakeGraph) MostRecentRunningTraceByAgent(_ context.Context, agentID string, _ time.Time) (*types.Trace, error) {
	return f.byAgentRunning[agentID], nil
}

func (f *fakeGraph) CreateEvent(_ context.Context, e *types.Event) (*types.Event, error) {
	f.nextEventID++
	e.ID = "event-1"
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeGraph) LinkTraceToEvent(_ context.Context, traceID, eventID string) error {
	f.links = append(f.links, [2]string{traceID, eventID})
	return nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

type fakeVectors struct {
	ensureErr error
	upsertErr error
	upserted  map[string][]float32
}

func (f *fakeVectors) EnsureCollection(_ context.Context, _ string, _ uint64) error {
	return f.ensureErr
}

func (f *fakeVectors) Upsert(_ context.Context, _, entityID string, vector []float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.upserted == nil {
		f.upserted = make(map[string][]float32)
	}
	f.upserted[entityID] = vector
	return nil
}

func TestIngestEvent_ExplicitTraceID(t *testing.T) {
	graph := newFakeGraph()
	in := New(graph, nil, nil)

	res, err := in.IngestEvent(context.Background(), EventInput{TraceID: "t1"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TraceID != "t1" {
		t.Fatalf("expected explicit trace id to be reused, got %s", res.TraceID)
	}
	if len(graph.links) != 1 || graph.links[0][0] != "t1" {
		t.Fatalf("expected contains edge from t1, got %v", graph.links)
	}
}

func TestIngestEvent_ResolvesBySession(t *testing.T) {
	graph := newFakeGraph()
	graph.bySession["sess-1"] = &types.Trace{ID: "t-session"}
	in := New(graph, nil, nil)

	res, err := in.IngestEvent(context.Background(), EventInput{SessionID: "sess-1"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TraceID != "t-session" {
		t.Fatalf("expected session-resolved trace, got %s", res.TraceID)
	}
}

func TestIngestEvent_ResolvesByAgentWindow(t *testing.T) {
	graph := newFakeGraph()
	graph.byAgentRunning["agent-1"] = &types.Trace{ID: "t-agent"}
	in := New(graph, nil, nil)

	res, err := in.IngestEvent(context.Background(), EventInput{AgentID: "agent-1"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.TraceID != "t-agent" {
		t.Fatalf("expected agent-resolved trace, got %s", res.TraceID)
	}
}

func TestIngestEvent_AutoCreatesWhenNothingMatches(t *testing.T) {
	graph := newFakeGraph()
	in := New(graph, nil, nil)

	res, err := in.IngestEvent(context.Background(), EventInput{SessionID: "unknown"}, Options{AutoCreateTraces: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.TraceID != "trace-auto" {
		t.Fatalf("expected auto-created trace, got %s", res.TraceID)
	}
}

func TestIngestEvent_FailsResolutionWhenAutoCreateDisabled(t *testing.T) {
	graph := newFakeGraph()
	in := New(graph, nil, nil)

	_, err := in.IngestEvent(context.Background(), EventInput{SessionID: "unknown"}, Options{AutoCreateTraces: false})
	if err == nil {
		t.Fatal("expected resolution failure with auto-create disabled and no match")
	}
}

func TestIngestEvent_EmbedsWhenRequested(t *testing.T) {
	graph := newFakeGraph()
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	vectors := &fakeVectors{}
	in := New(graph, embedder, vectors)

	res, err := in.IngestEvent(context.Background(), EventInput{
		TraceID:    "t1",
		Properties: map[string]any{"message": "hello world"},
	}, Options{GenerateEmbeddings: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := vectors.upserted[res.EventID]; !ok {
		t.Fatalf("expected event vector to be upserted, got %v", vectors.upserted)
	}
}

func TestIngestEvent_EmbedFailureDoesNotFailEvent(t *testing.T) {
	graph := newFakeGraph()
	embedder := &fakeEmbedder{err: errors.New("embedding provider down")}
	in := New(graph, embedder, &fakeVectors{})

	res, err := in.IngestEvent(context.Background(), EventInput{
		TraceID:    "t1",
		Properties: map[string]any{"message": "hello"},
	}, Options{GenerateEmbeddings: true})
	if err != nil {
		t.Fatalf("expected event to succeed despite embedding failure, got %v", err)
	}
	if res.EventID == "" {
		t.Fatal("expected event to be created")
	}
}

func TestIngestBatch_IndependentSuccessFailure(t *testing.T) {
	graph := newFakeGraph()
	in := New(graph, nil, nil)

	inputs := []EventInput{
		{TraceID: "t1"},
		{SessionID: "missing"}, // fails: auto-create disabled
		{TraceID: "t1"},
	}
	result := in.IngestBatch(context.Background(), inputs, Options{AutoCreateTraces: false})

	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 succeeded, 1 failed; got %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Index != 1 {
		t.Fatalf("expected error at index 1, got %+v", result.Errors)
	}
	if len(result.TraceIDs) != 1 || result.TraceIDs[0] != "t1" {
		t.Fatalf("expected deduplicated trace ids [t1], got %v", result.TraceIDs)
	}
}

func TestExtractSearchableText_ExcludesNested(t *testing.T) {
	props := map[string]any{
		"message": "hi",
		"count":   3,
		"nested":  map[string]any{"a": 1},
		"list":    []any{1, 2},
	}
	text := extractSearchableText(props)
	if text == "" {
		t.Fatal("expected non-empty text")
	}
	if contains := (text == "count: 3, message: hi"); !contains {
		t.Fatalf("expected deterministic sorted scalar join, got %q", text)
	}
}

func TestExtractSearchableText_EmptyProperties(t *testing.T) {
	if got := extractSearchableText(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
