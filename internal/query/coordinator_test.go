package query

import (
	"context"
	"testing"

	"github.com/tracegraph/tracegraph/internal/ontology"
	"github.com/tracegraph/tracegraph/internal/vectorstore"
	"github.com/tracegraph/tracegraph/pkg/types"
)

func testSchema() *ontology.Schema {
	s := ontology.New("test", "1.0")
	s.AddEntityType(ontology.EntityType{ID: "Agent", Label: "Agent"})
	s.AddEntityType(ontology.EntityType{ID: "LLMAgent", Label: "LLM Agent", Parent: "Agent"})
	s.AddEntityType(ontology.EntityType{ID: "Task", Label: "Task"})
	s.AddRelationType(ontology.RelationType{ID: "executes", Label: "executes", Domain: "Agent", Range: "Task"})
	return s
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vec, f.err
}

type fakeGraph struct {
	entities map[string]*types.Entity
	outgoing map[string][]types.Relation
	incoming map[string][]types.Relation
}

func (f *fakeGraph) GetEntity(_ context.Context, id string) (*types.Entity, error) {
	return f.entities[id], nil
}

func (f *fakeGraph) Outgoing(_ context.Context, id, relType string) ([]types.Relation, error) {
	var out []types.Relation
	for _, r := range f.outgoing[id] {
		if relType == "" || r.RelationType == relType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGraph) Incoming(_ context.Context, id, relType string) ([]types.Relation, error) {
	var out []types.Relation
	for _, r := range f.incoming[id] {
		if relType == "" || r.RelationType == relType {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeVectors struct {
	byType map[string][]vectorstore.ScoredID
	err    map[string]error
}

func (f *fakeVectors) Search(_ context.Context, entityType string, _ []float32, limit int) ([]vectorstore.ScoredID, error) {
	if err, ok := f.err[entityType]; ok {
		return nil, err
	}
	results := f.byType[entityType]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func TestExecuteVector_DedupesKeepsHighestScore(t *testing.T) {
	graph := &fakeGraph{entities: map[string]*types.Entity{
		"e1": {ID: "e1", EntityType: "Agent"},
	}}
	vectors := &fakeVectors{byType: map[string][]vectorstore.ScoredID{
		"Agent":    {{ID: "e1", Score: 0.5}},
		"LLMAgent": {{ID: "e1", Score: 0.75}},
	}}
	c := New(&fakeEmbedder{vec: []float32{0.1}}, graph, vectors, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Vector: &VectorQuery{
		Text: "hello", EntityType: "Agent", ExpandTypes: true, Limit: 10,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Score != 0.75 {
		t.Fatalf("unexpected entries: %+v", res.Entries)
	}
}

func TestExecuteVector_DropsMissingEntity(t *testing.T) {
	graph := &fakeGraph{entities: map[string]*types.Entity{}}
	vectors := &fakeVectors{byType: map[string][]vectorstore.ScoredID{
		"Agent": {{ID: "ghost", Score: 0.9}},
	}}
	c := New(&fakeEmbedder{vec: []float32{0.1}}, graph, vectors, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Vector: &VectorQuery{
		Text: "hello", EntityType: "Agent", Limit: 10,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("expected missing entity to be dropped, got %+v", res.Entries)
	}
}

func TestExecuteVector_MinScoreThreshold(t *testing.T) {
	graph := &fakeGraph{entities: map[string]*types.Entity{
		"e1": {ID: "e1", EntityType: "Agent"},
		"e2": {ID: "e2", EntityType: "Agent"},
	}}
	vectors := &fakeVectors{byType: map[string][]vectorstore.ScoredID{
		"Agent": {{ID: "e1", Score: 0.9}, {ID: "e2", Score: 0.1}},
	}}
	min := 0.5
	c := New(&fakeEmbedder{vec: []float32{0.1}}, graph, vectors, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Vector: &VectorQuery{
		Text: "hello", EntityType: "Agent", Limit: 10, MinScore: &min,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].EntityID != "e1" {
		t.Fatalf("expected only e1 to pass threshold, got %+v", res.Entries)
	}
}

func TestExecuteGraph_BFSDiscoversWithinDepth(t *testing.T) {
	graph := &fakeGraph{
		entities: map[string]*types.Entity{
			"a": {ID: "a", EntityType: "Agent"},
			"b": {ID: "b", EntityType: "Task"},
			"c": {ID: "c", EntityType: "Task"},
		},
		outgoing: map[string][]types.Relation{
			"a": {{SourceID: "a", TargetID: "b", RelationType: "executes"}},
			"b": {{SourceID: "b", TargetID: "c", RelationType: "executes"}},
		},
	}
	c := New(&fakeEmbedder{}, graph, &fakeVectors{}, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Graph: &GraphQuery{
		StartEntityID: "a", Depth: 2,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 reachable entities within depth 2, got %+v", res.Entries)
	}
	if res.Entries[0].Score <= res.Entries[1].Score {
		t.Fatalf("expected closer node to score higher: %+v", res.Entries)
	}
}

func TestExecuteGraph_ExpandRelationsResolvesStartEntityType(t *testing.T) {
	graph := &fakeGraph{
		entities: map[string]*types.Entity{
			"a": {ID: "a", EntityType: "LLMAgent"},
			"b": {ID: "b", EntityType: "Task"},
		},
		outgoing: map[string][]types.Relation{
			"a": {{SourceID: "a", TargetID: "b", RelationType: "executes"}},
		},
	}
	c := New(&fakeEmbedder{}, graph, &fakeVectors{}, ontology.NewReasoner(testSchema()))

	// "executes" has Domain "Agent"; only resolving "a"'s actual type
	// (LLMAgent, a subtype of Agent) lets InferRelations treat it as
	// already covered rather than expanding in something unrelated, and
	// confirms the traversal runs off the relation the entity itself
	// declares, not a type match against the raw entity id.
	res, err := c.Execute(context.Background(), HybridQuery{Graph: &GraphQuery{
		StartEntityID: "a", Depth: 1, RelationTypes: []string{"executes"}, ExpandRelations: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].EntityID != "b" {
		t.Fatalf("expected traversal to reach b via executes, got %+v", res.Entries)
	}
}

func TestExecuteGraph_ExpandRelationsMissingStartEntityYieldsNoInference(t *testing.T) {
	graph := &fakeGraph{entities: map[string]*types.Entity{}}
	c := New(&fakeEmbedder{}, graph, &fakeVectors{}, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Graph: &GraphQuery{
		StartEntityID: "ghost", Depth: 1, RelationTypes: []string{"executes"}, ExpandRelations: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.TraversedRelations) != 1 || res.TraversedRelations[0] != "executes" {
		t.Fatalf("expected no relations inferred for a missing start entity, got %+v", res.TraversedRelations)
	}
}

func TestExecuteGraph_BothDirectionRunsOutgoingThenIncomingIndependently(t *testing.T) {
	// a -> b, c -> a: from a, Outgoing reaches b, Incoming reaches c. Both
	// directions share start "a" but must not share a single visited set,
	// or one direction's traversal of "a" would block the other's.
	graph := &fakeGraph{
		entities: map[string]*types.Entity{
			"a": {ID: "a", EntityType: "Agent"},
			"b": {ID: "b", EntityType: "Task"},
			"c": {ID: "c", EntityType: "Agent"},
		},
		outgoing: map[string][]types.Relation{
			"a": {{SourceID: "a", TargetID: "b", RelationType: "executes"}},
		},
		incoming: map[string][]types.Relation{
			"a": {{SourceID: "c", TargetID: "a", RelationType: "executes"}},
		},
	}
	c := New(&fakeEmbedder{}, graph, &fakeVectors{}, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Graph: &GraphQuery{
		StartEntityID: "a", Depth: 1, Direction: Both,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected both b (outgoing) and c (incoming) reached, got %+v", res.Entries)
	}
	// Outgoing results are produced before Incoming results, so b ranks
	// ahead of c (rank-based score 1/(rank+1)).
	if res.Entries[0].EntityID != "b" || res.Entries[1].EntityID != "c" {
		t.Fatalf("expected outgoing-then-incoming discovery order [b c], got %+v", res.Entries)
	}
	if res.Entries[0].Score <= res.Entries[1].Score {
		t.Fatalf("expected b to rank higher than c: %+v", res.Entries)
	}
}

func TestExecuteGraph_DepthZeroEmpty(t *testing.T) {
	graph := &fakeGraph{entities: map[string]*types.Entity{"a": {ID: "a"}}}
	c := New(&fakeEmbedder{}, graph, &fakeVectors{}, ontology.NewReasoner(testSchema()))

	res, err := c.Execute(context.Background(), HybridQuery{Graph: &GraphQuery{
		StartEntityID: "a", Depth: 0,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("expected empty result at depth 0, got %+v", res.Entries)
	}
}

func TestFuse_RankFusionCombinesBothLists(t *testing.T) {
	vector := []ResultEntry{{EntityID: "a", Score: 0.9}, {EntityID: "b", Score: 0.5}}
	graph := []ResultEntry{{EntityID: "b", Score: 1.0}, {EntityID: "c", Score: 0.5}}

	out := fuse(RankFusion, vector, graph)
	scores := make(map[string]float64)
	for _, e := range out {
		scores[e.EntityID] = e.Score
		if e.Source != SourceHybrid {
			t.Errorf("expected hybrid source for %s, got %s", e.EntityID, e.Source)
		}
	}
	// b appears in both lists so should score higher than either a or c alone.
	if scores["b"] <= scores["a"] || scores["b"] <= scores["c"] {
		t.Fatalf("expected b (present in both lists) to rank highest: %+v", scores)
	}
}

func TestFuse_Intersection(t *testing.T) {
	vector := []ResultEntry{{EntityID: "a", Score: 0.9}, {EntityID: "b", Score: 0.5}}
	graph := []ResultEntry{{EntityID: "b", Score: 1.0}}

	out := fuse(Intersection, vector, graph)
	if len(out) != 1 || out[0].EntityID != "b" {
		t.Fatalf("expected only b to survive intersection, got %+v", out)
	}
}

func TestFuse_VectorPriorityKeepsVectorScores(t *testing.T) {
	vector := []ResultEntry{{EntityID: "a", Score: 0.9}}
	graph := []ResultEntry{{EntityID: "a", Score: 0.1}}

	out := fuse(VectorPriority, vector, graph)
	if len(out) != 1 || out[0].Score != 0.9 || out[0].Source != SourceHybrid {
		t.Fatalf("expected vector score retained with hybrid source, got %+v", out)
	}
}

func TestFuse_GraphPriorityUsesVectorScoreWhenPresent(t *testing.T) {
	vector := []ResultEntry{{EntityID: "a", Score: 0.9}}
	graph := []ResultEntry{{EntityID: "a", Score: 0.1}, {EntityID: "b", Score: 0.2}}

	out := fuse(GraphPriority, vector, graph)
	if len(out) != 2 {
		t.Fatalf("expected graph list length preserved, got %+v", out)
	}
	for _, e := range out {
		if e.EntityID == "a" && e.Score != 0.9 {
			t.Fatalf("expected a's score replaced by vector score, got %+v", e)
		}
		if e.EntityID == "b" && e.Source == SourceHybrid {
			t.Fatalf("b has no vector counterpart, should not be marked hybrid: %+v", e)
		}
	}
}

func TestFuse_UnionLeavesGraphOnlySourceUntouched(t *testing.T) {
	vector := []ResultEntry{{EntityID: "a", Score: 0.9, Source: SourceVector}}
	graph := []ResultEntry{
		{EntityID: "a", Score: 0.1, Source: SourceGraph},
		{EntityID: "b", Score: 0.4, Source: SourceGraph},
	}

	out := fuse(Union, vector, graph)
	if len(out) != 2 {
		t.Fatalf("expected union of both lists, got %+v", out)
	}
	for _, e := range out {
		switch e.EntityID {
		case "a":
			if e.Source != SourceHybrid || e.Score != 0.5 {
				t.Fatalf("expected a averaged and marked hybrid, got %+v", e)
			}
		case "b":
			if e.Source != SourceGraph || e.Score != 0.4 {
				t.Fatalf("expected graph-only b to keep its source and score untouched, got %+v", e)
			}
		default:
			t.Fatalf("unexpected entity in union output: %+v", e)
		}
	}
}
