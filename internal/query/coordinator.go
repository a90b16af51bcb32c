package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracegraph/tracegraph/internal/ontology"
	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/internal/vectorstore"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// Embedder is the subset of the Embedding Service the Coordinator needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphReader is the subset of the Graph Store Adapter the Coordinator
// needs for graph traversal and entity hydration.
type GraphReader interface {
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	Outgoing(ctx context.Context, entityID, relationType string) ([]types.Relation, error)
	Incoming(ctx context.Context, entityID, relationType string) ([]types.Relation, error)
}

// VectorSearcher is the subset of the Vector Store Adapter the Coordinator
// needs for similarity search.
type VectorSearcher interface {
	Search(ctx context.Context, entityType string, vector []float32, limit int) ([]vectorstore.ScoredID, error)
}

// Coordinator is the Query Coordinator: it dispatches HybridQuery values to
// the vector store, graph store, and reasoner, and fuses results for
// Combined execution (spec.md §4.7).
type Coordinator struct {
	embedder Embedder
	graph    GraphReader
	vectors  VectorSearcher
	reasoner *ontology.Reasoner
}

// New returns a Coordinator wired to its collaborators.
func New(embedder Embedder, graph GraphReader, vectors VectorSearcher, reasoner *ontology.Reasoner) *Coordinator {
	return &Coordinator{embedder: embedder, graph: graph, vectors: vectors, reasoner: reasoner}
}

// Execute dispatches q to the matching execution path.
func (c *Coordinator) Execute(ctx context.Context, q HybridQuery) (*QueryResult, error) {
	start := time.Now()
	var (
		res *QueryResult
		err error
	)
	switch {
	case q.Vector != nil:
		res, err = c.executeVector(ctx, *q.Vector)
	case q.Graph != nil:
		res, err = c.executeGraph(ctx, *q.Graph)
	case q.Combined != nil:
		res, err = c.executeCombined(ctx, *q.Combined)
	default:
		return nil, tracerr.Wrap("query: execute", tracerr.InvalidQuery, fmt.Errorf("HybridQuery has no variant set"))
	}
	if err != nil {
		return nil, err
	}
	res.ExecutionTime = time.Since(start)
	return res, nil
}

// executeVector implements spec.md §4.7's Vector execution steps 1-7.
func (c *Coordinator) executeVector(ctx context.Context, q VectorQuery) (*QueryResult, error) {
	applyVectorDefaults(&q)

	vec, err := c.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, tracerr.Wrap("query: vector embed", tracerr.EmbeddingFailure, err)
	}

	entityTypes := []string{q.EntityType}
	if q.ExpandTypes {
		expanded, err := c.reasoner.Expand(q.EntityType)
		if err != nil {
			return nil, err
		}
		entityTypes = expanded.ExpandedTypes
	}

	best := make(map[string]vectorstore.ScoredID)
	bestType := make(map[string]string)
	for _, t := range entityTypes {
		scored, err := c.vectors.Search(ctx, t, vec, q.Limit)
		if err != nil {
			// A failing per-type search is logged and skipped; partial
			// results are permitted (spec.md §4.7 "Failure semantics").
			slog.Warn("query: vector search failed for type, skipping", "type", t, "error", err)
			continue
		}
		for _, s := range scored {
			if q.MinScore != nil && float64(s.Score) < *q.MinScore {
				continue
			}
			if existing, ok := best[s.ID]; !ok || s.Score > existing.Score {
				best[s.ID] = s
				bestType[s.ID] = t
			}
		}
	}

	entries := make([]ResultEntry, 0, len(best))
	for id, s := range best {
		entity, err := c.graph.GetEntity(ctx, id)
		if err != nil {
			return nil, tracerr.Wrap(fmt.Sprintf("query: hydrate entity %s", id), tracerr.GraphStoreFailure, err)
		}
		if entity == nil {
			// Documented consistency tolerance: a vector hit whose entity
			// record is gone is dropped (spec.md §9).
			continue
		}
		entries = append(entries, ResultEntry{
			EntityID:    id,
			EntityType:  bestType[id],
			Score:       float64(s.Score),
			Source:      SourceVector,
			Explanation: fmt.Sprintf("vector similarity score=%.4f", s.Score),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	return &QueryResult{
		Entries:       entries,
		VectorCount:   len(entries),
		SearchedTypes: entityTypes,
	}, nil
}

// executeGraph implements spec.md §4.7's Graph execution steps 1-5.
func (c *Coordinator) executeGraph(ctx context.Context, q GraphQuery) (*QueryResult, error) {
	applyGraphDefaults(&q)

	relTypes := q.RelationTypes
	if q.ExpandRelations && len(relTypes) > 0 {
		startEntity, err := c.graph.GetEntity(ctx, q.StartEntityID)
		if err != nil {
			return nil, tracerr.Wrap(fmt.Sprintf("query: resolve start entity %s", q.StartEntityID), tracerr.GraphStoreFailure, err)
		}

		seen := make(map[string]bool, len(relTypes))
		var expanded []string
		for _, rt := range relTypes {
			if !seen[rt] {
				seen[rt] = true
				expanded = append(expanded, rt)
			}
		}
		// InferRelations matches relations by domain entity *type*, not id
		// (spec.md §4.3); a missing start entity simply yields no inferred
		// relations to add.
		if startEntity != nil {
			for _, inferred := range c.reasoner.InferRelations(startEntity.EntityType) {
				if !seen[inferred.RelationType] {
					seen[inferred.RelationType] = true
					expanded = append(expanded, inferred.RelationType)
				}
			}
		}
		relTypes = expanded
	}

	order, err := c.bfs(ctx, q.StartEntityID, relTypes, q.Direction, q.Depth)
	if err != nil {
		return nil, err
	}

	entries := make([]ResultEntry, 0, len(order))
	for i, id := range order {
		entity, err := c.graph.GetEntity(ctx, id)
		if err != nil {
			return nil, tracerr.Wrap(fmt.Sprintf("query: hydrate entity %s", id), tracerr.GraphStoreFailure, err)
		}
		if entity == nil {
			continue
		}
		rank := i
		entries = append(entries, ResultEntry{
			EntityID:    id,
			EntityType:  entity.EntityType,
			Score:       1.0 / float64(rank+1),
			Source:      SourceGraph,
			Explanation: fmt.Sprintf("graph distance rank=%d", rank),
		})
	}

	return &QueryResult{
		Entries:            entries,
		GraphCount:         len(entries),
		TraversedRelations: relTypes,
	}, nil
}

// bfs expands from start honoring direction and the optional relation-type
// filter (spec.md §4.7 steps 2-4). Both runs a full Outgoing traversal, then
// a full Incoming traversal — each with its own visited set — and
// concatenates before a final dedup pass preserving discovery order (first
// occurrence wins), matching the Rust source's run-then-concatenate shape
// rather than interleaving both directions under one shared visited set.
func (c *Coordinator) bfs(ctx context.Context, start string, relTypes []string, dir Direction, depth int) ([]string, error) {
	if depth <= 0 {
		return nil, nil
	}

	if dir == Both {
		outOrder, err := c.bfsDirection(ctx, start, relTypes, Outgoing, depth)
		if err != nil {
			return nil, err
		}
		inOrder, err := c.bfsDirection(ctx, start, relTypes, Incoming, depth)
		if err != nil {
			return nil, err
		}
		return dedupeOrder(append(outOrder, inOrder...)), nil
	}
	return c.bfsDirection(ctx, start, relTypes, dir, depth)
}

// bfsDirection runs a single-direction BFS with its own visited set,
// returning reachable entity ids in discovery order with duplicates
// removed. When relTypes is empty, all edges are followed; otherwise the
// union of each named relation's neighbors is used.
func (c *Coordinator) bfsDirection(ctx context.Context, start string, relTypes []string, dir Direction, depth int) ([]string, error) {
	neighbors := func(ctx context.Context, id string) ([]types.Relation, error) {
		var rels []types.Relation
		fetch := func(relType string) error {
			switch dir {
			case Outgoing:
				r, err := c.graph.Outgoing(ctx, id, relType)
				if err != nil {
					return err
				}
				rels = append(rels, r...)
			case Incoming:
				r, err := c.graph.Incoming(ctx, id, relType)
				if err != nil {
					return err
				}
				// Incoming edges point at id; the neighbor to traverse is
				// the source, not the target.
				for i := range r {
					r[i].TargetID = r[i].SourceID
				}
				rels = append(rels, r...)
			}
			return nil
		}
		if len(relTypes) == 0 {
			if err := fetch(""); err != nil {
				return nil, err
			}
			return rels, nil
		}
		for _, rt := range relTypes {
			if err := fetch(rt); err != nil {
				return nil, err
			}
		}
		return rels, nil
	}

	visited := map[string]bool{start: true}
	var order []string
	currentLevel := []string{start}
	for level := 0; level < depth; level++ {
		var nextLevel []string
		for _, id := range currentLevel {
			rels, err := neighbors(ctx, id)
			if err != nil {
				return nil, tracerr.Wrap(fmt.Sprintf("query: graph neighbors %s", id), tracerr.GraphStoreFailure, err)
			}
			for _, rel := range rels {
				if visited[rel.TargetID] {
					continue
				}
				visited[rel.TargetID] = true
				order = append(order, rel.TargetID)
				nextLevel = append(nextLevel, rel.TargetID)
			}
		}
		currentLevel = nextLevel
		if len(currentLevel) == 0 {
			break
		}
	}
	return order, nil
}

// dedupeOrder removes repeats from order, keeping each id's first
// occurrence (spec.md §4.7 step 4).
func dedupeOrder(order []string) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(order))
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// executeCombined implements spec.md §4.7's Combined execution: always runs
// Vector, optionally Graph, then fuses under the requested MergeStrategy.
func (c *Coordinator) executeCombined(ctx context.Context, q CombinedQuery) (*QueryResult, error) {
	applyVectorDefaults(&q.Vector)
	strategy := q.MergeStrategy
	if strategy == "" {
		strategy = RankFusion
	}

	var (
		vectorRes *QueryResult
		graphRes  *QueryResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.executeVector(gctx, q.Vector)
		if err != nil {
			return err
		}
		vectorRes = r
		return nil
	})
	if q.Graph != nil {
		g.Go(func() error {
			r, err := c.executeGraph(gctx, *q.Graph)
			if err != nil {
				return err
			}
			graphRes = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// A failing sub-query in a Combined execution is fatal (spec.md
		// §4.7 "Failure semantics").
		return nil, err
	}

	var fused []ResultEntry
	var traversed []string
	if graphRes == nil {
		fused = vectorRes.Entries
	} else {
		fused = fuse(strategy, vectorRes.Entries, graphRes.Entries)
		traversed = graphRes.TraversedRelations
	}

	sort.Slice(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > q.Vector.Limit {
		fused = fused[:q.Vector.Limit]
	}

	result := &QueryResult{
		Entries:            fused,
		VectorCount:        vectorRes.VectorCount,
		SearchedTypes:      vectorRes.SearchedTypes,
		TraversedRelations: traversed,
	}
	if graphRes != nil {
		result.GraphCount = graphRes.GraphCount
	}
	return result, nil
}

// fuse implements the five merge strategies of spec.md §4.7's Combined
// execution table.
func fuse(strategy MergeStrategy, vector, graph []ResultEntry) []ResultEntry {
	vectorByID := make(map[string]ResultEntry, len(vector))
	for _, e := range vector {
		vectorByID[e.EntityID] = e
	}
	graphByID := make(map[string]ResultEntry, len(graph))
	for _, e := range graph {
		graphByID[e.EntityID] = e
	}

	switch strategy {
	case Intersection:
		var out []ResultEntry
		for _, e := range vector {
			if _, ok := graphByID[e.EntityID]; ok {
				e.Source = SourceHybrid
				out = append(out, e)
			}
		}
		return out

	case VectorPriority:
		out := make([]ResultEntry, len(vector))
		copy(out, vector)
		for i, e := range out {
			if _, ok := graphByID[e.EntityID]; ok {
				out[i].Source = SourceHybrid
			}
		}
		return out

	case GraphPriority:
		out := make([]ResultEntry, len(graph))
		copy(out, graph)
		for i, e := range out {
			if v, ok := vectorByID[e.EntityID]; ok {
				out[i].Score = v.Score
				out[i].Source = SourceHybrid
			}
		}
		return out

	case RankFusion:
		scores := make(map[string]float64)
		entries := make(map[string]ResultEntry)
		for i, e := range vector {
			scores[e.EntityID] += 1.0 / float64(rankFusionK+i+1)
			entries[e.EntityID] = e
		}
		for i, e := range graph {
			scores[e.EntityID] += 1.0 / float64(rankFusionK+i+1)
			if _, ok := entries[e.EntityID]; !ok {
				entries[e.EntityID] = e
			}
		}
		out := make([]ResultEntry, 0, len(scores))
		for id, score := range scores {
			e := entries[id]
			e.Score = score
			e.Source = SourceHybrid
			out = append(out, e)
		}
		return out

	default: // Union
		out := make([]ResultEntry, 0, len(vectorByID)+len(graphByID))
		seen := make(map[string]bool)
		for _, e := range vector {
			if g, ok := graphByID[e.EntityID]; ok {
				e.Score = (e.Score + g.Score) / 2
				e.Source = SourceHybrid
			}
			out = append(out, e)
			seen[e.EntityID] = true
		}
		for _, e := range graph {
			if seen[e.EntityID] {
				continue
			}
			// Graph-only entry: score and source stay untouched (spec.md
			// §4.7 Union — only entries present in both lists are averaged
			// and marked Hybrid).
			out = append(out, e)
		}
		return out
	}
}
