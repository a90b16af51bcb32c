// Package query implements the Query Coordinator: the single entry point
// for vector, graph, and combined hybrid retrieval over the knowledge graph
// (spec.md §4.7).
//
// Grounded on original_source/vectadb/src/query/coordinator.rs's three
// execution paths and its five-strategy result fusion table, re-expressed
// as a Go tagged-union HybridQuery plus a Coordinator that dispatches to the
// graph store, vector store, embedding service, and reasoner already built
// in this module.
package query

import "time"

// Direction is the traversal direction for a graph sub-query.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// MergeStrategy names one of the five combined-query fusion policies
// (spec.md §4.7).
type MergeStrategy string

const (
	Union         MergeStrategy = "union"
	Intersection  MergeStrategy = "intersection"
	RankFusion    MergeStrategy = "rank_fusion"
	VectorPriority MergeStrategy = "vector_priority"
	GraphPriority MergeStrategy = "graph_priority"
)

// rankFusionK is the reciprocal-rank-fusion smoothing constant (spec.md
// §4.7's RankFusion row): score(id) = Σ 1/(K + rank + 1).
const rankFusionK = 60

// VectorQuery is the Vector variant of HybridQuery.
type VectorQuery struct {
	Text        string
	EntityType  string
	ExpandTypes bool
	Limit       int
	MinScore    *float64
}

// GraphQuery is the Graph variant of HybridQuery. Graph-only execution has
// no limit/truncation step in spec.md §4.7 — only the depth bound applies.
type GraphQuery struct {
	StartEntityID   string
	RelationTypes   []string
	ExpandRelations bool
	Direction       Direction
	Depth           int
}

// CombinedQuery is the Combined variant of HybridQuery: always runs Vector,
// optionally also runs Graph, fusing both under MergeStrategy.
type CombinedQuery struct {
	Vector        VectorQuery
	Graph         *GraphQuery
	MergeStrategy MergeStrategy
}

// HybridQuery is the tagged-union query surface the Coordinator accepts.
// Exactly one of Vector, Graph, or Combined is set.
type HybridQuery struct {
	Vector   *VectorQuery
	Graph    *GraphQuery
	Combined *CombinedQuery
}

// ResultSource names which sub-query contributed a ResultEntry.
type ResultSource string

const (
	SourceVector ResultSource = "vector"
	SourceGraph  ResultSource = "graph"
	SourceHybrid ResultSource = "hybrid"
)

// ResultEntry is one scored entity in a QueryResult.
type ResultEntry struct {
	EntityID    string
	EntityType  string
	Score       float64
	Source      ResultSource
	Explanation string
}

// QueryResult is the Coordinator's return value: the matched entries plus
// execution metadata (spec.md §4.7 "Metadata").
type QueryResult struct {
	Entries            []ResultEntry
	ExecutionTime      time.Duration
	VectorCount        int
	GraphCount         int
	SearchedTypes      []string
	TraversedRelations []string
}

// defaults applied when a query field is left at its zero value (spec.md
// §2 "Structured query surface").
const (
	DefaultVectorLimit = 10
	DefaultGraphDepth  = 2
)

func applyVectorDefaults(q *VectorQuery) {
	if q.Limit <= 0 {
		q.Limit = DefaultVectorLimit
	}
}

func applyGraphDefaults(q *GraphQuery) {
	if q.Depth <= 0 {
		q.Depth = DefaultGraphDepth
	}
	if q.Direction == "" {
		q.Direction = Outgoing
	}
}
