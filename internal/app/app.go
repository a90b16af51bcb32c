// Package app wires tracegraph's subsystems together: graph store, vector
// store, embedding manager, ontology schema/reasoner, query coordinator, and
// event ingestor, exposed behind an HTTP server with health and readiness
// endpoints wrapped in the observe metrics/tracing middleware. No metrics
// scrape endpoint is registered.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tracegraph/tracegraph/internal/config"
	"github.com/tracegraph/tracegraph/internal/embedding"
	"github.com/tracegraph/tracegraph/internal/graphstore"
	"github.com/tracegraph/tracegraph/internal/health"
	"github.com/tracegraph/tracegraph/internal/ingest"
	"github.com/tracegraph/tracegraph/internal/observe"
	"github.com/tracegraph/tracegraph/internal/ontology"
	"github.com/tracegraph/tracegraph/internal/query"
	"github.com/tracegraph/tracegraph/internal/tracerr"
	"github.com/tracegraph/tracegraph/internal/vectorstore"
	"github.com/tracegraph/tracegraph/pkg/types"
)

// shutdownTimeout bounds how long a single closer may take during Shutdown
// when the caller-supplied context carries no deadline of its own.
const shutdownTimeout = 10 * time.Second

// EntityWriter is the subset of the Graph Store Adapter the entity
// write data-flow needs (spec.md §2).
type EntityWriter interface {
	CreateEntity(ctx context.Context, e *types.Entity) (*types.Entity, error)
}

// RelationWriter is the subset of the Graph Store Adapter the relation
// write data-flow needs: commit plus the outgoing-edge count a functional
// relation's write path checks against (spec.md §2, §4.2, §4.9).
type RelationWriter interface {
	CreateRelation(ctx context.Context, r *types.Relation) (*types.Relation, error)
	OutgoingCount(ctx context.Context, entityID, relationType string) (int, error)
}

// GraphStore is the full surface App needs from a graph backend: everything
// the Query Coordinator, Event Ingestor, and entity/relation write paths
// require. *graphstore.Store satisfies it directly.
type GraphStore interface {
	query.GraphReader
	ingest.GraphStore
	EntityWriter
	RelationWriter
}

// VectorStore is the full surface App needs from a vector backend.
// *vectorstore.Store satisfies it directly.
type VectorStore interface {
	query.VectorSearcher
	ingest.VectorUpserter
}

// Embedder is the full surface App needs from an embedding backend.
// *embedding.Manager satisfies it directly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Health(ctx context.Context) (bool, string)
}

// App owns every long-lived subsystem and the HTTP server that exposes them.
type App struct {
	cfg *config.Config

	graph     GraphStore
	vectors   VectorStore
	embedder  Embedder
	schema    *ontology.Schema
	reasoner  *ontology.Reasoner
	validator *ontology.Validator

	coordinator *query.Coordinator
	ingestor    *ingest.Ingestor

	registry *config.Registry
	metrics  *observe.Metrics
	healthH  *health.Handler
	server   *http.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option customizes App construction, primarily to inject test doubles in
// place of the real graph/vector/embedding backends.
type Option func(*App)

// WithGraphStore injects a GraphStore in place of a real SurrealDB
// connection. Intended for tests.
func WithGraphStore(s GraphStore) Option {
	return func(a *App) { a.graph = s }
}

// WithVectorStore injects a VectorStore in place of a real Qdrant
// connection. Intended for tests.
func WithVectorStore(s VectorStore) Option {
	return func(a *App) { a.vectors = s }
}

// WithEmbedder injects an Embedder in place of the primary/fallback manager
// built from configuration. Intended for tests.
func WithEmbedder(e Embedder) Option {
	return func(a *App) { a.embedder = e }
}

// WithRegistry supplies the embeddings provider registry used to build the
// default embedder when none is injected via [WithEmbedder]. Callers that
// rely on the registry must register at least the provider named in
// cfg.Embeddings.Primary.Name (and cfg.Embeddings.Fallback.Name, if set)
// before calling [New].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// New performs synchronous, staged initialization of every subsystem named
// in cfg: schema load, graph store connection, vector store connection,
// embedding manager, reasoner, query coordinator, and event ingestor. On any
// failure, subsystems already opened are closed before the error is
// returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	a = &App{cfg: cfg, metrics: observe.DefaultMetrics()}
	for _, opt := range opts {
		opt(a)
	}

	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	if err = a.initSchema(); err != nil {
		return nil, err
	}
	if err = a.initGraphStore(ctx); err != nil {
		return nil, err
	}
	if err = a.initVectorStore(); err != nil {
		return nil, err
	}
	if err = a.initEmbedder(); err != nil {
		return nil, err
	}

	a.reasoner = ontology.NewReasoner(a.schema)
	a.validator = ontology.NewValidator(a.schema)
	a.coordinator = query.New(a.embedder, a.graph, a.vectors, a.reasoner)
	a.ingestor = ingest.New(a.graph, a.embedder, a.vectors)

	a.initHTTP()

	return a, nil
}

// initSchema loads and validates the ontology schema named in
// cfg.Schema.Path, in the format named by cfg.Schema.Format (default YAML).
func (a *App) initSchema() error {
	format := ontology.FormatYAML
	if a.cfg.Schema.Format == config.SchemaFormatJSON {
		format = ontology.FormatJSON
	}

	data, err := os.ReadFile(a.cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("app: read schema %q: %w", a.cfg.Schema.Path, err)
	}
	schema, err := ontology.Load(data, format)
	if err != nil {
		return fmt.Errorf("app: load schema %q: %w", a.cfg.Schema.Path, err)
	}
	a.schema = schema
	return nil
}

// initGraphStore connects to SurrealDB unless a GraphStore was injected via
// [WithGraphStore].
func (a *App) initGraphStore(ctx context.Context) error {
	if a.graph != nil {
		return nil
	}
	store, err := graphstore.Connect(ctx, graphstore.Config{
		Endpoint:  a.cfg.GraphStore.Endpoint,
		Namespace: a.cfg.GraphStore.Namespace,
		Database:  a.cfg.GraphStore.Database,
		Username:  a.cfg.GraphStore.Username,
		Password:  a.cfg.GraphStore.Password,
	})
	if err != nil {
		return fmt.Errorf("app: connect graph store: %w", err)
	}
	a.graph = store
	return nil
}

// initVectorStore connects to Qdrant unless a VectorStore was injected via
// [WithVectorStore].
func (a *App) initVectorStore() error {
	if a.vectors != nil {
		return nil
	}
	store, err := vectorstore.New(vectorstore.Config{
		Host:             a.cfg.VectorStore.Host,
		Port:             a.cfg.VectorStore.Port,
		APIKey:           a.cfg.VectorStore.APIKey,
		UseTLS:           a.cfg.VectorStore.UseTLS,
		CollectionPrefix: a.cfg.VectorStore.CollectionPrefix,
	})
	if err != nil {
		return fmt.Errorf("app: connect vector store: %w", err)
	}
	a.vectors = store
	return nil
}

// initEmbedder builds the primary/fallback embedding manager from
// cfg.Embeddings unless an Embedder was injected via [WithEmbedder]. Requires
// a registry set via [WithRegistry] when no embedder is injected.
func (a *App) initEmbedder() error {
	if a.embedder != nil {
		return nil
	}
	if a.registry == nil {
		return errors.New("app: no embedder injected and no registry configured (use WithRegistry or WithEmbedder)")
	}

	primary, err := a.registry.CreateEmbeddings(a.cfg.Embeddings.Primary)
	if err != nil {
		return fmt.Errorf("app: create primary embeddings provider %q: %w", a.cfg.Embeddings.Primary.Name, err)
	}
	mgr := embedding.New(primary, a.cfg.Embeddings.Primary.Name)

	if fb := a.cfg.Embeddings.Fallback; fb != nil && fb.Name != "" {
		fallback, err := a.registry.CreateEmbeddings(*fb)
		if err != nil {
			return fmt.Errorf("app: create fallback embeddings provider %q: %w", fb.Name, err)
		}
		mgr.AddFallback(fb.Name, fallback)
	}
	a.embedder = mgr
	return nil
}

// initHTTP builds the health handler and HTTP server. Only /healthz and
// /readyz are routed; there is no /metrics route. The Query
// Coordinator and Event Ingestor are invoked directly by callers that embed
// this package, or by a transport adapter layered on top of it.
func (a *App) initHTTP() {
	a.healthH = health.New(
		health.Checker{Name: "graph_store", Check: func(ctx context.Context) error {
			// A lookup against a reserved, never-created id exercises the
			// connection without depending on any particular entity existing.
			// GetEntity returns (nil, nil) for a missing id — only a non-nil
			// error indicates the store itself is unreachable.
			_, err := a.graph.GetEntity(ctx, "__tracegraph_healthcheck__")
			return err
		}},
		health.Checker{Name: "embeddings", Check: func(ctx context.Context) error {
			if ok, reason := a.embedder.Health(ctx); !ok {
				return errors.New(reason)
			}
			return nil
		}},
	)

	mux := http.NewServeMux()
	a.healthH.Register(mux)

	a.server = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// Coordinator returns the Query Coordinator for direct use by embedding
// callers (e.g. a CLI, RPC server, or test harness built on top of App).
func (a *App) Coordinator() *query.Coordinator { return a.coordinator }

// Ingestor returns the Event Ingestor for direct use by embedding callers.
func (a *App) Ingestor() *ingest.Ingestor { return a.ingestor }

// Schema returns the loaded ontology schema.
func (a *App) Schema() *ontology.Schema { return a.schema }

// Validator returns the entity/relation validator bound to the loaded
// schema.
func (a *App) Validator() *ontology.Validator { return a.validator }

// CreateEntity runs the entity write data-flow of spec.md §2: validate e
// against the active schema, embed its textual properties through the
// Embedding Service (unless e already carries one), commit to the graph
// store, then best-effort upsert the resulting vector into e.EntityType's
// collection. Vector-stage failures are logged and do not abort the write
// (spec.md §7).
func (a *App) CreateEntity(ctx context.Context, e *types.Entity) (*types.Entity, error) {
	if errs := a.validator.ValidateEntity(e.EntityType, e.Properties); len(errs) > 0 {
		wrapped := make([]error, len(errs))
		for i, verr := range errs {
			wrapped[i] = verr
		}
		return nil, errors.Join(wrapped...)
	}

	if len(e.Embedding) == 0 {
		if text := entityText(e.Properties); text != "" {
			vec, err := a.embedder.Embed(ctx, text)
			if err != nil {
				return nil, tracerr.Wrap("app: embed entity", tracerr.EmbeddingFailure, err)
			}
			e.Embedding = vec
		}
	}

	created, err := a.graph.CreateEntity(ctx, e)
	if err != nil {
		return nil, err
	}

	if len(created.Embedding) > 0 {
		if err := a.vectors.EnsureCollection(ctx, created.EntityType, uint64(len(created.Embedding))); err != nil {
			slog.Warn("app: ensure entity vector collection failed", "entity", created.ID, "type", created.EntityType, "error", err)
		} else if err := a.vectors.Upsert(ctx, created.EntityType, created.ID, created.Embedding); err != nil {
			slog.Warn("app: upsert entity vector failed", "entity", created.ID, "type", created.EntityType, "error", err)
		}
	}

	return created, nil
}

// entityText concatenates non-nested scalar property values as "key: value"
// pairs, sorted by key for determinism — the same textual-extraction rule
// ingest.extractSearchableText applies to event properties (spec.md §2,
// §4.8 step 4).
func entityText(properties map[string]any) string {
	if len(properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(properties))
	for k, v := range properties {
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, properties[k]))
	}
	return strings.Join(parts, ", ")
}

// AddRelation runs the relation write data-flow of spec.md §2, §4.2, §4.9:
// resolve the endpoints' entity types, check domain/range compatibility via
// the Validator, reject a functional relation's second outgoing edge, then
// commit. From validated, a functional-relation violation is terminal
// (spec.md §4.9 "Relation write" state machine).
func (a *App) AddRelation(ctx context.Context, r *types.Relation) (*types.Relation, error) {
	rt, ok := a.schema.RelationTypes[r.RelationType]
	if !ok {
		return nil, tracerr.New("app: add relation", tracerr.RelationTypeUnknown)
	}

	source, err := a.graph.GetEntity(ctx, r.SourceID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, tracerr.New(fmt.Sprintf("app: add relation: source %s not found", r.SourceID), tracerr.NotFound)
	}
	target, err := a.graph.GetEntity(ctx, r.TargetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, tracerr.New(fmt.Sprintf("app: add relation: target %s not found", r.TargetID), tracerr.NotFound)
	}

	if err := a.validator.ValidateRelation(r.RelationType, source.EntityType, target.EntityType); err != nil {
		return nil, err
	}

	if rt.Functional {
		count, err := a.graph.OutgoingCount(ctx, r.SourceID, r.RelationType)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, tracerr.New(
				fmt.Sprintf("app: add relation: source %s already has an outgoing %s edge", r.SourceID, r.RelationType),
				tracerr.FunctionalRelationExceeded)
		}
	}

	return a.graph.CreateRelation(ctx, r)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// stops for any other reason.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server and runs every registered closer exactly
// once, in reverse registration order, respecting ctx's deadline (or a default
// [shutdownTimeout] when ctx carries none).
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
		}

		var errs []error
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
	})
	return shutdownErr
}
