// Package search implements the hybrid search core (C8): semantic,
// full-text and unified retrieval plus graph pattern queries and the
// reranker contract, grounded on the teacher's query-shaping style in
// pkg/embedder (task-aware embedding calls) and internal/storage's
// search helpers.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/store"
)

// Clamp bounds per §4.7.
const (
	minTopK              = 1
	maxTopK              = 1000
	minPrefetchMultiplier = 1
	maxPrefetchMultiplier = 10
	minGraphDepth         = 1
	maxGraphDepth         = 10
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result is one search hit, carrying the entity plus the score(s) that
// produced it.
type Result struct {
	Entity         *entity.Entity
	SemanticScore  float32
	FullTextScore  float32
	Sources        []string // "semantic", "fulltext"
}

// Metadata accompanies every search response (§6 "Response metadata").
type Metadata struct {
	QueryTimeMS  int64
	TotalResults int
	Reranked     bool
}

// Reranker is the cross-encoder contract (§4.7): scores (id, content) pairs
// against a query and returns the top-k in descending score order.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []Document, topK int) ([]RankedDocument, error)
}

// Document is reranker input: an entity id and the text built from it.
type Document struct {
	EntityID string
	Content  string
}

// RankedDocument is reranker output.
type RankedDocument struct {
	EntityID string
	Score    float32
}

// Core wires the embedding manager, the three store interfaces and an
// optional reranker into the retrieval operations the REST surface and the
// agentic orchestrator call.
type Core struct {
	Embedder   *embedding.Manager
	Relational store.RelationalStore
	Vector     store.VectorStore
	Graph      store.GraphStore
	Reranker   Reranker
}

// New builds a Core. reranker may be nil; semantic/unified search then skip
// the rerank step regardless of the caller's rerank flag.
func New(embedder *embedding.Manager, relational store.RelationalStore, vector store.VectorStore, graph store.GraphStore, reranker Reranker) *Core {
	return &Core{Embedder: embedder, Relational: relational, Vector: vector, Graph: graph, Reranker: reranker}
}

// SemanticRequest is the input to Semantic.
type SemanticRequest struct {
	Query              string
	RepositoryID       string
	Collection         string
	TopK               int
	PrefetchMultiplier int
	Rerank             bool
}

// Semantic embeds the query with the Query task, searches the vector store
// with limit = top_k * prefetch_multiplier, resolves hits to entities, and
// optionally reranks before truncating to top_k.
func (c *Core) Semantic(ctx context.Context, req SemanticRequest) ([]Result, Metadata, error) {
	topK := clamp(req.TopK, minTopK, maxTopK)
	prefetch := clamp(req.PrefetchMultiplier, minPrefetchMultiplier, maxPrefetchMultiplier)

	dense, err := c.Embedder.EmbedDense(ctx, []string{req.Query}, embedding.TaskQuery)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("search: embed query: %w", err)
	}
	if len(dense) == 0 || dense[0] == nil {
		return nil, Metadata{TotalResults: 0}, nil
	}

	filter := store.PayloadFilter{"repository_id": req.RepositoryID}
	hits, err := c.Vector.Search(ctx, req.Collection, dense[0], nil, topK*prefetch, 0, filter)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("search: vector search: %w", err)
	}

	results, err := c.resolveVectorHits(ctx, hits)
	if err != nil {
		return nil, Metadata{}, err
	}

	reranked := false
	if req.Rerank && c.Reranker != nil && len(results) > 0 {
		rerankedResults, rerr := c.rerank(ctx, req.Query, results, topK)
		if rerr != nil {
			slog.Warn("search: rerank failed, falling back to pre-rerank ordering", "error", rerr)
			if len(results) > topK {
				results = results[:topK]
			}
		} else {
			results = rerankedResults
			reranked = true
		}
	} else if len(results) > topK {
		results = results[:topK]
	}

	return results, Metadata{TotalResults: len(results), Reranked: reranked}, nil
}

// FullTextRequest is the input to FullText.
type FullTextRequest struct {
	Query        string
	RepositoryID string
	TopK         int
}

// FullText runs a tokenized-text query against the relational store.
func (c *Core) FullText(ctx context.Context, req FullTextRequest) ([]Result, Metadata, error) {
	topK := clamp(req.TopK, minTopK, maxTopK)
	entities, err := c.Relational.SearchFullText(ctx, req.RepositoryID, req.Query, topK)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("search: fulltext: %w", err)
	}
	results := make([]Result, len(entities))
	for i, e := range entities {
		results[i] = Result{Entity: e, Sources: []string{"fulltext"}}
	}
	return results, Metadata{TotalResults: len(results)}, nil
}

// UnifiedRequest is the input to Unified.
type UnifiedRequest struct {
	Query              string
	RepositoryID       string
	Collection         string
	SemanticLimit      int
	FullTextLimit      int
	PrefetchMultiplier int
	Rerank             bool
}

// Unified runs semantic and full-text search concurrently, merges hits by
// entity id (keeping the higher score, recording both sources), optionally
// reranks the union, and returns the top semantic-limit entries (§4.7).
func (c *Core) Unified(ctx context.Context, req UnifiedRequest) ([]Result, Metadata, error) {
	var (
		semantic, fulltext []Result
		semErr, ftErr      error
		wg                 sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, _, semErr = c.Semantic(ctx, SemanticRequest{
			Query: req.Query, RepositoryID: req.RepositoryID, Collection: req.Collection,
			TopK: req.SemanticLimit, PrefetchMultiplier: req.PrefetchMultiplier,
		})
	}()
	go func() {
		defer wg.Done()
		fulltext, _, ftErr = c.FullText(ctx, FullTextRequest{
			Query: req.Query, RepositoryID: req.RepositoryID, TopK: req.FullTextLimit,
		})
	}()
	wg.Wait()

	if semErr != nil && ftErr != nil {
		return nil, Metadata{}, fmt.Errorf("search: unified: semantic: %v, fulltext: %v", semErr, ftErr)
	}

	merged := mergeByEntity(semantic, fulltext)

	reranked := false
	topK := clamp(req.SemanticLimit, minTopK, maxTopK)
	if req.Rerank && c.Reranker != nil && len(merged) > 0 {
		rerankedResults, rerr := c.rerank(ctx, req.Query, merged, topK)
		if rerr != nil {
			slog.Warn("search: rerank failed, falling back to pre-rerank ordering", "error", rerr)
		} else {
			merged = rerankedResults
			reranked = true
		}
	}
	if !reranked {
		sort.SliceStable(merged, func(i, j int) bool {
			return higherScore(merged[i]) > higherScore(merged[j])
		})
		if len(merged) > topK {
			merged = merged[:topK]
		}
	}

	return merged, Metadata{TotalResults: len(merged), Reranked: reranked}, nil
}

func higherScore(r Result) float32 {
	if r.SemanticScore > r.FullTextScore {
		return r.SemanticScore
	}
	return r.FullTextScore
}

func mergeByEntity(semantic, fulltext []Result) []Result {
	byID := make(map[string]*Result, len(semantic)+len(fulltext))
	var order []string

	for _, r := range semantic {
		if r.Entity == nil {
			continue
		}
		r := r
		byID[r.Entity.ID] = &r
		order = append(order, r.Entity.ID)
	}
	for _, r := range fulltext {
		if r.Entity == nil {
			continue
		}
		if existing, ok := byID[r.Entity.ID]; ok {
			existing.FullTextScore = r.FullTextScore
			existing.Sources = append(existing.Sources, "fulltext")
			continue
		}
		r := r
		byID[r.Entity.ID] = &r
		order = append(order, r.Entity.ID)
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func (c *Core) resolveVectorHits(ctx context.Context, hits []store.ScoredPoint) ([]Result, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(hits))
	scoreByID := make(map[string]float32, len(hits))
	for _, h := range hits {
		id, _ := h.Payload["entity_id"].(string)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		scoreByID[id] = h.Score
	}

	entities, err := c.Relational.GetEntities(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: resolve vector hits: %w", err)
	}

	out := make([]Result, 0, len(entities))
	for _, e := range entities {
		out = append(out, Result{Entity: e, SemanticScore: scoreByID[e.ID], Sources: []string{"semantic"}})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SemanticScore > out[j].SemanticScore })
	return out, nil
}

func (c *Core) rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	docs := make([]Document, len(results))
	byID := make(map[string]Result, len(results))
	for i, r := range results {
		docs[i] = Document{EntityID: r.Entity.ID, Content: rerankContent(r.Entity)}
		byID[r.Entity.ID] = r
	}

	ranked, err := c.Reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return nil, fmt.Errorf("search: rerank: %w", err)
	}

	out := make([]Result, 0, len(ranked))
	for _, rd := range ranked {
		if r, ok := byID[rd.EntityID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// rerankContent builds the document text sent to the reranker: entity type,
// name, qualified name, doc summary, signature and content, separated by a
// single delimiter (§4.7).
func rerankContent(e *entity.Entity) string {
	sig := ""
	if e.Signature != nil {
		params := make([]string, len(e.Signature.Parameters))
		for i, p := range e.Signature.Parameters {
			params[i] = p.Name
			if p.Type != "" {
				params[i] += " " + p.Type
			}
		}
		sig = fmt.Sprintf("(%s) %s", joinComma(params), e.Signature.ReturnType)
	}
	parts := []string{string(e.EntityType), e.Name, e.QualifiedName, e.DocSummary, sig, e.Content}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\x1f" + p
	}
	return out
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// GraphQueryType enumerates the fixed set of parameterized pattern queries
// the graph store accepts (§4.7 "never string-concatenated Cypher").
type GraphQueryType string

const (
	GraphCallers      GraphQueryType = "callers"
	GraphCallees      GraphQueryType = "callees"
	GraphImplementors GraphQueryType = "implementors"
	GraphHierarchy    GraphQueryType = "hierarchy"
	GraphContains     GraphQueryType = "contains"
	GraphDependencies GraphQueryType = "dependencies"
)

// graphQueryKinds maps each pattern to the relationship kinds it walks.
var graphQueryKinds = map[GraphQueryType][]entity.RelationshipKind{
	GraphCallers:      {entity.RelCalls},
	GraphCallees:      {entity.RelCalls},
	GraphImplementors: {entity.RelImplements},
	GraphHierarchy:    {entity.RelInherits, entity.RelExtends},
	GraphContains:     {entity.RelContains},
	GraphDependencies: {entity.RelImports, entity.RelReexports, entity.RelUses},
}

// GraphQueryRequest parameterizes a graph pattern query.
type GraphQueryRequest struct {
	RepositoryID      string
	QueryType         GraphQueryType
	SeedQualifiedName string
	MaxDepth          int
}

// GraphQuery validates query_type against the whitelist and executes the
// corresponding pattern. "callers" walks reverse reachability from the
// seed; the rest, "dependencies" included, walk the forward Pattern.
func (c *Core) GraphQuery(ctx context.Context, req GraphQueryRequest) ([]store.GraphPathNode, error) {
	kinds, ok := graphQueryKinds[req.QueryType]
	if !ok {
		return nil, fmt.Errorf("search: unknown graph query type %q", req.QueryType)
	}
	depth := clamp(req.MaxDepth, minGraphDepth, maxGraphDepth)

	if req.QueryType == GraphCallers {
		seed, err := c.Relational.SearchFullText(ctx, req.RepositoryID, req.SeedQualifiedName, 1)
		if err != nil || len(seed) == 0 {
			return nil, fmt.Errorf("search: resolve seed %q: %w", req.SeedQualifiedName, err)
		}
		return c.Graph.ReverseReachability(ctx, seed[0].ID, depth)
	}

	return c.Graph.Pattern(ctx, req.RepositoryID, req.SeedQualifiedName, kinds, depth)
}
