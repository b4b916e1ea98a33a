package api

import (
	"net/http"
	"time"

	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/search"
)

type agenticRequestBody struct {
	Query        string `json:"query"`
	RepositoryID string `json:"repository_id"`
	Collection   string `json:"collection"`
}

type agenticResponseBody struct {
	Results         []*entity.Entity `json:"results"`
	Metadata        searchMetadataBody `json:"metadata"`
	Iterations      int                `json:"iterations"`
	PartialFailure  *agenticPartialFailureBody `json:"partial_failure,omitempty"`
}

type agenticPartialFailureBody struct {
	Successful int `json:"successful"`
	Total      int `json:"total"`
}

// handleAgentic runs the C9 plan/fanout/aggregate loop (§4.8) behind the
// REST surface; it is invoked by the CLI the same way the other search
// routes are.
func (s *Server) handleAgentic(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}
	if s.Orchestrator == nil {
		s.writeError(w, http.StatusBadRequest, "agentic orchestrator not configured")
		return
	}

	var req agenticRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" || req.RepositoryID == "" {
		s.writeError(w, http.StatusBadRequest, "query and repository_id are required")
		return
	}

	start := time.Now()
	resp, err := s.Orchestrator.Run(r.Context(), req.RepositoryID, req.Query, req.Collection)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "agentic orchestrator failed")
		return
	}

	body := agenticResponseBody{
		Results:    resultEntities(resp.Results),
		Metadata:   toMetadataBody(start, search.Metadata{TotalResults: len(resp.Results)}),
		Iterations: resp.Iterations,
	}
	if resp.PartialFailure != nil {
		body.PartialFailure = &agenticPartialFailureBody{Successful: resp.PartialFailure.Successful, Total: resp.PartialFailure.Total}
	}
	s.writeJSON(w, http.StatusOK, body)
}

type embedRequest struct {
	Texts       []string `json:"texts"`
	Instruction string   `json:"instruction,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req embedRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Texts) == 0 {
		s.writeError(w, http.StatusBadRequest, "texts must not be empty")
		return
	}

	vectors, err := s.Embedder.EmbedDense(r.Context(), req.Texts, embedding.TaskPassage)
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}

	dim := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	s.writeJSON(w, http.StatusOK, embedResponse{Embeddings: vectors, Dimension: dim})
}

type searchMetadataBody struct {
	QueryTimeMS  int64 `json:"query_time_ms"`
	TotalResults int   `json:"total_results"`
	Reranked     bool  `json:"reranked"`
}

func toMetadataBody(start time.Time, meta search.Metadata) searchMetadataBody {
	return searchMetadataBody{
		QueryTimeMS:  time.Since(start).Milliseconds(),
		TotalResults: meta.TotalResults,
		Reranked:     meta.Reranked,
	}
}

type semanticRequestBody struct {
	Query              string `json:"query"`
	RepositoryID       string `json:"repository_id"`
	Collection         string `json:"collection"`
	Limit              int    `json:"limit"`
	PrefetchMultiplier int    `json:"prefetch_multiplier"`
	Rerank             bool   `json:"rerank"`
}

type searchResponseBody struct {
	Results  []*entity.Entity   `json:"results"`
	Metadata searchMetadataBody `json:"metadata"`
}

func resultEntities(results []search.Result) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(results))
	for _, r := range results {
		if r.Entity != nil {
			out = append(out, r.Entity)
		}
	}
	return out
}

func (s *Server) handleSemantic(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req semanticRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" || req.RepositoryID == "" {
		s.writeError(w, http.StatusBadRequest, "query and repository_id are required")
		return
	}

	start := time.Now()
	results, meta, err := s.Search.Semantic(r.Context(), search.SemanticRequest{
		Query: req.Query, RepositoryID: req.RepositoryID, Collection: req.Collection,
		TopK: req.Limit, PrefetchMultiplier: req.PrefetchMultiplier, Rerank: req.Rerank,
	})
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponseBody{Results: resultEntities(results), Metadata: toMetadataBody(start, meta)})
}

type fullTextRequestBody struct {
	Query        string `json:"query"`
	RepositoryID string `json:"repository_id"`
	Limit        int    `json:"limit"`
}

func (s *Server) handleFullText(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req fullTextRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" || req.RepositoryID == "" {
		s.writeError(w, http.StatusBadRequest, "query and repository_id are required")
		return
	}

	start := time.Now()
	results, meta, err := s.Search.FullText(r.Context(), search.FullTextRequest{
		Query: req.Query, RepositoryID: req.RepositoryID, TopK: req.Limit,
	})
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponseBody{Results: resultEntities(results), Metadata: toMetadataBody(start, meta)})
}

type unifiedRequestBody struct {
	Query              string `json:"query"`
	RepositoryID       string `json:"repository_id"`
	Collection         string `json:"collection"`
	SemanticLimit      int    `json:"semantic_limit"`
	FullTextLimit      int    `json:"fulltext_limit"`
	PrefetchMultiplier int    `json:"prefetch_multiplier"`
	Rerank             bool   `json:"rerank"`
}

func (s *Server) handleUnified(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req unifiedRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" || req.RepositoryID == "" {
		s.writeError(w, http.StatusBadRequest, "query and repository_id are required")
		return
	}

	start := time.Now()
	results, meta, err := s.Search.Unified(r.Context(), search.UnifiedRequest{
		Query: req.Query, RepositoryID: req.RepositoryID, Collection: req.Collection,
		SemanticLimit: req.SemanticLimit, FullTextLimit: req.FullTextLimit,
		PrefetchMultiplier: req.PrefetchMultiplier, Rerank: req.Rerank,
	})
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponseBody{Results: resultEntities(results), Metadata: toMetadataBody(start, meta)})
}

type graphQueryRequestBody struct {
	RepositoryID string `json:"repository_id"`
	QueryType    string `json:"query_type"`
	Parameters   struct {
		SeedQualifiedName string `json:"seed_qualified_name"`
		MaxDepth          int    `json:"max_depth"`
	} `json:"parameters"`
}

type graphQueryResponseBody struct {
	Nodes []graphPathNodeBody `json:"nodes"`
}

type graphPathNodeBody struct {
	EntityID string `json:"entity_id"`
	Depth    int    `json:"depth"`
	Kind     string `json:"kind"`
}

func (s *Server) handleGraphQuery(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req graphQueryRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.RepositoryID == "" || req.Parameters.SeedQualifiedName == "" {
		s.writeError(w, http.StatusBadRequest, "repository_id and parameters.seed_qualified_name are required")
		return
	}

	nodes, err := s.Search.GraphQuery(r.Context(), search.GraphQueryRequest{
		RepositoryID:      req.RepositoryID,
		QueryType:         search.GraphQueryType(req.QueryType),
		SeedQualifiedName: req.Parameters.SeedQualifiedName,
		MaxDepth:          req.Parameters.MaxDepth,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid graph query")
		return
	}

	body := graphQueryResponseBody{Nodes: make([]graphPathNodeBody, len(nodes))}
	for i, n := range nodes {
		body.Nodes[i] = graphPathNodeBody{EntityID: n.EntityID, Depth: n.Depth, Kind: string(n.Kind)}
	}
	s.writeJSON(w, http.StatusOK, body)
}

type entitiesBatchRequestBody struct {
	EntityRefs []string `json:"entity_refs"`
}

type entitiesBatchResponseBody struct {
	Entities []*entity.Entity   `json:"entities"`
	Metadata searchMetadataBody `json:"metadata"`
}

func (s *Server) handleEntitiesBatch(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	var req entitiesBatchRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.EntityRefs) > maxBatchSize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "entity_refs exceeds max batch size")
		return
	}

	start := time.Now()
	entities, err := s.Relational.GetEntities(r.Context(), req.EntityRefs)
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}
	s.writeJSON(w, http.StatusOK, entitiesBatchResponseBody{
		Entities: entities,
		Metadata: searchMetadataBody{QueryTimeMS: time.Since(start).Milliseconds(), TotalResults: len(entities)},
	})
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}

	repos, err := s.Relational.ListRepositories(r.Context())
	if err != nil {
		status, msg := backendErrorStatus(err)
		s.writeError(w, status, msg)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}
