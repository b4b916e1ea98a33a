// Package api implements the REST-style HTTP surface (§6): embed, the three
// search modes, graph queries, batched entity lookup, repository listing
// and health, grounded on internal/transport/http.go's handler shape
// (explicit handleX closures, manual JSON encode/decode, a shared CORS
// helper) with the MCP protocol plumbing stripped out.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/madeindigio/codesearch/internal/agentic"
	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/outbox"
	"github.com/madeindigio/codesearch/internal/search"
	"github.com/madeindigio/codesearch/internal/store"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
	headerCORSOrigin   = "Access-Control-Allow-Origin"
	headerCORSMethods  = "Access-Control-Allow-Methods"
	headerCORSHeaders  = "Access-Control-Allow-Headers"
	corsMethods        = "GET, POST, OPTIONS"
	corsOrigin         = "*"
	corsHeaders        = "Content-Type"

	// maxBatchSize bounds /entities/batch (§7 "413 for oversized batch").
	maxBatchSize = 500
)

// Server hosts the REST surface over the embedding manager, search core and
// the three store backends.
type Server struct {
	addr       string
	server     *http.Server
	mux        *http.ServeMux
	Embedder   *embedding.Manager
	Search     *search.Core
	Relational store.RelationalStore
	Vector     store.VectorStore
	Graph      store.GraphStore
	Outbox     *outbox.Processor
	Orchestrator *agentic.Orchestrator
	Version    string
}

// New builds a Server bound to addr, wiring every §6 route plus the
// orchestrator-backed /search/agentic route (orchestrator may be nil, in
// which case that route returns 400 "agentic orchestrator not configured").
func New(addr string, embedder *embedding.Manager, core *search.Core, relational store.RelationalStore, vector store.VectorStore, graph store.GraphStore, ob *outbox.Processor, orchestrator *agentic.Orchestrator, version string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr: addr, mux: mux,
		Embedder: embedder, Search: core, Relational: relational, Vector: vector, Graph: graph, Outbox: ob,
		Orchestrator: orchestrator,
		Version:      version,
	}
	s.server = &http.Server{Addr: addr, Handler: mux}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/embed", s.handleEmbed)
	mux.HandleFunc("/search/semantic", s.handleSemantic)
	mux.HandleFunc("/search/fulltext", s.handleFullText)
	mux.HandleFunc("/search/unified", s.handleUnified)
	mux.HandleFunc("/search/agentic", s.handleAgentic)
	mux.HandleFunc("/graph/query", s.handleGraphQuery)
	mux.HandleFunc("/entities/batch", s.handleEntitiesBatch)
	mux.HandleFunc("/repositories", s.handleRepositories)
	return s
}

// Start runs the HTTP server (blocking).
func (s *Server) Start() error {
	slog.Info("starting REST API server", "address", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set(headerCORSOrigin, corsOrigin)
	w.Header().Set(headerCORSMethods, corsMethods)
	w.Header().Set(headerCORSHeaders, corsHeaders)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: failed to encode response", "error", err)
	}
}

// errorBody is the structured error response §7 requires.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorBody{Error: message})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// backendErrorStatus maps a store.Error's Kind to an HTTP status and a
// redacted message (§7): invalid input kinds to 400, a missing collection to
// 404, and every other failure, unknown ones included, to 500.
func backendErrorStatus(err error) (int, string) {
	switch store.KindOf(err) {
	case store.KindInvalidConfig, store.KindInvalidDimensions, store.KindBatchSizeExceeded:
		return http.StatusBadRequest, "invalid request"
	case store.KindCollectionNotFound:
		return http.StatusNotFound, "repository not found"
	default:
		return http.StatusInternalServerError, "backend error"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)
	status := "ok"

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	diagnostics := map[string]any{}
	if err := s.Relational.Ping(ctx); err != nil {
		status = "degraded"
		diagnostics["relational"] = err.Error()
	}
	if err := s.Vector.Ping(ctx); err != nil {
		status = "degraded"
		diagnostics["vector"] = err.Error()
	}
	if err := s.Graph.Ping(ctx); err != nil {
		status = "degraded"
		diagnostics["graph"] = err.Error()
	}
	if s.Outbox != nil {
		if n, err := s.Outbox.DeadLetterCount(ctx, entity.TargetVector); err == nil {
			diagnostics["dead_letter_vector"] = n
		}
		if n, err := s.Outbox.DeadLetterCount(ctx, entity.TargetGraph); err == nil {
			diagnostics["dead_letter_graph"] = n
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": status, "version": s.Version, "diagnostics": diagnostics,
	})
}
