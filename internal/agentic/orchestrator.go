// Package agentic implements the agentic orchestrator (C9): it turns a
// natural-language request into a bounded set of retrieval queries,
// executes them concurrently against the hybrid search core, aggregates and
// optionally reranks the results, and iterates under a quality gate up to a
// configured ceiling, grounded on the orchestration shape the original
// implements in crates/agentic-search (plan -> fanout -> aggregate ->
// quality-gate -> replan).
package agentic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/madeindigio/codesearch/internal/llm"
	"github.com/madeindigio/codesearch/internal/search"
)

// defaultIterationCap is §4.8's "Default maximum iterations = 5".
const defaultIterationCap = 5

// simpleLookupPrefixes are the starting phrases that mark a query as a
// simple entity lookup, capping iterations at 1 (§4.8).
var simpleLookupPrefixes = []string{"find the", "find a", "where is", "show me the", "what is"}

// relationalKeywords disqualify a query from the simple-lookup fast path
// even if it starts with one of the prefixes above.
var relationalKeywords = []string{"calls", "callers", "implements", "extends", "inherits", "depends", "imports", "uses"}

// IsSimpleLookup reports whether query matches the simple-entity-lookup
// shape (§4.8 "Iteration cap").
func IsSimpleLookup(query string) bool {
	lower := strings.ToLower(query)
	matchesPrefix := false
	for _, p := range simpleLookupPrefixes {
		if strings.HasPrefix(lower, p) {
			matchesPrefix = true
			break
		}
	}
	if !matchesPrefix {
		return false
	}
	for _, k := range relationalKeywords {
		if strings.Contains(lower, k) {
			return false
		}
	}
	return true
}

// WorkerQueryType tags a planned worker query by retrieval mode.
type WorkerQueryType string

const (
	WorkerSemantic WorkerQueryType = "semantic"
	WorkerFullText WorkerQueryType = "fulltext"
	WorkerUnified  WorkerQueryType = "unified"
	WorkerGraph    WorkerQueryType = "graph"
)

// WorkerQuery is one item in an iteration's plan.
type WorkerQuery struct {
	Type         WorkerQueryType      `json:"type"`
	Query        string               `json:"query"`
	Relationship search.GraphQueryType `json:"relationship,omitempty"`
}

// Plan is the bounded list of worker queries an iteration executes.
type Plan struct {
	Queries []WorkerQuery `json:"queries"`
}

// QualityGateConfig holds the three thresholds §4.8 "Quality gate" checks.
type QualityGateConfig struct {
	Enabled                bool
	MinTop5AvgScore        float32
	MinEntityTypeDiversity int
	MinFilePathDiversity   int
}

// Config controls the orchestrator's iteration ceiling, worker concurrency
// and quality gate. It carries no per-worker timeout: workers are bounded
// only by the deadline of the context passed to Run.
type Config struct {
	MaxIterations int
	MaxWorkers    int
	QualityGate   QualityGateConfig
	Model         string
}

// DefaultConfig matches §4.8's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: defaultIterationCap,
		MaxWorkers:    5,
		QualityGate: QualityGateConfig{
			Enabled: true, MinTop5AvgScore: 0.3, MinEntityTypeDiversity: 1, MinFilePathDiversity: 1,
		},
	}
}

// Orchestrator drives the plan/fanout/aggregate/quality-gate/replan loop.
type Orchestrator struct {
	Client *llm.Client
	Search *search.Core
	Cfg    Config
}

// New builds an Orchestrator.
func New(client *llm.Client, core *search.Core, cfg Config) *Orchestrator {
	return &Orchestrator{Client: client, Search: core, Cfg: cfg}
}

// Response is the outcome of Run: the final aggregate result set plus
// bookkeeping the REST surface and caller can inspect.
type Response struct {
	Results         []search.Result
	Iterations      int
	PartialFailure  *PartialWorkerFailureNotice
	Cost            *CostTracker
}

// Run executes the plan/fanout/aggregate/quality-gate/replan loop for
// query against repositoryID, stopping at the configured iteration
// ceiling, a query detected as a simple lookup (ceiling 1), or the first
// iteration that passes the quality gate.
func (o *Orchestrator) Run(ctx context.Context, repositoryID, query, collection string) (*Response, error) {
	iterCap := o.Cfg.MaxIterations
	if IsSimpleLookup(query) {
		iterCap = 1
	}

	cost := NewCostTracker(o.Cfg.Model)
	resp := &Response{Cost: cost}

	var lastResults []search.Result
	for iteration := 1; iteration <= iterCap; iteration++ {
		plan, err := o.plan(ctx, query, cost)
		if err != nil {
			return nil, &OrchestratorError{Cause: err}
		}

		results, partial, err := o.fanout(ctx, repositoryID, collection, plan)
		if err != nil {
			return nil, err
		}
		resp.Iterations = iteration
		resp.PartialFailure = partial
		lastResults = results

		if !o.Cfg.QualityGate.Enabled || passesQualityGate(results, o.Cfg.QualityGate) {
			break
		}
	}

	resp.Results = lastResults
	return resp, nil
}

// plan calls the external language model with a planning prompt split into
// a cacheable system part and a dynamic user part (§4.8), and parses its
// response into a bounded worker-query list.
func (o *Orchestrator) plan(ctx context.Context, query string, cost *CostTracker) (Plan, error) {
	systemPrompt, userPrompt := BuildPrompt(query)
	text, usage, err := o.Client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	cost.Record(usage)

	var plan Plan
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &plan); err != nil {
		return Plan{}, fmt.Errorf("plan: parse response: %w", err)
	}
	if len(plan.Queries) == 0 {
		plan.Queries = []WorkerQuery{{Type: WorkerUnified, Query: query}}
	}
	return plan, nil
}

const planSystemPrompt = `You are a retrieval planner for a code search engine. Given a user
request, produce a JSON object {"queries": [{"type": "semantic"|"fulltext"|"unified"|"graph", "query": string, "relationship": string}]}
with at most 5 entries. "relationship" is only set for type "graph" and must
be one of: callers, callees, implementors, hierarchy, contains, dependencies.
Respond with JSON only.`

// BuildPrompt splits the planning prompt into a cacheable system part and a
// dynamic user part so the LLM client can apply provider-side prompt
// caching (§4.8, crates/agentic-search/src/prompts.rs).
func BuildPrompt(query string) (systemPrompt, userPrompt string) {
	return planSystemPrompt, fmt.Sprintf("Request: %s", query)
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// fanout executes plan's worker queries concurrently, each bounded by
// ctx's deadline, and merges their results. Partial-failure policy: if some
// workers succeed, returns a notice; if none succeed, returns
// AllWorkersFailedError (§4.8).
func (o *Orchestrator) fanout(ctx context.Context, repositoryID, collection string, plan Plan) ([]search.Result, *PartialWorkerFailureNotice, error) {
	workers := o.Cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	type outcome struct {
		results []search.Result
		err     error
	}
	outcomes := make([]outcome, len(plan.Queries))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, wq := range plan.Queries {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, wq WorkerQuery) {
			defer wg.Done()
			defer func() { <-sem }()
			results, err := o.runWorker(ctx, repositoryID, collection, wq)
			outcomes[i] = outcome{results: results, err: err}
		}(i, wq)
	}
	wg.Wait()

	var merged []search.Result
	var errs []error
	successful := 0
	for _, oc := range outcomes {
		if oc.err != nil {
			errs = append(errs, oc.err)
			continue
		}
		successful++
		merged = append(merged, oc.results...)
	}

	if successful == 0 {
		return nil, nil, &AllWorkersFailedError{Errors: errs}
	}

	var notice *PartialWorkerFailureNotice
	if successful < len(plan.Queries) {
		notice = &PartialWorkerFailureNotice{Successful: successful, Total: len(plan.Queries)}
	}
	return merged, notice, nil
}

func (o *Orchestrator) runWorker(ctx context.Context, repositoryID, collection string, wq WorkerQuery) ([]search.Result, error) {
	switch wq.Type {
	case WorkerSemantic:
		results, _, err := o.Search.Semantic(ctx, search.SemanticRequest{
			Query: wq.Query, RepositoryID: repositoryID, Collection: collection, TopK: 20, PrefetchMultiplier: 2,
		})
		if err != nil {
			return nil, &WorkerError{Query: wq.Query, Cause: err}
		}
		return results, nil
	case WorkerFullText:
		results, _, err := o.Search.FullText(ctx, search.FullTextRequest{
			Query: wq.Query, RepositoryID: repositoryID, TopK: 20,
		})
		if err != nil {
			return nil, &WorkerError{Query: wq.Query, Cause: err}
		}
		return results, nil
	case WorkerUnified:
		results, _, err := o.Search.Unified(ctx, search.UnifiedRequest{
			Query: wq.Query, RepositoryID: repositoryID, Collection: collection,
			SemanticLimit: 20, FullTextLimit: 20, PrefetchMultiplier: 2,
		})
		if err != nil {
			return nil, &WorkerError{Query: wq.Query, Cause: err}
		}
		return results, nil
	case WorkerGraph:
		// Graph query results are path nodes, not full entities; the REST
		// surface resolves them to entities separately via
		// /entities/batch, so a graph worker contributes no rows to the
		// merged semantic/fulltext result set here.
		if _, err := o.Search.GraphQuery(ctx, search.GraphQueryRequest{
			RepositoryID: repositoryID, QueryType: wq.Relationship, SeedQualifiedName: wq.Query, MaxDepth: 5,
		}); err != nil {
			return nil, &WorkerError{Query: wq.Query, Cause: err}
		}
		return nil, nil
	default:
		return nil, &WorkerError{Query: wq.Query, Cause: fmt.Errorf("unknown worker type %q", wq.Type)}
	}
}

// passesQualityGate checks the three thresholds in §4.8's "Quality gate":
// minimum average score over the top-5, minimum entity-type diversity, and
// minimum file-path diversity.
func passesQualityGate(results []search.Result, gate QualityGateConfig) bool {
	if len(results) == 0 {
		return false
	}

	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	var sum float32
	for _, r := range top {
		s := r.SemanticScore
		if r.FullTextScore > s {
			s = r.FullTextScore
		}
		sum += s
	}
	avg := sum / float32(len(top))
	if avg < gate.MinTop5AvgScore {
		return false
	}

	types := make(map[string]bool)
	paths := make(map[string]bool)
	for _, r := range results {
		if r.Entity == nil {
			continue
		}
		types[string(r.Entity.EntityType)] = true
		paths[r.Entity.FilePath] = true
	}
	return len(types) >= gate.MinEntityTypeDiversity && len(paths) >= gate.MinFilePathDiversity
}
