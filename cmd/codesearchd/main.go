// Command codesearchd runs the indexing pipeline, file watcher, outbox
// processor and REST API server as one long-lived process, grounded on the
// teacher's cmd/remembrances-mcp/main.go startup/shutdown shape.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/madeindigio/codesearch/internal/agentic"
	"github.com/madeindigio/codesearch/internal/api"
	"github.com/madeindigio/codesearch/internal/config"
	"github.com/madeindigio/codesearch/internal/embedding"
	"github.com/madeindigio/codesearch/internal/entity"
	"github.com/madeindigio/codesearch/internal/lang"
	"github.com/madeindigio/codesearch/internal/lang/golang"
	"github.com/madeindigio/codesearch/internal/lang/javascript"
	"github.com/madeindigio/codesearch/internal/lang/python"
	"github.com/madeindigio/codesearch/internal/lang/rust"
	"github.com/madeindigio/codesearch/internal/lang/typescript"
	"github.com/madeindigio/codesearch/internal/llm"
	"github.com/madeindigio/codesearch/internal/outbox"
	"github.com/madeindigio/codesearch/internal/pipeline"
	"github.com/madeindigio/codesearch/internal/search"
	"github.com/madeindigio/codesearch/internal/store"
	"github.com/madeindigio/codesearch/internal/store/postgres"
	"github.com/madeindigio/codesearch/internal/store/qdrant"
	"github.com/madeindigio/codesearch/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("codesearchd exited with error", "error", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger to write to stdout and,
// if cfg.LogFile is set, to a file as well; disable-output-log silences
// stdout so only the file receives records.
func setupLogging(cfg *config.Config) {
	var handlers []slog.Handler
	if !cfg.DisableOutputLog {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, nil))
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", cfg.LogFile, err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, nil))
		}
	}
	switch len(handlers) {
	case 0:
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	case 1:
		slog.SetDefault(slog.New(handlers[0]))
	default:
		slog.SetDefault(slog.New(multiHandler(handlers)))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	relational := postgres.New(postgresDSN(cfg))
	if err := relational.Connect(ctx); err != nil {
		return fmt.Errorf("connect relational store: %w", err)
	}
	defer relational.Close()
	if err := relational.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("initialize relational schema: %w", err)
	}

	graph := postgres.NewGraphStore(relational.Pool())
	if err := graph.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("initialize graph schema: %w", err)
	}

	vector := qdrant.New(cfg.Storage.Host, cfg.Storage.Port, cfg.Storage.APIKey)
	if err := vector.Connect(ctx); err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vector.Close()

	embedder, err := embedding.NewManagerFromConfig(embeddingConfig(cfg))
	if err != nil {
		return fmt.Errorf("build embedding manager: %w", err)
	}

	registry := lang.NewRegistry()
	registerLanguages(registry, cfg.Languages.Enabled)

	var reranker search.Reranker
	var orchClient *llm.Client
	if cfg.Agentic.APIKey != "" {
		os.Setenv("OPENAI_API_KEY", cfg.Agentic.APIKey)

		rerankClient, err := llm.New("openai", cfg.Agentic.WorkerModel)
		if err != nil {
			return fmt.Errorf("build reranker llm client: %w", err)
		}
		reranker = &search.LLMReranker{Client: rerankClient}

		orchClient, err = llm.New("openai", cfg.Agentic.OrchestratorModel)
		if err != nil {
			return fmt.Errorf("build orchestrator llm client: %w", err)
		}
	}

	searchCore := search.New(embedder, relational, vector, graph, reranker)

	var orchestrator *agentic.Orchestrator
	if orchClient != nil {
		orchestrator = agentic.New(orchClient, searchCore, agenticConfig(cfg))
	}

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.QueueDepth = cfg.Indexer.IndexBatchSize
	pipe := pipeline.New(registry, embedder, relational, pipelineCfg)

	watcherHandler := watch.NewPipelineHandler(pipe, relational)
	watcherCfg := watch.Config{
		DebounceWindow: time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond,
		BatchSize:      cfg.Indexer.WatchBatchSize,
		BatchTimeout:   time.Duration(cfg.Indexer.WatchTimeoutMs) * time.Millisecond,
	}
	watcher, err := watch.New(registry, watcherHandler, watcherCfg)
	if err != nil {
		return fmt.Errorf("build watcher: %w", err)
	}

	for _, rootPath := range pflagRepositoryPaths() {
		repo, collectionID, err := registerRepository(ctx, relational, rootPath)
		if err != nil {
			return fmt.Errorf("register repository %q: %w", rootPath, err)
		}
		slog.Info("indexing repository", "repository_id", repo.ID, "path", repo.Path)
		if err := pipe.Run(ctx, repo.ID, repo.Path, repo.LastCommit, collectionID); err != nil {
			slog.Error("initial index failed", "repository_id", repo.ID, "error", err)
		}
		if err := watcher.Watch(watch.Repository{ID: repo.ID, RootPath: repo.Path, CollectionID: collectionID}); err != nil {
			return fmt.Errorf("watch repository %q: %w", rootPath, err)
		}
	}

	go watcher.Run(ctx)
	defer watcher.Stop()

	ob := outbox.New(relational, vector, graph, outboxConfig(cfg))
	go ob.Run(ctx, entity.TargetVector, cfg.Storage.VectorSize)
	go ob.Run(ctx, entity.TargetGraph, cfg.Storage.VectorSize)

	srv := api.New(cfg.HTTPAddr, embedder, searchCore, relational, vector, graph, ob, orchestrator, "dev")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerRepository(ctx context.Context, relational store.RelationalStore, rootPath string) (*entity.Repository, string, error) {
	repo := &entity.Repository{ID: uuid.New().String(), Path: rootPath}
	if err := relational.UpsertRepository(ctx, repo); err != nil {
		return nil, "", err
	}
	return repo, store.CollectionNameFor(repo.Path), nil
}

// pflagRepositoryPaths returns the repository root paths passed as CLI
// positional arguments (everything after the recognized flags).
func pflagRepositoryPaths() []string {
	return pflag.Args()
}

func postgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Storage.PostgresUser, cfg.Storage.PostgresPassword,
		cfg.Storage.PostgresHost, cfg.Storage.PostgresPort, cfg.Storage.PostgresDatabase)
}

func embeddingConfig(cfg *config.Config) *embedding.Config {
	ec := &embedding.Config{SparseEnabled: true, SparseBuckets: 1 << 16}
	switch cfg.Embeddings.Provider {
	case "gguf":
		ec.GGUFServerURL = cfg.Embeddings.ModelCacheDir
		ec.GGUFModelPath = cfg.Embeddings.Model
	case "openai":
		ec.OpenAIModel = cfg.Embeddings.Model
	default:
		ec.OllamaURL = config.Getenv("GOCODESEARCH_OLLAMA_URL", "http://localhost:11434")
		ec.OllamaModel = cfg.Embeddings.Model
	}
	return ec
}

func outboxConfig(cfg *config.Config) outbox.Config {
	return outbox.Config{
		PollInterval:         time.Duration(cfg.Outbox.PollIntervalMs) * time.Millisecond,
		EntriesPerPoll:       cfg.Outbox.EntriesPerPoll,
		MaxRetries:           cfg.Outbox.MaxRetries,
		MaxEmbeddingDim:      cfg.Outbox.MaxEmbeddingDim,
		MaxCachedCollections: cfg.Outbox.MaxCachedCollections,
	}
}

func agenticConfig(cfg *config.Config) agentic.Config {
	ac := agentic.DefaultConfig()
	ac.MaxWorkers = cfg.Agentic.MaxWorkers
	ac.Model = cfg.Agentic.WorkerModel
	ac.QualityGate = agentic.QualityGateConfig{
		Enabled:                cfg.Agentic.QualityGate.Enabled,
		MinTop5AvgScore:        cfg.Agentic.QualityGate.MinTop5AvgScore,
		MinEntityTypeDiversity: cfg.Agentic.QualityGate.MinEntityTypeDiversity,
		MinFilePathDiversity:   cfg.Agentic.QualityGate.MinFilePathDiversity,
	}
	return ac
}

func registerLanguages(registry *lang.Registry, enabled []string) {
	for _, l := range enabled {
		switch l {
		case "go":
			registry.Register(golang.New())
		case "python":
			registry.Register(python.New())
		case "javascript":
			registry.Register(javascript.New())
		case "typescript":
			registry.Register(typescript.New())
		case "rust":
			registry.Register(rust.New())
		}
	}
}
