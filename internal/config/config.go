// Package config holds the configuration surface for the codesearch daemon
// (§6), loaded from CLI flags, a YAML file and environment variables the
// same way the teacher's internal/config.Load does.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/madeindigio/codesearch/pkg/version"
)

// Config holds every recognized option from §6's "Configuration surface".
type Config struct {
	HTTPAddr string `mapstructure:"http-addr"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Agentic  AgenticConfig  `mapstructure:"agentic"`
	Languages LanguagesConfig `mapstructure:"languages"`

	LogFile          string `mapstructure:"log"`
	DisableOutputLog bool   `mapstructure:"disable-output-log"`
}

// StorageConfig covers both the vector store and the relational store (§6).
type StorageConfig struct {
	// Vector store (Qdrant).
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	CollectionName string `mapstructure:"collection_name"`
	APIKey         string `mapstructure:"api_key"`
	VectorSize     int    `mapstructure:"vector_size"`
	DistanceMetric string `mapstructure:"distance_metric"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`

	// Relational store (Postgres).
	PostgresHost           string `mapstructure:"postgres_host"`
	PostgresPort           int    `mapstructure:"postgres_port"`
	PostgresDatabase       string `mapstructure:"postgres_database"`
	PostgresUser           string `mapstructure:"postgres_user"`
	PostgresPassword       string `mapstructure:"postgres_password"`
	MaxEntityBatchSize     int    `mapstructure:"max_entity_batch_size"`
}

// OutboxConfig tunes the outbox processor (C7).
type OutboxConfig struct {
	PollIntervalMs     int `mapstructure:"poll_interval_ms"`
	EntriesPerPoll     int `mapstructure:"entries_per_poll"`
	MaxRetries         int `mapstructure:"max_retries"`
	MaxEmbeddingDim    int `mapstructure:"max_embedding_dim"`
	MaxCachedCollections int `mapstructure:"max_cached_collections"`
}

// EmbeddingsConfig selects and tunes the dense embedding provider (C5).
type EmbeddingsConfig struct {
	Provider      string `mapstructure:"provider"`
	Model         string `mapstructure:"model"`
	BatchSize     int    `mapstructure:"batch_size"`
	MaxWorkers    int    `mapstructure:"max_workers"`
	Device        string `mapstructure:"device"`
	Backend       string `mapstructure:"backend"`
	ModelCacheDir string `mapstructure:"model_cache_dir"`
}

// WatcherConfig tunes the file watcher and debouncer (C10).
type WatcherConfig struct {
	DebounceMs     int      `mapstructure:"debounce_ms"`
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
	// BranchStrategy is one of "index_current" and future strategies; only
	// index_current is implemented today (see DESIGN.md Open Questions).
	BranchStrategy string `mapstructure:"branch_strategy"`
}

// IndexerConfig tunes the batcher (C11) and the pipeline's batch size (C4).
type IndexerConfig struct {
	WatchBatchSize   int `mapstructure:"watch_batch_size"`
	WatchTimeoutMs   int `mapstructure:"watch_timeout_ms"`
	IndexBatchSize   int `mapstructure:"index_batch_size"`
}

// QualityGateConfig mirrors internal/agentic.QualityGateConfig's fields.
type QualityGateConfig struct {
	MinTop5AvgScore        float32 `mapstructure:"min_top5_avg_score"`
	MinEntityTypeDiversity int     `mapstructure:"min_entity_type_diversity"`
	MinFilePathDiversity   int     `mapstructure:"min_file_path_diversity"`
	Enabled                bool    `mapstructure:"enabled"`
}

// AgenticConfig tunes the orchestrator (C9).
type AgenticConfig struct {
	APIKey           string            `mapstructure:"api_key"`
	OrchestratorModel string           `mapstructure:"orchestrator_model"`
	WorkerModel      string            `mapstructure:"worker_model"`
	MaxWorkers       int               `mapstructure:"max_workers"`
	TimeoutSecs      int               `mapstructure:"timeout_secs"`
	QualityGate      QualityGateConfig `mapstructure:"quality_gate"`
}

// LanguagesConfig toggles which language providers are registered.
type LanguagesConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// Load loads the configuration from CLI flags, an optional YAML file and
// environment variables prefixed GOCODESEARCH_.
func Load() (*Config, error) {
	pflag.String("config", "", "Path to YAML configuration file")
	pflag.String("http-addr", ":8080", "Address to bind the REST API server, can also be set via GOCODESEARCH_HTTP_ADDR")

	pflag.String("storage.host", "localhost", "Qdrant host")
	pflag.Int("storage.port", 6334, "Qdrant gRPC port")
	pflag.String("storage.collection_name", "", "Fixed vector collection name override (normally derived per repository)")
	pflag.String("storage.api_key", "", "Qdrant API key")
	pflag.Int("storage.vector_size", 1536, "Dense embedding vector size")
	pflag.String("storage.distance_metric", "cosine", "Vector distance metric: cosine, euclidean or dot")
	pflag.Int("storage.batch_size", 100, "Vector upsert batch size")
	pflag.Int("storage.timeout_ms", 5000, "Vector store request timeout in milliseconds")
	pflag.String("storage.postgres_host", "localhost", "Postgres host")
	pflag.Int("storage.postgres_port", 5432, "Postgres port")
	pflag.String("storage.postgres_database", "codesearch", "Postgres database name")
	pflag.String("storage.postgres_user", "postgres", "Postgres user")
	pflag.String("storage.postgres_password", "", "Postgres password")
	pflag.Int("storage.max_entity_batch_size", 500, "Maximum entities per relational batch write")

	pflag.Int("outbox.poll_interval_ms", 500, "Outbox poll interval in milliseconds")
	pflag.Int("outbox.entries_per_poll", 100, "Outbox rows claimed per poll")
	pflag.Int("outbox.max_retries", 5, "Outbox row retry ceiling before dead-lettering")
	pflag.Int("outbox.max_embedding_dim", 4096, "Maximum dense vector dimension the outbox will replicate")
	pflag.Int("outbox.max_cached_collections", 128, "Vector collection-existence LRU size")

	pflag.String("embeddings.provider", "ollama", "Dense embedding provider: ollama, openai or gguf")
	pflag.String("embeddings.model", "nomic-embed-text", "Dense embedding model name")
	pflag.Int("embeddings.batch_size", 32, "Embedding request batch size")
	pflag.Int("embeddings.max_workers", 2, "Concurrent embedding workers")
	pflag.String("embeddings.device", "cpu", "Inference device for local backends: cpu or gpu")
	pflag.String("embeddings.backend", "", "Backend-specific selector (e.g. GGUF quantization)")
	pflag.String("embeddings.model_cache_dir", "", "Directory to cache downloaded/local model files")

	pflag.Int("watcher.debounce_ms", 300, "Per-path debounce window in milliseconds")
	pflag.StringSlice("watcher.ignore_patterns", nil, "Additional glob patterns to exclude from watching")
	pflag.String("watcher.branch_strategy", "index_current", "Branch handling strategy: index_current")

	pflag.Int("indexer.watch_batch_size", 50, "Maximum files collected per watch-triggered batch")
	pflag.Int("indexer.watch_timeout_ms", 2000, "Maximum time to wait before force-flushing a partial watch batch")
	pflag.Int("indexer.index_batch_size", 64, "Pipeline stage queue depth (buffered items per stage channel); entities per batch are fixed at 64")

	pflag.String("agentic.api_key", "", "API key for the orchestrator's language model provider")
	pflag.String("agentic.orchestrator_model", "gpt-4o-mini", "Model used for planning")
	pflag.String("agentic.worker_model", "gpt-4o-mini", "Model used for worker-query drafting and reranking")
	pflag.Int("agentic.max_workers", 5, "Maximum concurrent workers per orchestrator iteration")
	pflag.Int("agentic.timeout_secs", 30, "Per-worker timeout in seconds (read into the config; the orchestrator does not apply it)")
	pflag.Float64("agentic.quality_gate.min_top5_avg_score", 0.3, "Minimum average score over the top 5 results")
	pflag.Int("agentic.quality_gate.min_entity_type_diversity", 1, "Minimum distinct entity types in a passing result set")
	pflag.Int("agentic.quality_gate.min_file_path_diversity", 1, "Minimum distinct file paths in a passing result set")
	pflag.Bool("agentic.quality_gate.enabled", true, "Enable the quality gate / replan loop")

	pflag.StringSlice("languages.enabled", []string{"go", "python", "javascript", "typescript", "rust"}, "Enabled language providers")

	pflag.String("log", "", "Path to the log file (logs are written to both stdout and file)")
	pflag.Bool("disable-output-log", false, "Disable logging to stdout; only write to log file if configured (stderr is used when no log file is set)")

	flag.Bool("version", false, "Print version and exit")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	if ver := pflag.Lookup("version"); ver != nil && ver.Value.String() == "true" {
		fmt.Println(version.Describe())
		os.Exit(0)
	}

	v := viper.New()

	configPath := pflag.Lookup("config").Value.String()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		var standardConfigPath string
		if runtime.GOOS == "darwin" {
			standardConfigPath = filepath.Join(homeDir, "Library", "Application Support", "codesearch", "config.yaml")
		} else {
			standardConfigPath = filepath.Join(homeDir, ".config", "codesearch", "config.yaml")
		}
		if _, err := os.Stat(standardConfigPath); err == nil {
			v.SetConfigFile(standardConfigPath)
			_ = v.ReadInConfig()
		}
	}

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind pflags: %w", err)
	}

	v.SetEnvPrefix("GOCODESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for the combinations §7 classifies as
// fatal config errors.
func (c *Config) Validate() error {
	if c.Storage.PostgresHost == "" {
		return errors.New("storage.postgres_host must be set")
	}
	if c.Storage.Host == "" {
		return errors.New("storage.host (vector store) must be set")
	}
	switch c.Storage.DistanceMetric {
	case "cosine", "euclidean", "dot":
	default:
		return fmt.Errorf("storage.distance_metric must be one of cosine, euclidean, dot, got %q", c.Storage.DistanceMetric)
	}
	if c.Agentic.MaxWorkers < 1 || c.Agentic.MaxWorkers > 10 {
		return fmt.Errorf("agentic.max_workers must be in [1,10], got %d", c.Agentic.MaxWorkers)
	}
	if c.Agentic.QualityGate.MinTop5AvgScore < 0 || c.Agentic.QualityGate.MinTop5AvgScore > 1 {
		return fmt.Errorf("agentic.quality_gate.min_top5_avg_score must be in [0,1], got %f", c.Agentic.QualityGate.MinTop5AvgScore)
	}
	return nil
}

// Getenv reads an environment variable or returns a default value.
func Getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
