package config

import "testing"

func TestValidateRejectsMissingPostgresHost(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Host: "localhost", DistanceMetric: "cosine"}, Agentic: AgenticConfig{MaxWorkers: 5}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing storage.postgres_host")
	}
}

func TestValidateRejectsBadDistanceMetric(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Host: "localhost", PostgresHost: "localhost", DistanceMetric: "manhattan"},
		Agentic: AgenticConfig{MaxWorkers: 5},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid distance metric")
	}
}

func TestValidateRejectsMaxWorkersOutOfRange(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Host: "localhost", PostgresHost: "localhost", DistanceMetric: "cosine"},
		Agentic: AgenticConfig{MaxWorkers: 11},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for agentic.max_workers out of range")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Host: "localhost", PostgresHost: "localhost", DistanceMetric: "cosine"},
		Agentic: AgenticConfig{MaxWorkers: 5, QualityGate: QualityGateConfig{MinTop5AvgScore: 0.3}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
