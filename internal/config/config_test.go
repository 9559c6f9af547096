package config

import "testing"

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Generation: GenerationConfig{
			Model: "gpt-4o-mini",
		},
		Corpus: CorpusConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for valid config: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `database.driver must be "redis" or "sqlite", got "postgres"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "redis"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MissingEmbeddingModel(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Model = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing embedding model")
	}
}

func TestValidate_InvalidDimensions(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimensions = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

func TestValidate_OverlapNotSmallerThanChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Corpus.ChunkSize = 100
	cfg.Corpus.ChunkOverlap = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when overlap >= chunk size")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("expected WriteTimeoutSec=120, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected driver=sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DataDir != "data" {
		t.Errorf("expected DataDir='data', got %q", cfg.Database.DataDir)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Corpus.Collection != "default" {
		t.Errorf("expected Collection='default', got %q", cfg.Corpus.Collection)
	}
	if cfg.Corpus.ChunkSize != 1000 {
		t.Errorf("expected ChunkSize=1000, got %d", cfg.Corpus.ChunkSize)
	}
	if cfg.Corpus.BatchSize != 64 {
		t.Errorf("expected BatchSize=64, got %d", cfg.Corpus.BatchSize)
	}
	if cfg.Retrieval.ExpansionN != 5 {
		t.Errorf("expected ExpansionN=5, got %d", cfg.Retrieval.ExpansionN)
	}
	if cfg.Retrieval.PerVariantK != 5 {
		t.Errorf("expected PerVariantK=5, got %d", cfg.Retrieval.PerVariantK)
	}
	if cfg.Retrieval.MaxContextChars != 8000 {
		t.Errorf("expected MaxContextChars=8000, got %d", cfg.Retrieval.MaxContextChars)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{Driver: "redis", DataDir: "custom", ReadinessTimeout: 15},
		Corpus:   CorpusConfig{Collection: "docs", ChunkSize: 500, BatchSize: 16},
		Retrieval: RetrievalConfig{
			ExpansionN:      3,
			PerVariantK:     10,
			MaxContextChars: 4000,
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Corpus.Collection != "docs" {
		t.Errorf("expected Collection='docs', got %q", cfg.Corpus.Collection)
	}
	if cfg.Retrieval.ExpansionN != 3 {
		t.Errorf("expected ExpansionN=3, got %d", cfg.Retrieval.ExpansionN)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCQA_TEST_VAR", "redis")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"set variable", "driver: ${DOCQA_TEST_VAR}", "driver: redis"},
		{"unset variable", "key: ${DOCQA_TEST_UNSET}", "key: "},
		{"unset with default", "key: ${DOCQA_TEST_UNSET:-fallback}", "key: fallback"},
		{"set with default", "driver: ${DOCQA_TEST_VAR:-sqlite}", "driver: redis"},
		{"no variables", "port: 8080", "port: 8080"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := string(expandEnvVars([]byte(tc.input)))
			if got != tc.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
