package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Path of the knowledge base document (single JSON file).
	KnowledgePath string `envconfig:"KNOWLEDGE_PATH" default:"./data/knowledge_base.json"`

	// Vector index (Postgres with pgvector). Optional: when unset or
	// unreachable the service runs with similarity search degraded.
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	VectorNamespace string `envconfig:"VECTOR_NAMESPACE" default:"knowledge"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	ChatModel       string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatMaxTokens   int     `envconfig:"CHAT_MAX_TOKENS" default:"512"`
	ChatTemperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.7"`

	SearchTopK int `envconfig:"SEARCH_TOP_K" default:"5"`

	// Interval between vector reconciliation passes. Zero disables the
	// background reconciler.
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MARLOWE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasVectorIndex() bool {
	return c.DatabaseURL != ""
}
