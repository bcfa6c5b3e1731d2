// Package cli implements the marlowed commands.
package cli

import (
	"context"
	"fmt"
	"log"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/marloweai/marlowe/internal/config"
	"github.com/marloweai/marlowe/internal/embedding"
	"github.com/marloweai/marlowe/internal/llm"
	"github.com/marloweai/marlowe/internal/openai"
	"github.com/marloweai/marlowe/internal/repository"
	"github.com/marloweai/marlowe/internal/service"
	"github.com/marloweai/marlowe/internal/vectorstore"
)

// components is the wired object graph shared by the serve and reconcile
// commands. Only the knowledge store is mandatory; everything else comes up
// degraded when unconfigured or unreachable.
type components struct {
	store    *repository.KnowledgeStore
	embedder *embedding.Provider
	vectors  *vectorstore.Store
	engine   *llm.Engine
	svc      *service.RAGService
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	store, err := repository.NewKnowledgeStore(cfg.KnowledgePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	log.Printf("knowledge store loaded from %s (%d entries)", cfg.KnowledgePath, len(store.ListAll()))

	var embeddingClient embedding.Client
	var chatClient llm.Client
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.ChatModel,
			MaxTokens:           cfg.ChatMaxTokens,
			Temperature:         cfg.ChatTemperature,
		})
		embeddingClient = client
		chatClient = client
	} else {
		log.Println("no OpenAI API key configured, embedding and generation run degraded")
	}

	embedder := embedding.NewProvider(embeddingClient, cfg.EmbeddingDimensions)
	vectors := vectorstore.New(ctx, cfg.DatabaseURL, embedder.Dimension())
	engine := llm.NewEngine(chatClient)

	svc := service.NewRAGService(store, embedder, vectors, engine, cfg.VectorNamespace, cfg.SearchTopK)

	return &components{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		engine:   engine,
		svc:      svc,
	}, nil
}

func (c *components) Close() {
	c.vectors.Close()
}
