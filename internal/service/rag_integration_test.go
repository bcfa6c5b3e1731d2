//go:build integration

package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/marloweai/marlowe/internal/embedding"
	"github.com/marloweai/marlowe/internal/llm"
	"github.com/marloweai/marlowe/internal/repository"
	"github.com/marloweai/marlowe/internal/testutil"
	"github.com/marloweai/marlowe/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbeddingClient returns fixed vectors per text so similarity is
// deterministic without a real model.
type stubEmbeddingClient struct {
	vectors map[string][]float32
}

func (s *stubEmbeddingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func setupIntegrationService(ctx context.Context, t *testing.T, client embedding.Client) (*RAGService, *repository.KnowledgeStore) {
	t.Helper()

	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(ctx) })

	pool := testutil.NewTestPool(ctx, t, pc)
	t.Cleanup(pool.Close)

	vectors, err := vectorstore.NewWithPool(ctx, pool, 3)
	require.NoError(t, err)

	store, err := repository.NewKnowledgeStore(filepath.Join(t.TempDir(), "knowledge_base.json"))
	require.NoError(t, err)

	svc := NewRAGService(store, embedding.NewProvider(client, 3), vectors, llm.NewEngine(nil), "knowledge", 5)
	return svc, store
}

func TestIntegration_UpsertThenSearch(t *testing.T) {
	ctx := context.Background()

	content := "database indexing speeds lookups"
	client := &stubEmbeddingClient{vectors: map[string][]float32{
		content:    {1, 0, 0},
		"indexing": {0.9, 0.1, 0},
	}}
	svc, _ := setupIntegrationService(ctx, t, client)

	entry, err := svc.AddKnowledge(ctx, repository.AddInput{
		Title:    "X",
		Content:  content,
		Category: "technical",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ID)
	assert.Equal(t, "technical", entry.Category)

	results, err := svc.SearchKnowledge(ctx, "indexing", 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, entry.ID, results[0].Entry.ID)
	assert.Greater(t, results[0].Score, float32(0))

	answer, err := svc.Answer(ctx, "indexing")
	require.NoError(t, err)
	assert.Greater(t, answer.Confidence, 0.0)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, entry.ID, answer.Sources[0].ID)
	// No generation backend configured; retrieval still works.
	assert.Equal(t, llm.PlaceholderResponse, answer.Response)
}

func TestIntegration_StaleVectorDropped(t *testing.T) {
	ctx := context.Background()

	content := "orphaned knowledge"
	client := &stubEmbeddingClient{vectors: map[string][]float32{
		content: {1, 0, 0},
		"query": {1, 0, 0},
	}}
	svc, store := setupIntegrationService(ctx, t, client)

	entry, err := svc.AddKnowledge(ctx, repository.AddInput{Title: "a", Content: content})
	require.NoError(t, err)

	// Delete from the store only, leaving the vector behind.
	require.NoError(t, store.Delete(entry.ID))

	answer, err := svc.Answer(ctx, "query")
	require.NoError(t, err)

	assert.Empty(t, answer.Sources)
	assert.Equal(t, 0.5, answer.Confidence)
}

func TestIntegration_ReconcilerRepairsDrift(t *testing.T) {
	ctx := context.Background()

	client := &stubEmbeddingClient{vectors: map[string][]float32{
		"current content": {1, 0, 0},
		"query":           {1, 0, 0},
	}}
	svc, store := setupIntegrationService(ctx, t, client)

	// Entry added behind the orchestrator's back: durable but unindexed.
	entry, err := store.Add(repository.AddInput{Title: "a", Content: "current content"})
	require.NoError(t, err)

	results, err := svc.SearchKnowledge(ctx, "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	reconciler := NewReconciler(store, svc.embedder, svc.vectors.(ReconcileIndex), "knowledge")
	require.NoError(t, reconciler.ProcessJobs(ctx))

	results, err = svc.SearchKnowledge(ctx, "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.ID, results[0].Entry.ID)
}
