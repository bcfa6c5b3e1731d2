// Package service contains the business logic composing the knowledge store,
// embedding provider, vector index and generation engine.
package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/marloweai/marlowe/internal/domain"
	"github.com/marloweai/marlowe/internal/embedding"
	"github.com/marloweai/marlowe/internal/repository"
	"github.com/marloweai/marlowe/internal/telemetry"
	"github.com/marloweai/marlowe/internal/vectorstore"
)

const (
	// vectorIDPrefix makes the entry id <-> vector id mapping invertible
	// without a side table.
	vectorIDPrefix = "knowledge_"

	defaultTopK = 5

	systemInstruction = "You are a helpful personal AI assistant. Answer the user's query using the provided context when it is relevant. If the context does not contain the answer, say so honestly instead of guessing."
)

// KnowledgeRepository is the durable source of truth for entries.
type KnowledgeRepository interface {
	Add(input repository.AddInput) (*domain.Entry, error)
	Update(id int, input repository.UpdateInput) (*domain.Entry, error)
	Delete(id int) error
	Get(id int) (*domain.Entry, error)
	Search(query, category string) []*domain.Entry
	ListAll() []*domain.Entry
	ListByCategory(category string) []*domain.Entry
}

// EmbeddingProvider turns text into fixed-dimension vectors, possibly
// degraded.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) embedding.Result
	Dimension() int
	Available() bool
}

// VectorIndex is the namespaced similarity index.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error
	Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vectorstore.Match, error)
	Delete(ctx context.Context, namespace string, vectorIDs []string) error
	Available() bool
}

// GenerationEngine produces natural-language answers.
type GenerationEngine interface {
	Generate(ctx context.Context, prompt, systemPrompt string) string
	Available() bool
}

// Source is one retrieved entry backing an answer.
type Source struct {
	ID       int                  `json:"id"`
	Score    float32              `json:"score"`
	Metadata vectorstore.Metadata `json:"metadata"`
}

// Answer is the result of the read path. Response is always populated, even
// when every backing subsystem is down. Degraded marks answers retrieved
// with a fallback query embedding: any match scores behind Confidence are
// random-vector coincidence, not semantic similarity.
type Answer struct {
	Response   string   `json:"response"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Degraded   bool     `json:"degraded"`
}

// SearchResult pairs a resolved entry with its similarity score.
type SearchResult struct {
	Entry *domain.Entry `json:"entry"`
	Score float32       `json:"score"`
}

// Health reports which backing subsystems are live.
type Health struct {
	LLMAvailable            bool `json:"llm_available"`
	VectorDBAvailable       bool `json:"vector_db_available"`
	EmbeddingModelAvailable bool `json:"embedding_model_available"`
}

// RAGService orchestrates the write path (store first, vector propagation
// best-effort) and the read path (retrieve, re-resolve, generate, score).
type RAGService struct {
	repo      KnowledgeRepository
	embedder  EmbeddingProvider
	vectors   VectorIndex
	engine    GenerationEngine
	namespace string
	topK      int
}

// NewRAGService creates the orchestrator.
func NewRAGService(repo KnowledgeRepository, embedder EmbeddingProvider, vectors VectorIndex, engine GenerationEngine, namespace string, topK int) *RAGService {
	if namespace == "" {
		namespace = "knowledge"
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &RAGService{
		repo:      repo,
		embedder:  embedder,
		vectors:   vectors,
		engine:    engine,
		namespace: namespace,
		topK:      topK,
	}
}

// VectorID derives the vector id for an entry id.
func VectorID(id int) string {
	return vectorIDPrefix + strconv.Itoa(id)
}

// EntryIDFromVectorID inverts VectorID. Returns 0 for ids it did not derive.
func EntryIDFromVectorID(vectorID string) int {
	raw, ok := strings.CutPrefix(vectorID, vectorIDPrefix)
	if !ok {
		return 0
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// AddKnowledge durably records a new entry and then propagates its vector.
// The store write is authoritative: if it fails the vector index is never
// touched, and if vector propagation fails the entry still exists, just not
// retrievable by similarity search until the next successful write or a
// reconciliation pass.
func (s *RAGService) AddKnowledge(ctx context.Context, input repository.AddInput) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.add_knowledge", telemetry.SpanAttributes{
		Namespace: s.namespace,
		Operation: "add",
	})
	defer span.End()

	entry, err := s.repo.Add(input)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.propagateVector(ctx, entry)
	return entry, nil
}

// UpdateKnowledge applies a partial update and re-propagates the vector so
// the index reflects the current content.
func (s *RAGService) UpdateKnowledge(ctx context.Context, id int, input repository.UpdateInput) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.update_knowledge", telemetry.SpanAttributes{
		EntryID:   id,
		Namespace: s.namespace,
		Operation: "update",
	})
	defer span.End()

	entry, err := s.repo.Update(id, input)
	if err != nil {
		if err != domain.ErrEntryNotFound {
			span.SetError(err)
		}
		return nil, err
	}

	s.propagateVector(ctx, entry)
	return entry, nil
}

// DeleteKnowledge removes the entry from the store, then best-effort removes
// its vector. An orphaned vector is tolerated staleness: the read path drops
// matches whose entry no longer resolves.
func (s *RAGService) DeleteKnowledge(ctx context.Context, id int) error {
	ctx, span := telemetry.StartSpan(ctx, "service.delete_knowledge", telemetry.SpanAttributes{
		EntryID:   id,
		Namespace: s.namespace,
		Operation: "delete",
	})
	defer span.End()

	if err := s.repo.Delete(id); err != nil {
		if err != domain.ErrEntryNotFound {
			span.SetError(err)
		}
		return err
	}

	if !s.vectors.Available() {
		log.Printf("service: vector index unavailable, leaving orphaned vector for entry %d", id)
		return nil
	}
	if err := s.vectors.Delete(ctx, s.namespace, []string{VectorID(id)}); err != nil {
		log.Printf("service: failed to delete vector for entry %d: %v", id, err)
		telemetry.CaptureError(ctx, err)
	}
	return nil
}

// GetKnowledge returns a single entry.
func (s *RAGService) GetKnowledge(ctx context.Context, id int) (*domain.Entry, error) {
	_, span := telemetry.StartSpan(ctx, "service.get_knowledge", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "get",
	})
	defer span.End()

	return s.repo.Get(id)
}

// ListKnowledge returns all entries, optionally filtered by category.
func (s *RAGService) ListKnowledge(ctx context.Context, category string) []*domain.Entry {
	_, span := telemetry.StartSpan(ctx, "service.list_knowledge", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	if category != "" {
		return s.repo.ListByCategory(category)
	}
	return s.repo.ListAll()
}

// TextSearch is the store's substring search, no vectors involved.
func (s *RAGService) TextSearch(ctx context.Context, query, category string) []*domain.Entry {
	_, span := telemetry.StartSpan(ctx, "service.text_search", telemetry.SpanAttributes{
		Operation: "text_search",
	})
	defer span.End()

	return s.repo.Search(query, category)
}

// SearchKnowledge embeds the query, searches the vector index and re-resolves
// the matches from the store. Retrieval-only: no generation.
func (s *RAGService) SearchKnowledge(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.search_knowledge", telemetry.SpanAttributes{
		Namespace: s.namespace,
		Operation: "search",
	})
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}

	resolved, _ := s.retrieve(ctx, query, topK)
	results := []SearchResult{}
	for _, r := range resolved {
		results = append(results, SearchResult{Entry: r.entry, Score: r.score})
	}
	return results, nil
}

// Answer runs the full read path: retrieve context, generate a grounded
// response and score confidence. Subsystem unavailability degrades the answer
// (empty sources, placeholder text, neutral confidence) but never fails it;
// the only error is an empty query.
func (s *RAGService) Answer(ctx context.Context, query string) (*Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.answer", telemetry.SpanAttributes{
		Namespace: s.namespace,
		Operation: "answer",
	})
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}

	resolved, degraded := s.retrieve(ctx, query, s.topK)

	prompt := buildPrompt(resolved, query)
	response := s.engine.Generate(ctx, prompt, systemInstruction)

	sources := []Source{}
	for _, r := range resolved {
		sources = append(sources, Source{ID: r.entry.ID, Score: r.score, Metadata: r.metadata})
	}

	return &Answer{
		Response:   response,
		Sources:    sources,
		Confidence: confidence(resolved),
		Degraded:   degraded,
	}, nil
}

// Status reports subsystem availability for health checks.
func (s *RAGService) Status(ctx context.Context) Health {
	return Health{
		LLMAvailable:            s.engine.Available(),
		VectorDBAvailable:       s.vectors.Available(),
		EmbeddingModelAvailable: s.embedder.Available(),
	}
}

// resolvedMatch is a vector match joined back to its live store entry.
type resolvedMatch struct {
	entry    *domain.Entry
	score    float32
	metadata vectorstore.Metadata
}

// retrieve embeds the query, searches the index and re-resolves every match
// against the store, dropping matches whose entry was deleted. Index failure
// yields an empty result set, not an error. The second return reports
// whether the query embedding came from the fallback generator.
func (s *RAGService) retrieve(ctx context.Context, query string, topK int) ([]resolvedMatch, bool) {
	result := s.embedder.Embed(ctx, query)

	matches, err := s.vectors.Query(ctx, s.namespace, result.Vector, topK)
	if err != nil {
		log.Printf("service: vector query failed, answering without context: %v", err)
		return nil, result.Degraded
	}

	var resolved []resolvedMatch
	for _, m := range matches {
		id := m.Metadata.EntryID
		if id <= 0 {
			id = EntryIDFromVectorID(m.VectorID)
		}
		if id <= 0 {
			log.Printf("service: dropping match %s with no resolvable entry id", m.VectorID)
			continue
		}

		entry, err := s.repo.Get(id)
		if err != nil {
			// Stale vector for a deleted entry. Tolerated; skipped.
			continue
		}
		resolved = append(resolved, resolvedMatch{entry: entry, score: m.Score, metadata: m.Metadata})
	}
	return resolved, result.Degraded
}

// propagateVector embeds the entry content and upserts it into the index.
// Best-effort: failures are logged, never surfaced, and degraded embeddings
// are never written because a random vector indexed as if it were real would
// poison every later similarity search.
func (s *RAGService) propagateVector(ctx context.Context, entry *domain.Entry) {
	if !s.embedder.Available() {
		log.Printf("service: embedding provider unavailable, entry %d not indexed", entry.ID)
		return
	}
	if !s.vectors.Available() {
		log.Printf("service: vector index unavailable, entry %d not indexed", entry.ID)
		return
	}

	result := s.embedder.Embed(ctx, entry.Content)
	if result.Degraded {
		log.Printf("service: degraded embedding for entry %d, not indexed", entry.ID)
		return
	}

	record := vectorstore.Record{
		VectorID:  VectorID(entry.ID),
		Embedding: result.Vector,
		Metadata: vectorstore.Metadata{
			EntryID:  entry.ID,
			Title:    entry.Title,
			Content:  entry.Content,
			Category: entry.Category,
		},
	}
	if err := s.vectors.Upsert(ctx, s.namespace, []vectorstore.Record{record}); err != nil {
		log.Printf("service: failed to index entry %d: %v", entry.ID, err)
		telemetry.CaptureError(ctx, err)
	}
}

// buildPrompt concatenates resolved context in descending similarity order
// ahead of the user query.
func buildPrompt(resolved []resolvedMatch, query string) string {
	var b strings.Builder
	if len(resolved) > 0 {
		b.WriteString("Relevant information:\n")
		for i, r := range resolved {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r.entry.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("User query: ")
	b.WriteString(query)
	return b.String()
}

// confidence is the mean similarity of the sources actually used, or a
// neutral 0.5 when the answer is ungrounded. Always within [0,1].
func confidence(resolved []resolvedMatch) float64 {
	if len(resolved) == 0 {
		return 0.5
	}

	var sum float64
	for _, r := range resolved {
		sum += float64(r.score)
	}
	c := sum / float64(len(resolved))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
