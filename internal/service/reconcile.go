package service

import (
	"context"
	"fmt"
	"log"

	"github.com/marloweai/marlowe/internal/telemetry"
	"github.com/marloweai/marlowe/internal/vectorstore"
)

// ReconcileIndex extends the query surface with the inspection operations
// reconciliation needs.
type ReconcileIndex interface {
	VectorIndex
	Fetch(ctx context.Context, namespace string, vectorIDs []string) (map[string]vectorstore.Record, error)
	ListIDs(ctx context.Context, namespace string) ([]string, error)
}

// Reconciler repairs drift between the knowledge store and the vector index.
// The write path swallows vector propagation failures, so an entry can be
// durable yet unindexed, stale after a missed update, or orphaned after a
// missed delete. Each pass re-indexes missing or stale entries and removes
// orphaned vectors. It runs from the jobs worker or as a one-shot command,
// never on the request path.
type Reconciler struct {
	repo      KnowledgeRepository
	embedder  EmbeddingProvider
	vectors   ReconcileIndex
	namespace string
}

// NewReconciler creates a Reconciler.
func NewReconciler(repo KnowledgeRepository, embedder EmbeddingProvider, vectors ReconcileIndex, namespace string) *Reconciler {
	if namespace == "" {
		namespace = "knowledge"
	}
	return &Reconciler{repo: repo, embedder: embedder, vectors: vectors, namespace: namespace}
}

// ProcessJobs runs one reconciliation pass. When either the embedding
// provider or the index is down there is nothing useful to repair, so the
// pass is skipped without error.
func (r *Reconciler) ProcessJobs(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile", telemetry.SpanAttributes{
		Namespace: r.namespace,
		Operation: "reconcile",
	})
	defer span.End()

	if !r.embedder.Available() {
		log.Println("reconcile: embedding provider unavailable, skipping pass")
		return nil
	}
	if !r.vectors.Available() {
		log.Println("reconcile: vector index unavailable, skipping pass")
		return nil
	}

	entries := r.repo.ListAll()

	vectorIDs := make([]string, len(entries))
	for i, e := range entries {
		vectorIDs[i] = VectorID(e.ID)
	}

	records, err := r.vectors.Fetch(ctx, r.namespace, vectorIDs)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to fetch indexed records: %w", err)
	}

	repaired := 0
	for _, entry := range entries {
		record, ok := records[VectorID(entry.ID)]
		if ok && record.Metadata.Content == entry.Content {
			continue
		}

		result := r.embedder.Embed(ctx, entry.Content)
		if result.Degraded {
			log.Printf("reconcile: degraded embedding for entry %d, leaving unindexed", entry.ID)
			continue
		}

		err := r.vectors.Upsert(ctx, r.namespace, []vectorstore.Record{{
			VectorID:  VectorID(entry.ID),
			Embedding: result.Vector,
			Metadata: vectorstore.Metadata{
				EntryID:  entry.ID,
				Title:    entry.Title,
				Content:  entry.Content,
				Category: entry.Category,
			},
		}})
		if err != nil {
			log.Printf("reconcile: failed to re-index entry %d: %v", entry.ID, err)
			telemetry.CaptureError(ctx, err)
			continue
		}
		repaired++
	}

	orphans, err := r.findOrphans(ctx)
	if err != nil {
		span.SetError(err)
		return err
	}
	if len(orphans) > 0 {
		if err := r.vectors.Delete(ctx, r.namespace, orphans); err != nil {
			log.Printf("reconcile: failed to delete %d orphaned vectors: %v", len(orphans), err)
			telemetry.CaptureError(ctx, err)
		}
	}

	if repaired > 0 || len(orphans) > 0 {
		log.Printf("reconcile: pass complete, %d entries re-indexed, %d orphans removed", repaired, len(orphans))
	}
	return nil
}

// findOrphans returns indexed vector ids whose entry no longer exists.
func (r *Reconciler) findOrphans(ctx context.Context) ([]string, error) {
	ids, err := r.vectors.ListIDs(ctx, r.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed vectors: %w", err)
	}

	var orphans []string
	for _, vectorID := range ids {
		id := EntryIDFromVectorID(vectorID)
		if id <= 0 {
			// Foreign key format in our namespace; leave it alone.
			continue
		}
		if _, err := r.repo.Get(id); err != nil {
			orphans = append(orphans, vectorID)
		}
	}
	return orphans, nil
}
