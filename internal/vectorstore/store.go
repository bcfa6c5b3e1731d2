// Package vectorstore adapts a Postgres/pgvector database into a namespaced
// nearest-neighbor index. The index is an external capability: every
// operation can fail, and callers are expected to treat failures as degraded
// retrieval rather than request errors.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Metadata is the denormalized copy of an entry stored beside its vector.
// It exists for inspection and as a fallback join key; the knowledge store
// stays authoritative.
type Metadata struct {
	EntryID  int    `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Record is a vector plus metadata stored under a derived vector id.
type Record struct {
	VectorID  string
	Embedding []float32
	Metadata  Metadata
}

// Match is a similarity search hit. Score is cosine similarity in [0,1].
type Match struct {
	VectorID string
	Score    float32
	Metadata Metadata
}

// Store is the vector index adapter. A Store with no pool is a valid,
// permanently unavailable index: queries return empty results via the
// orchestrator's degradation path.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// New connects to the database and ensures the vector schema exists with
// the given embedding dimension. Like the rest of the degraded-mode
// surface it never fails: any setup problem logs and yields an unavailable
// store.
func New(ctx context.Context, databaseURL string, dimension int) *Store {
	if databaseURL == "" {
		log.Println("vectorstore: no database configured, similarity search disabled")
		return &Store{dimension: dimension}
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Printf("vectorstore: failed to create pool, similarity search disabled: %v", err)
		return &Store{dimension: dimension}
	}

	if err := pool.Ping(ctx); err != nil {
		log.Printf("vectorstore: database unreachable, similarity search disabled: %v", err)
		pool.Close()
		return &Store{dimension: dimension}
	}

	store := &Store{pool: pool, dimension: dimension}
	if err := store.ensureSchema(ctx); err != nil {
		log.Printf("vectorstore: failed to ensure schema, similarity search disabled: %v", err)
		pool.Close()
		return &Store{dimension: dimension}
	}

	log.Printf("vectorstore: connected (dimension %d)", dimension)
	return store
}

// NewWithPool creates a Store on an existing pool and ensures the schema.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, dimension int) (*Store, error) {
	store := &Store{pool: pool, dimension: dimension}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Available reports whether the index can be reached.
func (s *Store) Available() bool {
	return s.pool != nil
}

// Dimension returns the embedding dimension the schema was created with.
func (s *Store) Dimension() int {
	return s.dimension
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ensureSchema creates the vector table and ANN index. The column width
// comes from the embedding provider's dimension, which is only known at
// runtime, so the adapter owns this DDL rather than a migration.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vector_records (
			namespace  TEXT NOT NULL,
			vector_id  TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, vector_id)
		)`, s.dimension)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create vector_records table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS vector_records_embedding_idx
		ON vector_records USING hnsw (embedding vector_cosine_ops)`); err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}

	return nil
}

// Upsert writes records into the namespace, overwriting any existing record
// with the same vector id.
func (s *Store) Upsert(ctx context.Context, namespace string, records []Record) error {
	if s.pool == nil {
		return fmt.Errorf("vector index not available")
	}

	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("embedding for %s has dimension %d, expected %d", r.VectorID, len(r.Embedding), s.dimension)
		}
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", r.VectorID, err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO vector_records (namespace, vector_id, embedding, metadata, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (namespace, vector_id)
			DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
			namespace, r.VectorID, pgvector.NewVector(r.Embedding), metadata, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.VectorID, err)
		}
	}

	return nil
}

// Query returns up to topK matches in the namespace ordered by descending
// cosine similarity.
func (s *Store) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]Match, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("vector index not available")
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, expected %d", len(embedding), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT vector_id, 1 - (embedding <=> $2) AS score, metadata
		FROM vector_records
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		namespace, vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var score float64
		var metadata []byte
		if err := rows.Scan(&m.VectorID, &score, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Score = float32(score)
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", m.VectorID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}

	return matches, nil
}

// Delete removes the given vector ids from the namespace. Missing ids are
// not an error.
func (s *Store) Delete(ctx context.Context, namespace string, vectorIDs []string) error {
	if s.pool == nil {
		return fmt.Errorf("vector index not available")
	}
	if len(vectorIDs) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM vector_records
		WHERE namespace = $1 AND vector_id = ANY($2)`,
		namespace, vectorIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Fetch returns the stored records for the given vector ids, without
// similarity scoring. Used by reconciliation to detect stale metadata.
func (s *Store) Fetch(ctx context.Context, namespace string, vectorIDs []string) (map[string]Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("vector index not available")
	}
	if len(vectorIDs) == 0 {
		return map[string]Record{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT vector_id, embedding, metadata
		FROM vector_records
		WHERE namespace = $1 AND vector_id = ANY($2)`,
		namespace, vectorIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vectors: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var r Record
		var vec pgvector.Vector
		var metadata []byte
		if err := rows.Scan(&r.VectorID, &vec, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Embedding = vec.Slice()
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.VectorID, err)
		}
		records[r.VectorID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	return records, nil
}

// ListIDs returns every vector id in the namespace. Used by reconciliation
// to find orphans.
func (s *Store) ListIDs(ctx context.Context, namespace string) ([]string, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("vector index not available")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT vector_id FROM vector_records WHERE namespace = $1 ORDER BY vector_id`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vector ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vector id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector ids: %w", err)
	}

	return ids, nil
}
