package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marloweai/marlowe/internal/domain"
)

// document is the durable representation of the knowledge base: the whole
// entry collection plus the id counter, persisted as one JSON file.
type document struct {
	NextID  int             `json:"next_id"`
	Entries []*domain.Entry `json:"entries"`
}

// KnowledgeStore is the source of truth for knowledge entries. Every
// mutation rewrites the full document to disk (temp file + atomic rename)
// before it is considered committed; a failed persist leaves both the
// on-disk and the in-memory state at the last committed value.
type KnowledgeStore struct {
	path string

	mu  sync.RWMutex
	doc document
}

// AddInput holds the fields for a new entry.
type AddInput struct {
	Title    string
	Content  string
	Category string
	Tags     []string
	Source   string
}

// UpdateInput holds a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Title    *string
	Content  *string
	Category *string
	Tags     []string
	Source   *string
}

// NewKnowledgeStore opens the store at path, loading the existing document
// if present. A missing file starts an empty store; an unreadable one is an
// error so a later persist cannot clobber data we failed to parse.
func NewKnowledgeStore(path string) (*KnowledgeStore, error) {
	s := &KnowledgeStore{
		path: path,
		doc:  document{NextID: 1, Entries: []*domain.Entry{}},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base %s: %w", path, err)
	}
	if doc.Entries == nil {
		doc.Entries = []*domain.Entry{}
	}

	// Documents written before the counter existed carry no next_id; seed
	// it past every issued id so ids are never reused.
	if doc.NextID <= 0 {
		maxID := 0
		for _, e := range doc.Entries {
			if e.ID > maxID {
				maxID = e.ID
			}
		}
		doc.NextID = maxID + 1
	}

	s.doc = doc
	return s, nil
}

// Path returns the location of the durable document.
func (s *KnowledgeStore) Path() string {
	return s.path
}

// Add assigns a fresh id and persists the entry.
func (s *KnowledgeStore) Add(input AddInput) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	entry := domain.NewEntry(s.doc.NextID, input.Title, input.Content, input.Category, input.Tags, input.Source, now)
	if err := domain.ValidateEntry(entry); err != nil {
		return nil, err
	}

	next := document{
		NextID:  s.doc.NextID + 1,
		Entries: append(append([]*domain.Entry{}, s.doc.Entries...), entry),
	}

	if err := s.persist(next); err != nil {
		return nil, domain.NewPersistenceError(err)
	}

	s.doc = next
	return entry.Clone(), nil
}

// Update applies the supplied fields to an existing entry, refreshes
// UpdatedAt and persists.
func (s *KnowledgeStore) Update(id int, input UpdateInput) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, domain.ErrEntryNotFound
	}

	updated := s.doc.Entries[idx].Clone()
	if input.Title != nil {
		updated.Title = *input.Title
	}
	if input.Content != nil {
		updated.Content = *input.Content
	}
	if input.Category != nil {
		updated.Category = *input.Category
	}
	if input.Tags != nil {
		updated.Tags = append([]string{}, input.Tags...)
	}
	if input.Source != nil {
		updated.Source = *input.Source
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := domain.ValidateEntry(updated); err != nil {
		return nil, err
	}

	entries := append([]*domain.Entry{}, s.doc.Entries...)
	entries[idx] = updated
	next := document{NextID: s.doc.NextID, Entries: entries}

	if err := s.persist(next); err != nil {
		return nil, domain.NewPersistenceError(err)
	}

	s.doc = next
	return updated.Clone(), nil
}

// Delete removes the entry and persists.
func (s *KnowledgeStore) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return domain.ErrEntryNotFound
	}

	entries := make([]*domain.Entry, 0, len(s.doc.Entries)-1)
	entries = append(entries, s.doc.Entries[:idx]...)
	entries = append(entries, s.doc.Entries[idx+1:]...)
	next := document{NextID: s.doc.NextID, Entries: entries}

	if err := s.persist(next); err != nil {
		return domain.NewPersistenceError(err)
	}

	s.doc = next
	return nil
}

// Get returns the entry with the given id.
func (s *KnowledgeStore) Get(id int) (*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, domain.ErrEntryNotFound
	}
	return s.doc.Entries[idx].Clone(), nil
}

// Search performs case-insensitive substring matching over title, content
// and tags, AND-combined with an optional category filter. Results come
// back in store order; there is no ranking.
func (s *KnowledgeStore) Search(query, category string) []*domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	results := []*domain.Entry{}
	for _, e := range s.doc.Entries {
		if category != "" && e.Category != category {
			continue
		}
		if matchesQuery(e, q) {
			results = append(results, e.Clone())
		}
	}
	return results
}

// ListAll returns every entry in store order.
func (s *KnowledgeStore) ListAll() []*domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*domain.Entry, 0, len(s.doc.Entries))
	for _, e := range s.doc.Entries {
		results = append(results, e.Clone())
	}
	return results
}

// ListByCategory returns entries with the given category in store order.
func (s *KnowledgeStore) ListByCategory(category string) []*domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*domain.Entry{}
	for _, e := range s.doc.Entries {
		if e.Category == category {
			results = append(results, e.Clone())
		}
	}
	return results
}

// indexOf must be called with the lock held.
func (s *KnowledgeStore) indexOf(id int) int {
	for i, e := range s.doc.Entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func matchesQuery(e *domain.Entry, q string) bool {
	if strings.Contains(strings.ToLower(e.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Content), q) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// persist writes doc to a temporary file in the target directory and
// atomically renames it over the document, so a failure at any point leaves
// the previous on-disk state intact.
func (s *KnowledgeStore) persist(doc document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create knowledge base directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge base: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write knowledge base: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync knowledge base: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace knowledge base: %w", err)
	}

	return nil
}
