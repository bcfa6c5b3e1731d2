package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/marloweai/marlowe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *KnowledgeStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	store, err := NewKnowledgeStore(path)
	require.NoError(t, err)
	return store
}

func strptr(s string) *string { return &s }

func TestAdd_AssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Add(AddInput{Title: "First", Content: "first content"})
	require.NoError(t, err)
	second, err := store.Add(AddInput{Title: "Second", Content: "second content"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, domain.DefaultCategory, first.Category)
	assert.NotNil(t, first.Tags)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
}

func TestAdd_DuplicateContentGetsDistinctIDs(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Add(AddInput{Title: "Same", Content: "same content"})
	require.NoError(t, err)
	b, err := store.Add(AddInput{Title: "Same", Content: "same content"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)

	gotA, err := store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, gotA.Title)
	assert.Equal(t, a.Content, gotA.Content)
}

func TestAdd_ValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(AddInput{Title: "", Content: "content"})
	require.Error(t, err)

	_, err = store.Add(AddInput{Title: "title", Content: ""})
	require.Error(t, err)

	// Failed adds must not consume ids.
	entry, err := store.Add(AddInput{Title: "ok", Content: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ID)
}

func TestAdd_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	store, err := NewKnowledgeStore(path)
	require.NoError(t, err)

	entry, err := store.Add(AddInput{
		Title:    "Persisted",
		Content:  "survives restart",
		Category: "technical",
		Tags:     []string{"durability"},
		Source:   "test",
	})
	require.NoError(t, err)

	reloaded, err := NewKnowledgeStore(path)
	require.NoError(t, err)

	got, err := reloaded.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Title, got.Title)
	assert.Equal(t, entry.Content, got.Content)
	assert.Equal(t, entry.Category, got.Category)
	assert.Equal(t, entry.Tags, got.Tags)
	assert.Equal(t, entry.Source, got.Source)
}

func TestIDsNeverReusedAfterDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	store, err := NewKnowledgeStore(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.Add(AddInput{Title: "Entry", Content: "content"})
		require.NoError(t, err)
	}

	// A non-trailing delete would make a count-based id collide with id 3.
	require.NoError(t, store.Delete(2))

	entry, err := store.Add(AddInput{Title: "Fresh", Content: "fresh content"})
	require.NoError(t, err)
	assert.Equal(t, 4, entry.ID)

	// The counter survives a restart.
	reloaded, err := NewKnowledgeStore(path)
	require.NoError(t, err)
	again, err := reloaded.Add(AddInput{Title: "After restart", Content: "content"})
	require.NoError(t, err)
	assert.Equal(t, 5, again.ID)
}

func TestLegacyDocumentSeedsCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")

	legacy := map[string]interface{}{
		"entries": []map[string]interface{}{
			{"id": 1, "title": "one", "content": "one"},
			{"id": 7, "title": "seven", "content": "seven"},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store, err := NewKnowledgeStore(path)
	require.NoError(t, err)

	entry, err := store.Add(AddInput{Title: "next", Content: "next"})
	require.NoError(t, err)
	assert.Equal(t, 8, entry.ID)
}

func TestNewKnowledgeStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewKnowledgeStore(path)
	require.Error(t, err)
}

func TestUpdate_PartialFields(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Add(AddInput{
		Title:    "Original",
		Content:  "original content",
		Category: "technical",
		Tags:     []string{"a"},
	})
	require.NoError(t, err)

	updated, err := store.Update(entry.ID, UpdateInput{Content: strptr("new content")})
	require.NoError(t, err)

	assert.Equal(t, "Original", updated.Title)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, "technical", updated.Category)
	assert.Equal(t, []string{"a"}, updated.Tags)
	assert.Equal(t, entry.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(entry.UpdatedAt))
}

func TestUpdate_ReplacesTags(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Add(AddInput{Title: "T", Content: "C", Tags: []string{"a", "b"}})
	require.NoError(t, err)

	updated, err := store.Update(entry.ID, UpdateInput{Tags: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, updated.Tags)
}

func TestUpdate_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Update(42, UpdateInput{Title: strptr("nope")})
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestUpdate_RejectsEmptyContent(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Add(AddInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	_, err = store.Update(entry.ID, UpdateInput{Content: strptr("")})
	require.Error(t, err)

	// The invalid update must not have been applied.
	got, err := store.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Content)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Add(AddInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(entry.ID))

	_, err = store.Get(entry.ID)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	assert.ErrorIs(t, store.Delete(entry.ID), domain.ErrEntryNotFound)
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(AddInput{Title: "Database Indexing", Content: "B-tree indexes speed lookups", Category: "technical", Tags: []string{"db"}})
	require.NoError(t, err)
	_, err = store.Add(AddInput{Title: "Cooking", Content: "How to make pasta", Category: "personal", Tags: []string{"food"}})
	require.NoError(t, err)
	_, err = store.Add(AddInput{Title: "Scaling", Content: "sharding and indexing strategies", Category: "technical"})
	require.NoError(t, err)

	t.Run("matches title case-insensitively", func(t *testing.T) {
		results := store.Search("database", "")
		require.Len(t, results, 1)
		assert.Equal(t, "Database Indexing", results[0].Title)
	})

	t.Run("matches content", func(t *testing.T) {
		results := store.Search("indexing", "")
		assert.Len(t, results, 2)
	})

	t.Run("matches tags", func(t *testing.T) {
		results := store.Search("food", "")
		require.Len(t, results, 1)
		assert.Equal(t, "Cooking", results[0].Title)
	})

	t.Run("category filter is AND-combined", func(t *testing.T) {
		results := store.Search("indexing", "technical")
		assert.Len(t, results, 2)

		results = store.Search("indexing", "personal")
		assert.Empty(t, results)
	})

	t.Run("results in store order", func(t *testing.T) {
		results := store.Search("indexing", "")
		require.Len(t, results, 2)
		assert.Less(t, results[0].ID, results[1].ID)
	})
}

func TestListAllAndByCategory(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(AddInput{Title: "A", Content: "a", Category: "technical"})
	require.NoError(t, err)
	_, err = store.Add(AddInput{Title: "B", Content: "b"})
	require.NoError(t, err)

	all := store.ListAll()
	assert.Len(t, all, 2)

	technical := store.ListByCategory("technical")
	require.Len(t, technical, 1)
	assert.Equal(t, "A", technical[0].Title)

	assert.Empty(t, store.ListByCategory("missing"))
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Add(AddInput{Title: "T", Content: "C", Tags: []string{"a"}})
	require.NoError(t, err)

	entry.Title = "mutated"
	entry.Tags[0] = "mutated"

	got, err := store.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, []string{"a"}, got.Tags)
}

func TestPersistFailure_DoesNotAdvanceState(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("file"), 0o644))

	// Parent path is a regular file, so every persist must fail.
	store, err := NewKnowledgeStore(filepath.Join(parent, "knowledge_base.json"))
	require.NoError(t, err)

	_, err = store.Add(AddInput{Title: "T", Content: "C"})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodePersistence, domainErr.Code)

	// The failed add must not be visible, and the id must not be consumed
	// by a later successful-looking state.
	assert.Empty(t, store.ListAll())
}

func TestConcurrentAdds_DistinctIDs(t *testing.T) {
	const n = 25
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	store, err := NewKnowledgeStore(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := store.Add(AddInput{Title: "Concurrent", Content: "content"})
			assert.NoError(t, err)
			ids <- entry.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, store.ListAll(), n)

	// The persisted document must agree with memory.
	reloaded, err := NewKnowledgeStore(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.ListAll(), n)
}
