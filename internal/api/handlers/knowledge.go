// Package handlers implements the HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marloweai/marlowe/internal/api"
	"github.com/marloweai/marlowe/internal/domain"
	"github.com/marloweai/marlowe/internal/repository"
)

type KnowledgeService interface {
	AddKnowledge(ctx context.Context, input repository.AddInput) (*domain.Entry, error)
	UpdateKnowledge(ctx context.Context, id int, input repository.UpdateInput) (*domain.Entry, error)
	DeleteKnowledge(ctx context.Context, id int) error
	GetKnowledge(ctx context.Context, id int) (*domain.Entry, error)
	ListKnowledge(ctx context.Context, category string) []*domain.Entry
	TextSearch(ctx context.Context, query, category string) []*domain.Entry
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type CreateEntryRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Source   string   `json:"source"`
}

// UpdateEntryRequest is a partial update; absent fields are left unchanged.
type UpdateEntryRequest struct {
	Title    *string  `json:"title"`
	Content  *string  `json:"content"`
	Category *string  `json:"category"`
	Tags     []string `json:"tags"`
	Source   *string  `json:"source"`
}

type EntryResponse struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Source    string   `json:"source,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func entryToResponse(e *domain.Entry) *EntryResponse {
	return &EntryResponse{
		ID:        e.ID,
		Title:     e.Title,
		Content:   e.Content,
		Category:  e.Category,
		Tags:      e.Tags,
		Source:    e.Source,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

func entriesToResponse(entries []*domain.Entry) []*EntryResponse {
	responses := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = entryToResponse(e)
	}
	return responses
}

func entryID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	entry, err := h.svc.AddKnowledge(r.Context(), repository.AddInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
		Source:   req.Source,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, entryToResponse(entry))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := h.svc.GetKnowledge(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

// List returns all entries, filtered by ?category= and substring-matched
// against ?q= when present.
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	query := r.URL.Query().Get("q")

	var entries []*domain.Entry
	if query != "" {
		entries = h.svc.TextSearch(r.Context(), query, category)
	} else {
		entries = h.svc.ListKnowledge(r.Context(), category)
	}

	api.Success(w, http.StatusOK, entriesToResponse(entries))
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.svc.UpdateKnowledge(r.Context(), id, repository.UpdateInput{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
		Source:   req.Source,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if err := h.svc.DeleteKnowledge(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]bool{"deleted": true})
}
