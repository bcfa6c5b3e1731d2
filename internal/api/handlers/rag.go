package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/marloweai/marlowe/internal/api"
	"github.com/marloweai/marlowe/internal/service"
)

type RAGService interface {
	Answer(ctx context.Context, query string) (*service.Answer, error)
	SearchKnowledge(ctx context.Context, query string, topK int) ([]service.SearchResult, error)
	Status(ctx context.Context) service.Health
}

type RAGHandler struct {
	svc RAGService
}

func NewRAGHandler(svc RAGService) *RAGHandler {
	return &RAGHandler{svc: svc}
}

type ChatRequest struct {
	Query string `json:"query"`
}

type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type SearchResultResponse struct {
	Entry *EntryResponse `json:"entry"`
	Score float32        `json:"score"`
}

// Chat runs the full query pipeline and returns the generated answer with
// its sources and confidence.
func (h *RAGHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Answer(r.Context(), req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, answer)
}

// Search runs retrieval only.
func (h *RAGHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.svc.SearchKnowledge(r.Context(), req.Query, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]SearchResultResponse, len(results))
	for i, res := range results {
		responses[i] = SearchResultResponse{Entry: entryToResponse(res.Entry), Score: res.Score}
	}
	api.Success(w, http.StatusOK, responses)
}

// Health reports subsystem availability. Always 200: a degraded subsystem
// is an expected state, not a failed service.
func (h *RAGHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.svc.Status(r.Context()))
}
