package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/marloweai/marlowe/internal/domain"
	"github.com/marloweai/marlowe/internal/service"
	"github.com/marloweai/marlowe/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRAGService struct {
	mock.Mock
}

func (m *mockRAGService) Answer(ctx context.Context, query string) (*service.Answer, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Answer), args.Error(1)
}

func (m *mockRAGService) SearchKnowledge(ctx context.Context, query string, topK int) ([]service.SearchResult, error) {
	args := m.Called(ctx, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SearchResult), args.Error(1)
}

func (m *mockRAGService) Status(ctx context.Context) service.Health {
	return m.Called(ctx).Get(0).(service.Health)
}

func newRAGRouter(svc RAGService) http.Handler {
	h := NewRAGHandler(svc)
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Post("/search", h.Search)
	r.Get("/health", h.Health)
	return r
}

func TestChat(t *testing.T) {
	svc := new(mockRAGService)
	svc.On("Answer", mock.Anything, "what is indexing?").Return(&service.Answer{
		Response: "an answer",
		Sources: []service.Source{
			{ID: 1, Score: 0.9, Metadata: vectorstore.Metadata{EntryID: 1, Title: "X"}},
		},
		Confidence: 0.9,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"query":"what is indexing?"}`))
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data service.Answer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "an answer", envelope.Data.Response)
	assert.Equal(t, 0.9, envelope.Data.Confidence)
	require.Len(t, envelope.Data.Sources, 1)
	assert.Equal(t, 1, envelope.Data.Sources[0].ID)
}

func TestChat_EmptyQuery(t *testing.T) {
	svc := new(mockRAGService)
	svc.On("Answer", mock.Anything, "").Return(nil, domain.ErrEmptyQuery)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"query":""}`))
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_InvalidBody(t *testing.T) {
	svc := new(mockRAGService)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{`))
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestSearch(t *testing.T) {
	svc := new(mockRAGService)
	svc.On("SearchKnowledge", mock.Anything, "indexing", 3).Return([]service.SearchResult{
		{Entry: testEntry(), Score: 0.8},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":"indexing","top_k":3}`))
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data []SearchResultResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, 1, envelope.Data[0].Entry.ID)
	assert.Equal(t, float32(0.8), envelope.Data[0].Score)
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := new(mockRAGService)
	svc.On("SearchKnowledge", mock.Anything, "", 0).Return(nil, domain.ErrEmptyQuery)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewBufferString(`{"query":""}`))
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	svc := new(mockRAGService)
	svc.On("Status", mock.Anything).Return(service.Health{
		LLMAvailable:            false,
		VectorDBAvailable:       true,
		EmbeddingModelAvailable: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	newRAGRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data service.Health `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.LLMAvailable)
	assert.True(t, envelope.Data.VectorDBAvailable)
	assert.True(t, envelope.Data.EmbeddingModelAvailable)
}
