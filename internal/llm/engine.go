// Package llm wraps the generation model behind a never-failing interface:
// when the model is unreachable the engine answers with a clearly labeled
// placeholder instead of an error.
package llm

import (
	"context"
	"log"
)

const (
	// PlaceholderResponse is returned when no generation backend is configured.
	PlaceholderResponse = "Generation model not available. Configure an API key to enable answer generation; retrieval and knowledge management continue to work."
	// ErrorResponse is returned when the backend is configured but a call fails.
	ErrorResponse = "Sorry, I encountered an error while processing your request."
)

// Client is the chat completion backend. A nil client leaves the engine
// permanently unavailable.
type Client interface {
	CreateChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Engine generates natural-language text. Token budget and sampling
// temperature are properties of the underlying client, fixed at startup.
type Engine struct {
	client Client
}

// NewEngine creates an Engine. client may be nil.
func NewEngine(client Client) *Engine {
	return &Engine{client: client}
}

// Available reports whether a generation backend is configured.
func (e *Engine) Available() bool {
	return e.client != nil
}

// Generate produces a response for the prompt. It never fails: an
// unconfigured backend yields PlaceholderResponse and a failing call yields
// ErrorResponse, so the read path always produces a response object.
func (e *Engine) Generate(ctx context.Context, prompt, systemPrompt string) string {
	if e.client == nil {
		return PlaceholderResponse
	}

	response, err := e.client.CreateChatCompletion(ctx, systemPrompt, prompt)
	if err != nil {
		log.Printf("llm: generation failed: %v", err)
		return ErrorResponse
	}
	return response
}
