// Package llm talks to chat-completion models. ChatModel is the transport
// (OpenAI or Ollama); Service builds the analysis, summary and answer
// prompts on top of it.
package llm

import (
	"context"
	"io"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by both providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatModel is a chat-completion endpoint.
type ChatModel interface {
	// Complete returns the assistant's reply and the tokens used. When
	// jsonMode is set the model is asked to answer with a JSON object.
	Complete(ctx context.Context, messages []Message, jsonMode bool) (string, int, error)
	// Stream writes reply fragments to w as they arrive and returns the
	// tokens used.
	Stream(ctx context.Context, messages []Message, w io.Writer) (int, error)
	// Model returns the model name.
	Model() string
}
