// Package llm talks to language model providers. Every provider returns
// schema-validated JSON so callers can decode straight into their own types.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the language generation capability used by the tutor.
type Provider interface {
	// Generate sends the conversation to the model. When req.Schema is set
	// the provider uses its native structured output mode and Response.Content
	// is JSON that has already been validated against the schema.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System carries the standing instructions for the model.
	System string

	// Messages is the conversation so far, oldest first. Tutoring turns
	// replay recent history as alternating user/assistant messages.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	Schema *Schema

	MaxTokens int

	// Temperature controls randomness in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

// Message is one entry in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema to the provider and keys the compiled
	// schema cache. Kebab-case, e.g. "tutor-turn".
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the model's output.
type Response struct {
	// Content is the validated JSON object when a schema was requested,
	// otherwise the raw text.
	Content json.RawMessage
	Usage   Usage

	// Model is the model that actually served the request.
	Model string

	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// DecodeJSON unmarshals a response body into T. Decode failures are
// reported as *ErrInvalidResponse so callers treat them like any other
// malformed model output.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, &ErrInvalidResponse{Err: fmt.Errorf("nil response")}
	}
	if resp.StopReason == "max_tokens" {
		return out, &ErrMaxTokensExceeded{Content: resp.Content}
	}
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return out, &ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return out, nil
}
