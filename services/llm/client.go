// Package llm abstracts the model-inference backend behind a small
// streaming interface.
package llm

import (
	"context"
	"encoding/json"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// StreamEventType identifies the kind of an incremental model event.
type StreamEventType string

const (
	// StreamEventToken carries a chunk of answer text.
	StreamEventToken StreamEventType = "token"
	// StreamEventThinking carries a chunk of model reasoning output.
	StreamEventThinking StreamEventType = "thinking"
	// StreamEventError carries a provider-side stream failure.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one incremental event from a model stream.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives stream events as they arrive. Returning a
// non-nil error aborts the stream.
type StreamCallback func(event StreamEvent) error

// GenerationParams carries per-request model options. Pointer fields
// distinguish "unset" from zero values.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// Tools the model may call this step.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// DisableParallelToolCalls forces the provider to emit tool calls
	// that the caller can execute strictly one at a time.
	DisableParallelToolCalls bool `json:"disable_parallel_tool_calls,omitempty"`

	// ReasoningEffort selects provider reasoning verbosity
	// ("low", "medium", "high"). Empty leaves the provider default.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

// ToolDefinition describes one callable tool in provider-neutral form.
// Parameters is a JSON Schema document.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCallRequest is one tool invocation the model asked for.
type ToolCallRequest struct {
	ID   string
	Name string
	Args string
}

// StepResult summarizes one completed model step after the stream ends.
//
// Content and Reasoning hold the accumulated text for callers that need
// the full turn (e.g. to append an assistant message before running
// tools); the same text was already delivered incrementally through the
// callback. ToolCalls is empty when the model produced a final answer.
type StepResult struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCallRequest
	FinishReason string
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// ChatStream runs one model step over the conversation, delivering
	// incremental events through callback and returning the completed
	// step. Blocks until the provider stream ends or ctx is done.
	ChatStream(ctx context.Context, messages []datatypes.Message,
		params GenerationParams, callback StreamCallback) (*StepResult, error)
}
