package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL") // e.g., "gpt-4o"
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// NewOpenAIClientWithConfig builds a client against a custom endpoint.
// Used by tests to point at a mock server.
func NewOpenAIClientWithConfig(apiKey, model, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ChatStream implements the LLMClient interface.
//
// # Description
//
// Runs one streaming chat-completion step. Answer text and reasoning
// text are forwarded to the callback chunk-by-chunk as they arrive;
// tool-call fragments are accumulated across chunks (the provider
// splits one call's JSON arguments over many deltas) and returned on
// the StepResult once the stream ends.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout. Cancellation surfaces
//     as the context's error.
//   - messages: Conversation history, including assistant tool-call
//     turns and tool result turns from earlier steps.
//   - params: Generation parameters and tool definitions.
//   - callback: Receives token/thinking events. A callback error
//     aborts the stream.
//
// # Outputs
//
//   - *StepResult: Accumulated content, reasoning, tool calls, and the
//     provider finish reason.
//   - error: Non-nil when the provider stream fails or ctx ends.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) (*StepResult, error) {

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	if params.ReasoningEffort != "" {
		req.ReasoningEffort = params.ReasoningEffort
	}
	if len(params.Tools) > 0 {
		req.Tools = convertTools(params.Tools)
		if params.DisableParallelToolCalls {
			req.ParallelToolCalls = false
		}
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Error("OpenAI stream creation failed", "error", err)
		return nil, fmt.Errorf("OpenAI stream creation failed: %w", err)
	}
	defer stream.Close()

	var (
		content      strings.Builder
		reasoning    strings.Builder
		finishReason string
	)
	// Tool-call fragments arrive keyed by index; one call's arguments
	// span many chunks.
	toolCalls := make(map[int]*toolCallBuilder)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Error("OpenAI stream receive failed", "error", err)
			return nil, fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.ReasoningContent != "" {
			reasoning.WriteString(choice.Delta.ReasoningContent)
			if err := callback(StreamEvent{Type: StreamEventThinking, Content: choice.Delta.ReasoningContent}); err != nil {
				return nil, err
			}
		}
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if err := callback(StreamEvent{Type: StreamEventToken, Content: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}
		for _, fragment := range choice.Delta.ToolCalls {
			idx := 0
			if fragment.Index != nil {
				idx = *fragment.Index
			}
			builder, exists := toolCalls[idx]
			if !exists {
				builder = &toolCallBuilder{}
				toolCalls[idx] = builder
			}
			if fragment.ID != "" {
				builder.id = fragment.ID
			}
			if fragment.Function.Name != "" {
				builder.name = fragment.Function.Name
			}
			builder.args.WriteString(fragment.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	result := &StepResult{
		Content:      content.String(),
		Reasoning:    reasoning.String(),
		FinishReason: finishReason,
	}
	for _, idx := range sortedKeys(toolCalls) {
		builder := toolCalls[idx]
		result.ToolCalls = append(result.ToolCalls, ToolCallRequest{
			ID:   builder.id,
			Name: builder.name,
			Args: builder.args.String(),
		})
	}
	return result, nil
}

// toolCallBuilder aggregates one streamed tool call across chunks.
type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func sortedKeys(m map[int]*toolCallBuilder) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// convertMessages maps conversation turns onto the provider schema.
// Multipart turns become multi-content messages; tool turns carry the
// call ID they answer.
func convertMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		cm := openai.ChatCompletionMessage{Role: m.Role}
		if len(m.Parts) > 0 {
			for _, p := range m.Parts {
				switch p.Type {
				case datatypes.PartTypeImage:
					cm.MultiContent = append(cm.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    p.Image,
							Detail: openai.ImageURLDetailAuto,
						},
					})
				default:
					cm.MultiContent = append(cm.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: p.Text,
					})
				}
			}
		} else {
			cm.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Args,
				},
			})
		}
		cm.ToolCallID = m.ToolCallID
		converted = append(converted, cm)
	}
	return converted
}

// convertTools maps tool definitions onto the provider schema.
func convertTools(tools []ToolDefinition) []openai.Tool {
	converted := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		converted = append(converted, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return converted
}
