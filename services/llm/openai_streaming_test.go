package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// newMockStreamServer returns a server that answers every chat
// completion request with the given SSE chunk payloads followed by the
// [DONE] sentinel.
func newMockStreamServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func chunkWithContent(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"content":%q}}]}`, content)
}

// TestChatStream_TokenDelivery verifies answer chunks reach the
// callback in order and accumulate on the StepResult.
func TestChatStream_TokenDelivery(t *testing.T) {
	server := newMockStreamServer(t, []string{
		chunkWithContent("Hello"),
		chunkWithContent(" world"),
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	})
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "test-model", server.URL+"/v1")

	var tokens []string
	callback := func(event StreamEvent) error {
		if event.Type == StreamEventToken {
			tokens = append(tokens, event.Content)
		}
		return nil
	}

	result, err := client.ChatStream(context.Background(),
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "hi"}},
		GenerationParams{}, callback)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " world"}, tokens)
	assert.Equal(t, "Hello world", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Empty(t, result.ToolCalls)
}

// TestChatStream_ToolCallAccumulation verifies tool-call fragments
// split across chunks reassemble into one complete call.
func TestChatStream_ToolCallAccumulation(t *testing.T) {
	server := newMockStreamServer(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"web_search","arguments":"{\"qu"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"aapl\"}"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "test-model", server.URL+"/v1")

	result, err := client.ChatStream(context.Background(),
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "hi"}},
		GenerationParams{}, func(StreamEvent) error { return nil })

	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_1", result.ToolCalls[0].ID)
	assert.Equal(t, "web_search", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"aapl"}`, result.ToolCalls[0].Args)
	assert.Equal(t, "tool_calls", result.FinishReason)
}

// TestChatStream_ReasoningDelivery verifies reasoning chunks surface as
// thinking events and accumulate separately from answer text.
func TestChatStream_ReasoningDelivery(t *testing.T) {
	server := newMockStreamServer(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"reasoning_content":"considering"}}]}`,
		chunkWithContent("42"),
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	})
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "test-model", server.URL+"/v1")

	var thinking []string
	callback := func(event StreamEvent) error {
		if event.Type == StreamEventThinking {
			thinking = append(thinking, event.Content)
		}
		return nil
	}

	result, err := client.ChatStream(context.Background(),
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "hi"}},
		GenerationParams{}, callback)

	require.NoError(t, err)
	assert.Equal(t, []string{"considering"}, thinking)
	assert.Equal(t, "considering", result.Reasoning)
	assert.Equal(t, "42", result.Content)
}

// TestChatStream_CallbackErrorAborts verifies a callback error stops
// the stream and propagates to the caller.
func TestChatStream_CallbackErrorAborts(t *testing.T) {
	server := newMockStreamServer(t, []string{
		chunkWithContent("Hello"),
		chunkWithContent(" world"),
	})
	defer server.Close()

	client := NewOpenAIClientWithConfig("test-key", "test-model", server.URL+"/v1")

	wantErr := fmt.Errorf("consumer gone")
	_, err := client.ChatStream(context.Background(),
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "hi"}},
		GenerationParams{}, func(StreamEvent) error { return wantErr })

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}
