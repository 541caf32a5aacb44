// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/folio/services/orchestrator/services"
)

// stubTool is a scripted in-memory tool.
type stubTool struct {
	name   string
	result string
	err    error
	called int
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Call(context.Context, json.RawMessage) (string, error) {
	s.called++
	return s.result, s.err
}

// TestRegistry_DefinitionsOrder verifies definitions come out in
// registration order.
func TestRegistry_DefinitionsOrder(t *testing.T) {
	registry, err := NewRegistry(
		&stubTool{name: "alpha"},
		&stubTool{name: "beta"},
	)
	require.NoError(t, err)

	defs := registry.Definitions()

	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "beta", defs[1].Name)
	assert.Equal(t, 2, registry.Len())
}

// TestRegistry_Dispatch verifies Call reaches the named tool.
func TestRegistry_Dispatch(t *testing.T) {
	tool := &stubTool{name: "alpha", result: "done"}
	registry, err := NewRegistry(tool)
	require.NoError(t, err)

	result, err := registry.Call(context.Background(), "alpha", nil)

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 1, tool.called)
}

// TestRegistry_UnknownTool verifies dispatching an unknown name errors
// without panicking.
func TestRegistry_UnknownTool(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	_, err = registry.Call(context.Background(), "ghost", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

// TestRegistry_DuplicateName verifies duplicate registration is
// rejected at construction.
func TestRegistry_DuplicateName(t *testing.T) {
	_, err := NewRegistry(&stubTool{name: "alpha"}, &stubTool{name: "alpha"})
	require.Error(t, err)
}

// TestRegistry_TruncatesLongResults verifies oversized tool output is
// capped before it reaches the model.
func TestRegistry_TruncatesLongResults(t *testing.T) {
	long := strings.Repeat("x", maxResultBytes+100)
	registry, err := NewRegistry(&stubTool{name: "alpha", result: long})
	require.NoError(t, err)

	result, err := registry.Call(context.Background(), "alpha", nil)

	require.NoError(t, err)
	assert.Len(t, result, maxResultBytes+len("\n[result truncated]"))
	assert.True(t, strings.HasSuffix(result, "[result truncated]"))
}

// deadlineSpyTool records whether its context carried a deadline.
type deadlineSpyTool struct {
	hadDeadline bool
}

func (d *deadlineSpyTool) Name() string                { return "spy" }
func (d *deadlineSpyTool) Description() string         { return "spy" }
func (d *deadlineSpyTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (d *deadlineSpyTool) Call(ctx context.Context, _ json.RawMessage) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	return "ok", nil
}

// TestRegistry_CallDeadline verifies each invocation runs under its own
// deadline even when the caller's context has none.
func TestRegistry_CallDeadline(t *testing.T) {
	spy := &deadlineSpyTool{}
	registry, err := NewRegistry(spy)
	require.NoError(t, err)

	_, err = registry.Call(context.Background(), "spy", nil)

	require.NoError(t, err)
	assert.True(t, spy.hadDeadline)
}

// TestWebSearchTool_Call verifies argument parsing and hit rendering
// against a stub provider.
func TestWebSearchTool_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL earnings", r.URL.Query().Get("q"))
		w.Write([]byte(`{"items":[{"title":"Apple Q3","snippet":"Record revenue","url":"https://example.com/q3"}]}`))
	}))
	defer server.Close()

	client, err := services.NewWebSearchClient(server.URL, "")
	require.NoError(t, err)
	tool, err := NewWebSearchTool(client)
	require.NoError(t, err)

	result, err := tool.Call(context.Background(),
		json.RawMessage(`{"query":"AAPL earnings"}`))

	require.NoError(t, err)
	assert.Contains(t, result, "Apple Q3")
	assert.Contains(t, result, "Record revenue")
	assert.Contains(t, result, "https://example.com/q3")
}

// TestWebSearchTool_EmptyQuery verifies a blank query is rejected
// before hitting the provider.
func TestWebSearchTool_EmptyQuery(t *testing.T) {
	client, err := services.NewWebSearchClient("http://127.0.0.1:0", "")
	require.NoError(t, err)
	tool, err := NewWebSearchTool(client)
	require.NoError(t, err)

	_, err = tool.Call(context.Background(), json.RawMessage(`{"query":"  "}`))

	require.Error(t, err)
}

// TestWebSearchTool_NoResults verifies the model gets an explicit
// no-results sentence rather than an empty string.
func TestWebSearchTool_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	client, err := services.NewWebSearchClient(server.URL, "")
	require.NoError(t, err)
	tool, err := NewWebSearchTool(client)
	require.NoError(t, err)

	result, err := tool.Call(context.Background(), json.RawMessage(`{"query":"nothing"}`))

	require.NoError(t, err)
	assert.Equal(t, "No results found.", result)
}
