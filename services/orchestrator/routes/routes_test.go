// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/folio/services/llm"
	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
	"github.com/AleutianAI/folio/services/orchestrator/handlers"
	"github.com/AleutianAI/folio/services/orchestrator/services"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockLLMClient is a minimal mock for llm.LLMClient
type mockLLMClient struct{}

func (m *mockLLMClient) ChatStream(_ context.Context, _ []datatypes.Message,
	_ llm.GenerationParams, callback llm.StreamCallback) (*llm.StepResult, error) {
	_ = callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: "mock stream"})
	return &llm.StepResult{Content: "mock stream"}, nil
}

// mockModerationClient never flags anything.
type mockModerationClient struct{}

func (m *mockModerationClient) Moderations(_ context.Context,
	_ openai.ModerationRequest) (openai.ModerationResponse, error) {
	return openai.ModerationResponse{Results: []openai.Result{{Flagged: false}}}, nil
}

func newTestChatHandler(t *testing.T) handlers.StreamingChatHandler {
	t.Helper()
	moderator, err := services.NewModerationService(&mockModerationClient{})
	if err != nil {
		t.Fatalf("moderation service: %v", err)
	}
	return handlers.NewStreamingChatHandler(&mockLLMClient{}, moderator, nil, nil)
}

// ============================================================================
// SetupRoutes Tests - Without Weaviate Client
// ============================================================================

func TestSetupRoutes_WithoutWeaviateClient(t *testing.T) {
	router := gin.New()

	// Should not panic when weaviate client is nil
	SetupRoutes(router, newTestChatHandler(t), nil)

	// Verify core routes are registered
	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat/stream"},
		{"GET", "/v1/chat/ws"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

func TestSetupRoutes_DocumentRoutesNotRegisteredWithoutClient(t *testing.T) {
	router := gin.New()

	SetupRoutes(router, newTestChatHandler(t), nil)

	// These routes should NOT be registered when weaviate client is nil
	documentRoutes := []struct {
		method string
		path   string
	}{
		{"POST", "/v1/documents"},
		{"GET", "/v1/documents"},
		{"DELETE", "/v1/document"},
	}

	routes := router.Routes()
	for _, notExpected := range documentRoutes {
		found := false
		for _, r := range routes {
			if r.Method == notExpected.method && r.Path == notExpected.path {
				found = true
				break
			}
		}
		if found {
			t.Errorf("Route %s %s should NOT be registered without Weaviate client", notExpected.method, notExpected.path)
		}
	}
}

// ============================================================================
// Route Handler Tests
// ============================================================================

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := gin.New()

	SetupRoutes(router, newTestChatHandler(t), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	router := gin.New()

	SetupRoutes(router, newTestChatHandler(t), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	// Prometheus metrics endpoint should return 200
	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}

	// Should return prometheus format
	contentType := w.Header().Get("Content-Type")
	if contentType == "" {
		t.Error("Metrics endpoint should return Content-Type header")
	}
}

// ============================================================================
// API Version Group Tests
// ============================================================================

func TestSetupRoutes_V1GroupExists(t *testing.T) {
	router := gin.New()

	SetupRoutes(router, newTestChatHandler(t), nil)

	routes := router.Routes()
	v1Routes := 0
	for _, r := range routes {
		if len(r.Path) > 3 && r.Path[:3] == "/v1" {
			v1Routes++
		}
	}

	if v1Routes == 0 {
		t.Error("Expected at least one /v1 route")
	}
}
