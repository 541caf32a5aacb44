// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
//
// # Description
//
// Tests that applyConfigDefaults correctly fills in missing values
// when an empty Config is provided.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	// Arrange
	cfg := Config{}

	// Act
	result := applyConfigDefaults(cfg)

	// Assert
	assert.Equal(t, 12210, result.Port, "default port should be 12210")
	assert.Equal(t, "folio-otel-collector:4317", result.OTelEndpoint,
		"default OTel endpoint should be folio-otel-collector:4317")
	assert.False(t, result.DisableMetrics, "metrics should be enabled by default")
}

// TestApplyConfigDefaults_MetricsOptOut verifies an explicit opt-out
// survives defaulting.
func TestApplyConfigDefaults_MetricsOptOut(t *testing.T) {
	cfg := Config{DisableMetrics: true}

	result := applyConfigDefaults(cfg)

	assert.True(t, result.DisableMetrics, "explicit metrics opt-out should be preserved")
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values are not overwritten.
//
// # Description
//
// Tests that applyConfigDefaults does not overwrite user-provided values.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	// Arrange
	cfg := Config{
		Port:         8080,
		OTelEndpoint: "custom-collector:4317",
		WeaviateURL:  "http://weaviate:8080",
		SearchAPIURL: "https://search.example.com/v1",
		SearchAPIKey: "search-key",
		QuoteAPIKey:  "demo",
	}

	// Act
	result := applyConfigDefaults(cfg)

	// Assert
	assert.Equal(t, 8080, result.Port, "custom port should be preserved")
	assert.Equal(t, "custom-collector:4317", result.OTelEndpoint,
		"custom OTel endpoint should be preserved")
	assert.Equal(t, "http://weaviate:8080", result.WeaviateURL,
		"custom Weaviate URL should be preserved")
	assert.Equal(t, "https://search.example.com/v1", result.SearchAPIURL)
	assert.Equal(t, "search-key", result.SearchAPIKey)
	assert.Equal(t, "demo", result.QuoteAPIKey)
}

// TestApplyConfigDefaults_PartialConfig verifies partial configs are handled.
//
// # Description
//
// Tests that applyConfigDefaults correctly mixes user values with defaults.
func TestApplyConfigDefaults_PartialConfig(t *testing.T) {
	// Arrange
	cfg := Config{
		Port: 9999,
		// OTelEndpoint left empty
	}

	// Act
	result := applyConfigDefaults(cfg)

	// Assert
	assert.Equal(t, 9999, result.Port, "custom port should be preserved")
	assert.Equal(t, "folio-otel-collector:4317", result.OTelEndpoint,
		"default OTel endpoint should be applied")
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNew_LightweightMode verifies that the service comes up with only
// provider credentials configured: no Weaviate, no search, no quotes.
//
// Kept as the single constructor test in this package because metric
// registration on the default Prometheus registry is not repeatable.
func TestNew_LightweightMode(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	svc, err := New(Config{})
	require.NoError(t, err, "service should initialize without optional providers")
	require.NotNil(t, svc)

	router := svc.Router()
	require.NotNil(t, router, "router should be configured")

	// Chat routes are always registered; document routes require Weaviate.
	var hasChatStream, hasChatWS, hasDocuments bool
	for _, r := range router.Routes() {
		switch {
		case r.Method == "POST" && r.Path == "/v1/chat/stream":
			hasChatStream = true
		case r.Method == "GET" && r.Path == "/v1/chat/ws":
			hasChatWS = true
		case r.Method == "POST" && r.Path == "/v1/documents":
			hasDocuments = true
		}
	}
	assert.True(t, hasChatStream, "chat stream route should be registered")
	assert.True(t, hasChatWS, "chat websocket route should be registered")
	assert.False(t, hasDocuments, "document routes need a Weaviate client")
}
