// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWebSearchClient_ItemsEnvelope verifies extraction from an "items"
// list with canonical field names.
func TestWebSearchClient_ItemsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL stock news", r.URL.Query().Get("q"))
		w.Write([]byte(`{"items":[
			{"title":"Apple rallies","snippet":"Shares up 3%","url":"https://example.com/a"},
			{"title":"Supply chain","snippet":"New supplier","url":"https://example.com/b"}
		]}`))
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "")
	require.NoError(t, err)

	hits, err := client.Search(context.Background(), "AAPL stock news", 3)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Apple rallies", hits[0].Title)
	assert.Equal(t, "Shares up 3%", hits[0].Snippet)
	assert.Equal(t, "https://example.com/a", hits[0].URL)
}

// TestWebSearchClient_FieldAliases verifies the fallback field names:
// results/headline/summary/link and excerpt.
func TestWebSearchClient_FieldAliases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"headline":"MSFT earnings","summary":"Beat estimates","link":"https://example.com/m"},
			{"headline":"Azure growth","excerpt":"Cloud up 30%"}
		]}`))
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "")
	require.NoError(t, err)

	hits, err := client.Search(context.Background(), "MSFT stock news", 3)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "MSFT earnings", hits[0].Title)
	assert.Equal(t, "Beat estimates", hits[0].Snippet)
	assert.Equal(t, "https://example.com/m", hits[0].URL)
	assert.Equal(t, "Cloud up 30%", hits[1].Snippet)
	assert.Empty(t, hits[1].URL)
}

// TestWebSearchClient_LimitApplied verifies at most limit hits return
// even when the provider sends more.
func TestWebSearchClient_LimitApplied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"title":"one"},{"title":"two"},{"title":"three"},{"title":"four"}
		]}`))
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "")
	require.NoError(t, err)

	hits, err := client.Search(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

// TestWebSearchClient_APIKeyHeader verifies the credential travels as
// X-API-KEY.
func TestWebSearchClient_APIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "secret-key")
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey)
}

// TestWebSearchClient_Non200 verifies a provider error status surfaces
// as an error for the caller's skip logic.
func TestWebSearchClient_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "")
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "q", 3)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

// TestWebSearchClient_EmptyEnvelope verifies a response without items
// or results yields no hits and no error.
func TestWebSearchClient_EmptyEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"took_ms":12}`))
	}))
	defer server.Close()

	client, err := NewWebSearchClient(server.URL, "")
	require.NoError(t, err)

	hits, err := client.Search(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.Empty(t, hits)
}
