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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// webSearchTracer is the OpenTelemetry tracer for WebSearchClient operations.
var webSearchTracer = otel.Tracer("folio.orchestrator.services.websearch")

// SearchHit is one normalized web search result.
type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

// WebSearchClient queries a JSON-over-HTTP search provider.
//
// # Description
//
// The provider contract is deliberately loose: the response is a JSON
// object whose result list lives under "items" or "results", and each
// item exposes title/snippet/url under one of several accepted field
// names (title|headline, snippet|summary|excerpt, url|link). Field
// probing happens here so the rest of the pipeline sees one shape.
type WebSearchClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewWebSearchClient creates a search client for the given endpoint.
//
// # Inputs
//
//   - baseURL: Provider endpoint. Must not be empty.
//   - apiKey: Optional credential sent as X-API-KEY.
//
// # Outputs
//
//   - *WebSearchClient: The client.
//   - error: Non-nil when baseURL is empty.
func NewWebSearchClient(baseURL, apiKey string) (*WebSearchClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("web search base URL must not be empty")
	}
	return &WebSearchClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// Search runs one query and returns at most limit normalized hits.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: Free-text query.
//   - limit: Maximum hits to return. Values < 1 default to 3.
//
// # Outputs
//
//   - []SearchHit: Normalized hits, provider order preserved.
//   - error: Non-nil on transport failure, non-200 status, or a body
//     that is not a JSON object.
func (c *WebSearchClient) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	ctx, span := webSearchTracer.Start(ctx, "WebSearchClient.Search")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", query))

	if limit < 1 {
		limit = 3
	}

	reqURL := fmt.Sprintf("%s?q=%s&num=%s", c.baseURL,
		url.QueryEscape(query), strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build the search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read the search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "non-200 from search provider")
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	hits, err := parseSearchHits(body, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, nil
}

// parseSearchHits extracts hits from a provider response body.
func parseSearchHits(body []byte, limit int) ([]SearchHit, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse the search response: %w", err)
	}

	var items []map[string]any
	for _, key := range []string{"items", "results"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse the %q list: %w", key, err)
		}
		break
	}

	hits := make([]SearchHit, 0, limit)
	for _, item := range items {
		if len(hits) == limit {
			break
		}
		hit := SearchHit{
			Title:   firstString(item, "title", "headline"),
			Snippet: firstString(item, "snippet", "summary", "excerpt"),
			URL:     firstString(item, "url", "link"),
		}
		if hit.Title == "" && hit.Snippet == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// firstString returns the first non-empty string among the given keys.
func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
