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
	"fmt"
	"strings"

	"github.com/AleutianAI/folio/services/orchestrator/services"
)

// Compile-time interface implementation check.
var _ Tool = (*WebSearchTool)(nil)

// webSearchSchema describes the web_search arguments.
var webSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Free-text search query, e.g. a ticker plus a topic"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum results to return (default 3, max 10)"
		}
	},
	"required": ["query"]
}`)

// WebSearchTool lets the model run ad-hoc web searches during a turn.
type WebSearchTool struct {
	client *services.WebSearchClient
}

// NewWebSearchTool wraps the search client as a model tool.
func NewWebSearchTool(client *services.WebSearchClient) (*WebSearchTool, error) {
	if client == nil {
		return nil, fmt.Errorf("web search client must not be nil")
	}
	return &WebSearchTool{client: client}, nil
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for recent news and articles. Returns a short list of titles, snippets, and URLs."
}

func (t *WebSearchTool) Parameters() json.RawMessage { return webSearchSchema }

// Call runs one search and renders the hits as a bullet list the model
// can cite from.
func (t *WebSearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("web_search requires a non-empty query")
	}
	if params.Limit < 1 || params.Limit > 10 {
		params.Limit = 3
	}

	hits, err := t.client.Search(ctx, params.Query, params.Limit)
	if err != nil {
		return "", fmt.Errorf("web_search failed: %w", err)
	}
	if len(hits) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for _, hit := range hits {
		b.WriteString("- " + hit.Title)
		if hit.Snippet != "" {
			b.WriteString(": " + hit.Snippet)
		}
		if hit.URL != "" {
			b.WriteString(" (" + hit.URL + ")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
