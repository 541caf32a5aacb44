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

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Compile-time interface implementation check.
var _ Tool = (*DocumentSearchTool)(nil)

// documentClass is the Weaviate class holding ingested reference
// documents (filings, research notes, uploaded PDFs).
const documentClass = "PortfolioDocument"

// documentSearchSchema describes the search_documents arguments.
var documentSearchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Semantic query over the ingested document store"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum passages to return (default 4, max 10)"
		}
	},
	"required": ["query"]
}`)

// DocumentSearchTool lets the model search the vector document store.
type DocumentSearchTool struct {
	client *weaviate.Client
}

// NewDocumentSearchTool wraps a Weaviate client as a model tool.
func NewDocumentSearchTool(client *weaviate.Client) (*DocumentSearchTool, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client must not be nil")
	}
	return &DocumentSearchTool{client: client}, nil
}

func (t *DocumentSearchTool) Name() string { return "search_documents" }

func (t *DocumentSearchTool) Description() string {
	return "Semantic search over the ingested document store (filings, research notes). Returns relevant passages with their sources."
}

func (t *DocumentSearchTool) Parameters() json.RawMessage { return documentSearchSchema }

// Call runs one near-text query and renders the matching passages.
func (t *DocumentSearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid search_documents arguments: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("search_documents requires a non-empty query")
	}
	if params.Limit < 1 || params.Limit > 10 {
		params.Limit = 4
	}

	nearText := t.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{params.Query})
	result, err := t.client.GraphQL().Get().
		WithClassName(documentClass).
		WithNearText(nearText).
		WithLimit(params.Limit).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("document search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("document search failed: %s", result.Errors[0].Message)
	}

	// Round-trip through JSON to get typed passages out of the
	// GraphQL response map.
	raw, err := json.Marshal(result.Data["Get"])
	if err != nil {
		return "", fmt.Errorf("failed to decode the document search response: %w", err)
	}
	var parsed struct {
		PortfolioDocument []struct {
			Content    string `json:"content"`
			Source     string `json:"source"`
			Additional struct {
				Distance float64 `json:"distance"`
			} `json:"_additional"`
		} `json:"PortfolioDocument"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode the document search response: %w", err)
	}
	if len(parsed.PortfolioDocument) == 0 {
		return "No matching documents found.", nil
	}

	var b strings.Builder
	for _, doc := range parsed.PortfolioDocument {
		fmt.Fprintf(&b, "[%s] (distance %.3f)\n%s\n\n", doc.Source,
			doc.Additional.Distance, strings.TrimSpace(doc.Content))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
