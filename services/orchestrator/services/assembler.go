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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// =============================================================================
// Conversation Assembly
// =============================================================================

// Holdings block delimiters. The model-facing system prompt documents
// this exact tag, so the two must stay in sync.
const (
	holdingsOpenTag  = "<HOLDINGS_JSON>"
	holdingsCloseTag = "</HOLDINGS_JSON>"
)

// FileArtifact is the outcome of processing one uploaded file.
type FileArtifact struct {
	Name     string
	Holdings []datatypes.Holding
}

// Parsed reports whether holdings extraction found anything.
func (a *FileArtifact) Parsed() bool {
	return a != nil && len(a.Holdings) > 0
}

// AssembleConversation builds the final model-facing message sequence.
//
// # Description
//
// Applies the assembly rules in priority order:
//
//  1. A parsed file artifact appends one synthetic user message whose
//     text wraps the holdings JSON in the <HOLDINGS_JSON> block. An
//     unparsable artifact appends a plain-text note instead.
//  2. Otherwise, an image merges into the last user turn: its text (if
//     any) becomes the first part, the image the second, producing one
//     multimodal message in place, never an extra turn. When both a
//     file and an image are supplied the file wins and the image is
//     dropped with a warning; the combination is undefined upstream.
//  3. Otherwise, messages pass through unchanged.
//
// Enrichment messages are appended after the holdings message, web
// context strictly before price context.
//
// The input slice is never mutated; callers keep their original
// conversation.
//
// # Inputs
//
//   - prior: Conversation turns from the client, chronological order.
//   - image: Optional image URL or data URL.
//   - artifact: Optional uploaded-file outcome.
//   - enrichment: Optional context messages from the Enrichment Fetcher.
//
// # Outputs
//
//   - []datatypes.Message: The assembled sequence, immutable by
//     convention once handed to the streaming orchestrator.
func AssembleConversation(prior []datatypes.Message, image string,
	artifact *FileArtifact, enrichment EnrichmentResult) []datatypes.Message {

	assembled := make([]datatypes.Message, len(prior))
	copy(assembled, prior)

	switch {
	case artifact != nil:
		if image != "" {
			slog.Warn("request carried both a file and an image; the image is ignored",
				"file", artifact.Name)
		}
		assembled = append(assembled, fileMessage(artifact))
	case image != "":
		assembled = mergeImageIntoLastUserTurn(assembled, image)
	}

	if artifact.Parsed() {
		if enrichment.WebContext != "" {
			assembled = append(assembled,
				datatypes.TextMessage(datatypes.RoleUser, enrichment.WebContext))
		}
		if enrichment.PriceContext != "" {
			assembled = append(assembled,
				datatypes.TextMessage(datatypes.RoleUser, enrichment.PriceContext))
		}
	}
	return assembled
}

// fileMessage renders the synthetic user turn for an uploaded file:
// the holdings block when extraction succeeded, a plain note when not.
func fileMessage(artifact *FileArtifact) datatypes.Message {
	if !artifact.Parsed() {
		return datatypes.TextMessage(datatypes.RoleUser, fmt.Sprintf(
			"I uploaded a file named %s but the server could not parse its type. "+
				"Please upload CSV or XLSX.", artifact.Name))
	}

	payload, err := json.Marshal(datatypes.HoldingsPayload{Holdings: artifact.Holdings})
	if err != nil {
		// Holdings are plain strings and floats; this cannot fail in
		// practice, but degrade to the note rather than panic.
		slog.Error("failed to encode the holdings payload", "error", err)
		return datatypes.TextMessage(datatypes.RoleUser, fmt.Sprintf(
			"I uploaded a file named %s but the server could not parse its type. "+
				"Please upload CSV or XLSX.", artifact.Name))
	}

	return datatypes.TextMessage(datatypes.RoleUser, fmt.Sprintf(
		"User uploaded file %s with detected holdings:\n%s\n%s\n%s",
		artifact.Name, holdingsOpenTag, payload, holdingsCloseTag))
}

// mergeImageIntoLastUserTurn folds the image into the most recent user
// turn as a multimodal message: text part first, then image part. The
// sequence length never changes; earlier turns pass through untouched.
// With no user turn to merge into, the image is dropped.
func mergeImageIntoLastUserTurn(messages []datatypes.Message, image string) []datatypes.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != datatypes.RoleUser {
			continue
		}
		merged := datatypes.Message{Role: datatypes.RoleUser}
		if text := messages[i].Text(); text != "" {
			merged.Parts = append(merged.Parts,
				datatypes.MessagePart{Type: datatypes.PartTypeText, Text: text})
		}
		merged.Parts = append(merged.Parts,
			datatypes.MessagePart{Type: datatypes.PartTypeImage, Image: image})
		messages[i] = merged
		return messages
	}
	slog.Warn("image attachment dropped: conversation has no user turn")
	return messages
}
