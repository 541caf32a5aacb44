// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "strings"

// =============================================================================
// Conversation Message Types
// =============================================================================

// Message roles accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message part types for multimodal content.
const (
	PartTypeText  = "text"
	PartTypeImage = "image"
)

// MessagePart is one segment of a multimodal message.
//
// A plain text turn uses a single part with Type "text". When the client
// attaches an image, the final user turn gains an additional part with
// Type "image" whose Image field carries either a URL or a data URL
// (base64-encoded payload with a media type prefix).
type MessagePart struct {
	Type  string `json:"type" validate:"required,oneof=text image"`
	Text  string `json:"text,omitempty" validate:"maxbytes"`
	Image string `json:"image,omitempty"`
}

// ToolCall is a tool invocation requested by the assistant.
//
// Args is the raw JSON argument payload exactly as emitted by the model.
// It is kept as a string so it round-trips through the provider API and
// the stream protocol without re-encoding.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// Message represents one turn of a conversation.
//
// # Description
//
// Message is the canonical conversation unit flowing through the whole
// pipeline: client request, holdings injection, enrichment context, the
// model's tool-call turns, and tool results. Content and Parts are
// alternatives: simple turns set Content, multimodal turns set Parts.
// When both are set, Parts wins.
//
// # Fields
//
//   - Role: One of "system", "user", "assistant", "tool".
//   - Content: Plain text content for single-part turns.
//   - Parts: Multimodal content (text and image parts). Optional.
//   - ToolCalls: Tool invocations requested by an assistant turn. Optional.
//   - ToolCallID: For Role "tool", the ID of the call this turn answers.
//
// # Assumptions
//
//   - Messages are in chronological order
//   - Tool result turns immediately follow the assistant turn that
//     requested them
type Message struct {
	Role       string        `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string        `json:"content,omitempty" validate:"maxbytes"`
	Parts      []MessagePart `json:"parts,omitempty" validate:"omitempty,dive"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns the textual content of the message.
//
// For multipart messages this is the concatenation of all text parts,
// joined with newlines. Image parts contribute nothing.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartTypeText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// TextMessage builds a single-part message with the given role and text.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// LatestUserText returns the text of the most recent user turn, or ""
// when the conversation contains no user turn.
func LatestUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}
