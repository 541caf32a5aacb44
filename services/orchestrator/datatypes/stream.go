// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the stream wire protocol: the typed events emitted
// over SSE and WebSocket transports while a chat turn is generated.
package datatypes

import (
	"encoding/json"

	"github.com/google/uuid"
)

// =============================================================================
// Stream Event Protocol
// =============================================================================

// StreamEventType identifies the kind of a stream event.
type StreamEventType string

// Stream event types, in the order a typical turn emits them.
const (
	EventStart          StreamEventType = "start"
	EventTextStart      StreamEventType = "text-start"
	EventTextDelta      StreamEventType = "text-delta"
	EventTextEnd        StreamEventType = "text-end"
	EventReasoningStart StreamEventType = "reasoning-start"
	EventReasoningDelta StreamEventType = "reasoning-delta"
	EventReasoningEnd   StreamEventType = "reasoning-end"
	EventToolCall       StreamEventType = "tool-call"
	EventToolResult     StreamEventType = "tool-result"
	EventFinish         StreamEventType = "finish"
	EventError          StreamEventType = "error"
)

// Error kinds carried by EventError payloads.
//
// Kinds classify where in the pipeline the failure happened so clients
// can react without parsing the sanitized message text.
const (
	ErrorKindValidation = "validation"
	ErrorKindModeration = "moderation"
	ErrorKindModel      = "model"
	ErrorKindTool       = "tool"
	ErrorKindTimeout    = "timeout"
	ErrorKindInternal   = "internal"
)

// DenialBlockID is the text block ID used when moderation rejects the
// latest user turn and the denial text is streamed in place of a model
// answer.
const DenialBlockID = "moderation-denial-text"

// StreamEvent is one event on the chat stream.
//
// # Description
//
// StreamEvent is the single wire type for every event the orchestrator
// emits while generating a turn. The Type field selects which payload
// fields are meaningful:
//
//   - start: no payload
//   - text-start / text-end: BlockID
//   - text-delta: BlockID, Delta
//   - reasoning-start / reasoning-end: BlockID
//   - reasoning-delta: BlockID, Delta
//   - tool-call: BlockID (call ID), ToolName, Args
//   - tool-result: BlockID (call ID), ToolName, Result
//   - finish: SessionID
//   - error: ErrorKind, Error
//
// The envelope fields (ID, CreatedAt, Hash, PrevHash) are populated by
// the stream writer at emission time: each event carries a SHA-256 hash
// over its own fields plus the hash of the previous event, forming a
// verifiable chain per stream.
//
// # Security References
//
//   - SEC-005: Error messages are sanitized before entering Error
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	BlockID   string          `json:"block_id,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    string          `json:"result,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`

	// Envelope fields, populated by the stream writer.
	ID        string `json:"id,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Hash      string `json:"hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
}

// NewStreamEvent creates a stream event of the given type.
//
// The envelope fields are left empty; the stream writer fills them when
// the event is emitted.
func NewStreamEvent(eventType StreamEventType) *StreamEvent {
	return &StreamEvent{Type: eventType}
}

// WithBlockID sets the text/reasoning block or tool call ID.
func (e *StreamEvent) WithBlockID(id string) *StreamEvent {
	e.BlockID = id
	return e
}

// WithDelta sets the incremental content payload.
func (e *StreamEvent) WithDelta(delta string) *StreamEvent {
	e.Delta = delta
	return e
}

// WithTool sets the tool name and raw JSON arguments.
func (e *StreamEvent) WithTool(name string, args json.RawMessage) *StreamEvent {
	e.ToolName = name
	e.Args = args
	return e
}

// WithResult sets the tool result payload.
func (e *StreamEvent) WithResult(result string) *StreamEvent {
	e.Result = result
	return e
}

// WithSessionID sets the session ID echoed on finish events.
func (e *StreamEvent) WithSessionID(sessionID string) *StreamEvent {
	e.SessionID = sessionID
	return e
}

// WithError sets the error kind and sanitized message.
func (e *StreamEvent) WithError(kind, message string) *StreamEvent {
	e.ErrorKind = kind
	e.Error = message
	return e
}

// generateUUID returns a new UUID v4 string.
func generateUUID() string {
	return uuid.New().String()
}
