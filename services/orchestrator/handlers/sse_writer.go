// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamWriter defines the contract for emitting stream protocol events
// to a client.
//
// # Description
//
// StreamWriter abstracts event serialization and transport, enabling
// testability and letting the chat pipeline run unchanged over SSE and
// WebSocket. Each event is automatically assigned:
//
//   - ID: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple
// goroutines: the heartbeat goroutine and the pipeline emit
// concurrently.
type StreamWriter interface {
	// WriteEvent emits a single event. ID, CreatedAt, Hash, and
	// PrevHash are populated here; callers fill only payload fields.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStart emits the stream-opening event.
	WriteStart() error

	// WriteTextStart opens a text block with the given ID.
	WriteTextStart(blockID string) error

	// WriteTextDelta emits an answer text chunk for an open block.
	WriteTextDelta(blockID, delta string) error

	// WriteTextEnd closes a text block.
	WriteTextEnd(blockID string) error

	// WriteReasoningStart opens a reasoning block with the given ID.
	WriteReasoningStart(blockID string) error

	// WriteReasoningDelta emits a reasoning chunk for an open block.
	WriteReasoningDelta(blockID, delta string) error

	// WriteReasoningEnd closes a reasoning block.
	WriteReasoningEnd(blockID string) error

	// WriteToolCall announces a tool invocation the model requested.
	WriteToolCall(callID, name string, args json.RawMessage) error

	// WriteToolResult delivers the outcome of a tool invocation.
	WriteToolResult(callID, name, result string) error

	// WriteFinish emits the terminal success event with the session ID
	// for multi-turn continuity. No events may follow it.
	WriteFinish(sessionID string) error

	// WriteError emits a terminal error event. The message must be
	// sanitized before it reaches this method (SEC-005).
	WriteError(kind, message string) error

	// WriteKeepAlive sends a transport-level liveness signal. For SSE
	// this is a comment line (": ping"); it does not enter the hash
	// chain because comments are not events.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements StreamWriter for HTTP SSE responses.
//
// # Description
//
// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events.
// Each event is written in the format:
//
//	event: {type}
//	data: {json}
//
// The writer maintains a hash chain for integrity verification:
//   - Each event's Hash is SHA-256 of its content
//   - Each event's PrevHash links to the previous event
//
// This provides chain of custody for content and timestamps.
//
// # Thread Safety
//
// Thread-safe via mutex. Hash chain integrity is maintained across
// concurrent writes.
//
// # Limitations
//
//   - Requires an http.Flusher-compatible ResponseWriter
//   - Cannot be reused across requests
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates a StreamWriter for the given ResponseWriter.
//
// # Description
//
// Creates an sseWriter that wraps the ResponseWriter. The caller must
// set appropriate SSE headers via SetSSEHeaders before creating the
// writer.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - StreamWriter: Ready to write events.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
func NewSSEWriter(w http.ResponseWriter) (StreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:   w,
		flusher:  flusher,
		prevHash: "",
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteEvent writes a single SSE event to the response.
//
// # Description
//
// Populates event metadata (ID, CreatedAt, Hash, PrevHash), serializes
// to JSON, and writes in SSE format. Flushes immediately after writing.
//
// # Inputs
//
//   - event: StreamEvent to write. ID, CreatedAt, Hash, PrevHash are auto-set.
//
// # Outputs
//
//   - error: Non-nil if JSON marshaling or writing failed.
//
// # Assumptions
//
//   - Connection is still open
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Populate metadata
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash

	// Compute hash of event content (before setting Hash field)
	event.Hash = computeEventHash(event)

	// Update chain for next event
	w.prevHash = event.Hash

	// Serialize to JSON
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Write SSE format: event: type\ndata: json\n\n
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash computes SHA-256 over the event's metadata and
// payload fields. Called before setting event.Hash. Shared with the
// WebSocket writer so both transports chain identically.
func computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		event.ID,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.BlockID,
		event.Delta,
		event.ToolName,
		event.Args,
		event.Result,
		event.SessionID,
		event.ErrorKind,
		event.Error,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// WriteStart emits the stream-opening event.
func (w *sseWriter) WriteStart() error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventStart))
}

// WriteTextStart opens a text block.
func (w *sseWriter) WriteTextStart(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextStart).
		WithBlockID(blockID))
}

// WriteTextDelta emits an answer text chunk.
//
// # Limitations
//
//   - Each call flushes immediately (no batching).
func (w *sseWriter) WriteTextDelta(blockID, delta string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextDelta).
		WithBlockID(blockID).
		WithDelta(delta))
}

// WriteTextEnd closes a text block.
func (w *sseWriter) WriteTextEnd(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextEnd).
		WithBlockID(blockID))
}

// WriteReasoningStart opens a reasoning block.
func (w *sseWriter) WriteReasoningStart(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningStart).
		WithBlockID(blockID))
}

// WriteReasoningDelta emits a reasoning chunk.
func (w *sseWriter) WriteReasoningDelta(blockID, delta string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningDelta).
		WithBlockID(blockID).
		WithDelta(delta))
}

// WriteReasoningEnd closes a reasoning block.
func (w *sseWriter) WriteReasoningEnd(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningEnd).
		WithBlockID(blockID))
}

// WriteToolCall announces a tool invocation.
func (w *sseWriter) WriteToolCall(callID, name string, args json.RawMessage) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventToolCall).
		WithBlockID(callID).
		WithTool(name, args))
}

// WriteToolResult delivers a tool outcome.
func (w *sseWriter) WriteToolResult(callID, name, result string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventToolResult).
		WithBlockID(callID).
		WithTool(name, nil).
		WithResult(result))
}

// WriteFinish writes the terminal success event with the session ID.
//
// # Limitations
//
//   - Should only be called once per stream.
func (w *sseWriter) WriteFinish(sessionID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventFinish).
		WithSessionID(sessionID))
}

// WriteError writes a terminal error event.
//
// # Security References
//
//   - SEC-005: Internal errors not exposed to client
func (w *sseWriter) WriteError(kind, message string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventError).
		WithError(kind, message))
}

// WriteKeepAlive sends a comment line to keep the connection alive.
//
// # Description
//
// Writes an SSE comment (": ping\n\n") to keep the TCP connection active
// during long operations. Comments are ignored by SSE clients but reset
// load balancer timeout counters (AWS ALB, Nginx default 60s).
//
// # Limitations
//
//   - Does not update the hash chain.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamWriter = (*sseWriter)(nil)
