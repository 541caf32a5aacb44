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
// This file contains the request type for the streaming portfolio chat
// endpoint. For the stream wire protocol, see stream.go. For holdings
// types, see holdings.go.
package datatypes

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Per SEC-003: Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	// Per SEC-004: Unbounded message history mitigation.
	MaxMessagesPerRequest = 100

	// MaxUploadBytes is the maximum size of an uploaded holdings file.
	// Per SEC-003: applies to both the multipart part and the base64 field.
	MaxUploadBytes = 10 * 1024 * 1024 // 10MB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size (SEC-003)
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxMessageContentBytes.
//
// # Description
//
// Custom validator to enforce SEC-003 message size limits. Checks byte length
// (not rune count) to prevent memory exhaustion attacks with large payloads.
//
// # Inputs
//
//   - fl: Validator field level containing the string to validate
//
// # Outputs
//
//   - bool: true if content <= 32KB, false otherwise
//
// # Security References
//
//   - SEC-003: Unbounded message input (security_architecture_review.md)
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Streaming Chat Request Types
// =============================================================================

// ChatStreamRequest represents a streaming portfolio chat request body.
//
// # Description
//
// ChatStreamRequest contains the conversation along with optional
// attachments for the POST /v1/chat/stream endpoint. Attachments come in
// two flavors: a holdings file (CSV or XLSX, uploaded as a multipart file
// part or as the base64 FileBase64 field) and an image (a URL or data
// URL merged into the final user turn). Every request includes a unique
// ID and timestamp for audit trails.
//
// # Fields
//
//   - RequestID: Optional. Unique identifier for this request (UUID v4).
//     Generated server-side when absent. Used for tracing and the
//     session ID echoed by the finish event.
//   - Timestamp: Optional. Unix timestamp in milliseconds (UTC) when the
//     request was created. Generated server-side when absent.
//   - Messages: Required. Conversation history with 1-100 messages.
//     Content is limited to 32KB per message (SEC-003 compliance).
//   - Image: Optional. Image URL or data URL to attach to the final
//     user turn.
//   - FileName: Optional. Name of the uploaded holdings file. Required
//     when FileBase64 or a multipart file part is present.
//   - FileBase64: Optional. Base64-encoded holdings file content for
//     clients that cannot send multipart bodies.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: optional, must be valid UUID v4 when present
//   - Messages: required, 1-100 elements, each element validated
//   - Messages[].Content: max 32768 bytes (32KB) per SEC-003
//
// # Limitations
//
//   - Uploaded files are capped at 10MB (larger payloads rejected)
//   - Maximum 100 messages per request (history truncation may be needed)
//
// # Security References
//
//   - SEC-003: Message size limits (security_architecture_review.md)
//   - SEC-005: Error message sanitization (security_architecture_review.md)
type ChatStreamRequest struct {
	RequestID  string    `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp  int64     `json:"timestamp" validate:"gte=0"`
	Messages   []Message `json:"messages" validate:"required,min=1,max=100,dive"`
	Image      string    `json:"image,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileBase64 string    `json:"file_base64,omitempty"`

	// FileData holds the decoded upload. Populated by the handler from
	// either the multipart file part or FileBase64, never by binding.
	FileData []byte `json:"-"`
}

// Validate validates the ChatStreamRequest fields.
//
// # Description
//
// Performs validation using go-playground/validator tags plus the
// structural checks tags cannot express: a file payload without a name,
// and uploads over the 10MB cap. This method should be called after
// binding and after DecodeFile.
//
// # Outputs
//
//   - error: Non-nil if validation failed, with details about which field
func (r *ChatStreamRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if len(r.FileData) > 0 && r.FileName == "" {
		return fmt.Errorf("file_name is required when a file is uploaded")
	}
	if len(r.FileData) > MaxUploadBytes {
		return fmt.Errorf("uploaded file exceeds %d bytes", MaxUploadBytes)
	}
	return nil
}

// EnsureDefaults populates default values for optional fields.
//
// # Description
//
// Generates RequestID and Timestamp if not provided by the client.
// This ensures all requests have proper identifiers for tracing and auditing.
func (r *ChatStreamRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// DecodeFile decodes FileBase64 into FileData.
//
// A no-op when FileData was already populated from a multipart part or
// when no base64 payload was sent.
func (r *ChatStreamRequest) DecodeFile() error {
	if len(r.FileData) > 0 || r.FileBase64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(r.FileBase64)
	if err != nil {
		return fmt.Errorf("file_base64 is not valid base64: %w", err)
	}
	r.FileData = data
	return nil
}
