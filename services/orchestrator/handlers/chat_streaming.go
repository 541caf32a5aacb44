// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// =============================================================================
// STREAMING CHAT MODULE
// =============================================================================
//
// This module implements the portfolio chat pipeline over SSE. One request
// flows through five stages:
//
//  1. Bind      - JSON or multipart body into ChatStreamRequest
//  2. Moderate  - latest user text through the moderation gate
//  3. Normalize - uploaded CSV/XLSX into canonical holdings
//  4. Enrich    - best-effort web and quote context for holdings
//  5. Stream    - bounded tool-call loop against the LLM
//
// The WebSocket transport (websocket.go) reuses stages 2-5 through the
// StreamWriter interface; only the bind and transport setup differ.
//
// =============================================================================

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/folio/services/llm"
	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
	"github.com/AleutianAI/folio/services/orchestrator/observability"
	"github.com/AleutianAI/folio/services/orchestrator/portfolio"
	"github.com/AleutianAI/folio/services/orchestrator/services"
	"github.com/AleutianAI/folio/services/orchestrator/tools"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second

	// maxToolSteps bounds the tool-call loop. A model that keeps asking
	// for tools past this many steps is cut off and the turn ends with
	// whatever text it produced.
	maxToolSteps = 10

	// defaultRequestTimeout bounds one full streaming turn, tool calls
	// included. Override with REQUEST_TIMEOUT_SECONDS.
	defaultRequestTimeout = 30 * time.Second

	// defaultReasoningEffort keeps reasoning streams short; portfolio
	// answers rarely benefit from deep deliberation.
	defaultReasoningEffort = "low"

	// clientSafeError is the only error detail ever sent to the client
	// for model and internal failures. Real causes go to logs.
	clientSafeError = "An error occurred while processing your request"
)

// =============================================================================
// Interface Definition
// =============================================================================

// StreamingChatHandler defines the contract for handling streaming chat HTTP requests.
//
// # Description
//
// StreamingChatHandler abstracts the streaming chat endpoint, enabling
// different implementations and facilitating testing via mocks. The
// interface provides a Server-Sent Events (SSE) endpoint and a WebSocket
// endpoint over the same pipeline.
//
// # Security Model
//
// - Outbound (user -> model): Blocked if the moderation gate flags it
// - Inbound (model -> user): Allowed, logged for audit via hash chain
// - Uploaded files: Size-capped, parsed in-memory, never written to disk
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// HTTP handlers are called concurrently by the Gin framework.
//
// # Limitations
//
//   - Requires LLM client that supports streaming (ChatStream method)
//   - Client must support SSE (EventSource or similar) or WebSocket
//
// # Assumptions
//
//   - All dependencies are properly initialized before handler use
//   - Gin context is valid and not nil
type StreamingChatHandler interface {
	// HandleChatStream processes portfolio chat requests with SSE streaming.
	//
	// # Description
	//
	// Handles POST /v1/chat/stream requests. Accepts JSON or multipart
	// bodies, runs the full pipeline, and streams the model turn as
	// typed SSE events.
	//
	// # Inputs
	//
	//   - c: Gin context containing the HTTP request.
	//
	// # Outputs
	//
	// SSE stream with events:
	//   - start: Stream opened
	//   - text-start/text-delta/text-end: Visible answer blocks
	//   - reasoning-start/reasoning-delta/reasoning-end: Reasoning blocks
	//   - tool-call/tool-result: Tool loop activity
	//   - finish: Stream completion with session ID
	//   - error: Error events (if failure occurs)
	//
	// # Limitations
	//
	//   - Errors after streaming starts are events, not HTTP statuses
	//
	// # Assumptions
	//
	//   - Client supports SSE
	HandleChatStream(c *gin.Context)

	// HandleChatWS processes portfolio chat requests over WebSocket.
	// See websocket.go.
	HandleChatWS(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// streamingChatHandler implements StreamingChatHandler for production use.
//
// # Description
//
// streamingChatHandler coordinates between the HTTP layer and the chat
// pipeline. It performs HTTP-related tasks and delegates the rest to
// injected services:
//   - Request parsing and validation
//   - SSE header configuration
//   - Stream event emission
//   - Error handling and cleanup
//
// # Fields
//
//   - llmClient: LLM client with streaming support (must implement ChatStream)
//   - moderator: Moderation gate for the latest user message
//   - enricher: Best-effort web/quote context fetcher (may be nil)
//   - registry: Tool registry for the streaming tool loop (may be nil)
//   - tracer: OpenTelemetry tracer for distributed tracing
//   - requestTimeout: Wall-clock bound for one full streaming turn
//
// # Thread Safety
//
// Thread-safe. All fields are read-only after construction.
// No shared mutable state between requests.
//
// # Assumptions
//
//   - Dependencies are non-nil unless documented otherwise
type streamingChatHandler struct {
	llmClient      llm.LLMClient
	moderator      *services.ModerationService
	enricher       *services.EnrichmentService
	registry       *tools.Registry
	tracer         trace.Tracer
	requestTimeout time.Duration
}

// =============================================================================
// Constructor
// =============================================================================

// NewStreamingChatHandler creates a StreamingChatHandler with the provided dependencies.
//
// # Description
//
// Creates a fully configured streamingChatHandler for production use.
// Panics if llmClient or moderator is nil (programming errors). The
// enricher and registry may be nil: a nil enricher skips holdings
// enrichment, a nil registry runs the model without tools.
//
// # Inputs
//
//   - llmClient: LLM client with streaming support. Must not be nil.
//   - moderator: Moderation gate. Must not be nil.
//   - enricher: Enrichment fetcher. May be nil.
//   - registry: Tool registry. May be nil.
//
// # Outputs
//
//   - StreamingChatHandler: Ready for use with Gin router
//
// # Examples
//
//	handler := handlers.NewStreamingChatHandler(llmClient, moderator, enricher, registry)
//	router.POST("/v1/chat/stream", handler.HandleChatStream)
//	router.GET("/v1/chat/ws", handler.HandleChatWS)
func NewStreamingChatHandler(
	llmClient llm.LLMClient,
	moderator *services.ModerationService,
	enricher *services.EnrichmentService,
	registry *tools.Registry,
) StreamingChatHandler {
	if llmClient == nil {
		panic("NewStreamingChatHandler: llmClient must not be nil")
	}
	if moderator == nil {
		panic("NewStreamingChatHandler: moderator must not be nil")
	}

	timeout := defaultRequestTimeout
	if raw := os.Getenv("REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			slog.Warn("Invalid REQUEST_TIMEOUT_SECONDS, using default",
				"value", raw,
				"default", defaultRequestTimeout,
			)
		}
	}

	return &streamingChatHandler{
		llmClient:      llmClient,
		moderator:      moderator,
		enricher:       enricher,
		registry:       registry,
		tracer:         otel.Tracer("folio.orchestrator.handlers.chat_streaming"),
		requestTimeout: timeout,
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleChatStream processes portfolio chat requests with SSE streaming.
//
// # Description
//
// Handles POST /v1/chat/stream requests. The flow is:
//  1. Bind request body (JSON or multipart with a file part)
//  2. Validate and apply defaults
//  3. Set SSE headers, create writer, emit start event
//  4. Run the latest user message through the moderation gate
//  5. Parse an uploaded file into holdings and fetch enrichment
//  6. Assemble the model-facing conversation
//  7. Run the bounded tool loop, streaming deltas as they arrive
//  8. Emit finish event with the request ID
//
// # Security
//
// - Moderation-flagged requests get a fixed denial text, never the model
// - Model and internal error details are never forwarded to the client
//
// # Inputs
//
//   - c: Gin context containing the HTTP request
//
// Request Body (datatypes.ChatStreamRequest), or multipart form with
// fields "messages" (JSON array), "image", "file_name" and a "file" part:
//   - request_id: Optional. UUID v4 identifier, generated when absent.
//   - timestamp: Optional. Unix milliseconds, generated when absent.
//   - messages: Required. Array of message objects (1-100).
//   - image: Optional. Data URL or https URL merged into the last user turn.
//   - file_name: Required when a file is sent.
//   - file_base64: Optional. Base64 upload for JSON bodies.
//
// # Outputs
//
// SSE Events:
//
//	event: start
//	data: {"type":"start","id":"...","created_at":...}
//
//	event: text-delta
//	data: {"type":"text-delta","block_id":"text-1","delta":"Hello"}
//
//	event: finish
//	data: {"type":"finish","session_id":"..."}
//
// HTTP Status (before streaming starts):
//   - 400 Bad Request: Invalid request body or validation failure
//   - 500 Internal Server Error: SSE setup failure
//
// # Limitations
//
//   - Only the latest user message goes through moderation (not history)
//   - Errors during streaming are sent as events, not HTTP errors
//
// # Assumptions
//
//   - LLM client supports ChatStream method
//   - Client supports SSE
//
// # Security References
//
//   - SEC-003: Message size limits enforced via validation
//   - SEC-005: Internal errors not exposed to client
func (h *streamingChatHandler) HandleChatStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	// Track active stream (for metrics)
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		// Record final metrics
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Bind request body
	req, err := bindChatStreamRequest(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse streaming chat request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Step 2: Defaults and validation
	req.EnsureDefaults()
	if err := req.DecodeFile(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid file payload")
		slog.Error("Failed to decode file payload",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file payload"})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Streaming request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("request.message_count", len(req.Messages)),
		attribute.Bool("request.has_file", len(req.FileData) > 0),
		attribute.Bool("request.has_image", req.Image != ""),
	)

	// Step 3: Set SSE headers and create writer
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create SSE writer",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Everything past this point streams; bound it all with one deadline.
	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	success = h.runPipeline(ctx, span, writer, req, endpoint, startTime)
}

// runPipeline executes stages 2-5 of the chat pipeline against any
// StreamWriter. Shared by the SSE and WebSocket transports.
//
// # Description
//
// Emits the start event, runs moderation, file normalization,
// enrichment, conversation assembly, and the bounded tool loop. All
// failures after the start event are emitted as error events; this
// function never writes HTTP statuses.
//
// # Inputs
//
//   - ctx: Deadline-bound request context.
//   - span: Open span for the transport handler.
//   - writer: Transport-specific stream writer.
//   - req: Bound and validated request.
//   - endpoint: Metrics endpoint label.
//   - startTime: Transport handler start, for time-to-first-token.
//
// # Outputs
//
//   - bool: True if the turn completed (including moderation denials,
//     which are a successful outcome of the gate).
func (h *streamingChatHandler) runPipeline(
	ctx context.Context,
	span trace.Span,
	writer StreamWriter,
	req *datatypes.ChatStreamRequest,
	endpoint observability.Endpoint,
	startTime time.Time,
) bool {
	// Emit start event
	if err := writer.WriteStart(); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write start event",
			"error", err,
			"requestId", req.RequestID,
		)
		return false
	}

	// Moderation gate on the latest user message.
	// Fail-closed: a gate failure ends the stream with an error event.
	verdict, err := h.moderator.Check(ctx, datatypes.LatestUserText(req.Messages))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "moderation gate failed")
		slog.Error("Moderation gate failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeModeration)
		}
		_ = writer.WriteError(datatypes.ErrorKindModeration, "Message moderation is unavailable")
		return false
	}
	if verdict.Flagged {
		span.SetAttributes(attribute.Bool("moderation.flagged", true))
		slog.Warn("Blocked streaming chat: moderation flagged message",
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordModerationDenial(endpoint)
		}
		h.writeDenial(writer, req.RequestID, verdict.DenialMessage)
		span.SetStatus(codes.Ok, "denied by moderation gate")
		return true
	}

	// Start heartbeat goroutine to prevent connection timeouts
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go h.runHeartbeat(ctx, writer, endpoint, heartbeatDone)

	// Normalize an uploaded file into holdings. Parse failures degrade
	// to an unparsed artifact; the assembler renders the fallback note.
	var artifact *services.FileArtifact
	if len(req.FileData) > 0 {
		artifact = &services.FileArtifact{Name: req.FileName}
		rows, parseErr := portfolio.ReadRows(req.FileName, req.FileData)
		if parseErr != nil {
			slog.Warn("Uploaded file could not be parsed",
				"error", parseErr,
				"requestId", req.RequestID,
				"fileName", req.FileName,
			)
		} else {
			artifact.Holdings = portfolio.Normalize(rows)
		}
		span.SetAttributes(attribute.Int("file.holdings_count", len(artifact.Holdings)))
	}

	// Best-effort enrichment for extracted holdings
	var enrichment services.EnrichmentResult
	if h.enricher != nil && artifact.Parsed() {
		enrichment = h.enricher.Fetch(ctx, portfolio.Tickers(artifact.Holdings))
	}

	// Assemble the model-facing conversation
	messages := make([]datatypes.Message, 0, len(req.Messages)+4)
	messages = append(messages, datatypes.TextMessage(
		datatypes.RoleSystem, services.BuildSystemPrompt(time.Now())))
	messages = append(messages, services.AssembleConversation(
		req.Messages, req.Image, artifact, enrichment)...)

	// Run the bounded tool loop
	firstTokenTime := time.Time{}
	tokenCount, streamErr := h.runToolLoop(ctx, writer, messages, req.RequestID, &firstTokenTime)

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetAttributes(attribute.Int("stream.token_count", tokenCount))

		switch {
		case errors.Is(streamErr, context.Canceled):
			// Client went away; nothing left to write to.
			span.SetStatus(codes.Error, "client disconnected")
			slog.Info("Client disconnected during stream",
				"requestId", req.RequestID,
				"tokenCount", tokenCount,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
		case errors.Is(streamErr, context.DeadlineExceeded):
			span.SetStatus(codes.Error, "stream timed out")
			slog.Error("Streaming turn timed out",
				"requestId", req.RequestID,
				"timeout", h.requestTimeout,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeTimeout)
			}
			_ = writer.WriteError(datatypes.ErrorKindTimeout, "The request timed out")
		default:
			span.SetStatus(codes.Error, "LLM streaming failed")
			slog.Error("LLM streaming failed",
				"error", streamErr,
				"requestId", req.RequestID,
				"tokenCount", tokenCount,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeLLMError)
			}
			_ = writer.WriteError(datatypes.ErrorKindModel, clientSafeError)
		}
		return false
	}

	// Record time to first token
	if !firstTokenTime.IsZero() {
		ttft := firstTokenTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(endpoint, ttft)
		}
	}
	span.SetAttributes(attribute.Int("stream.token_count", tokenCount))

	// Emit finish event
	if err := writer.WriteFinish(req.RequestID); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write finish event",
			"error", err,
			"requestId", req.RequestID,
		)
		return false
	}

	span.SetStatus(codes.Ok, "stream completed successfully")
	return true
}

// writeDenial emits the fixed moderation denial as a complete text block
// followed by finish. The client sees exactly:
// start, text-start, text-delta, text-end, finish.
func (h *streamingChatHandler) writeDenial(writer StreamWriter, requestID, denial string) {
	if err := writer.WriteTextStart(datatypes.DenialBlockID); err != nil {
		return
	}
	if err := writer.WriteTextDelta(datatypes.DenialBlockID, denial); err != nil {
		return
	}
	if err := writer.WriteTextEnd(datatypes.DenialBlockID); err != nil {
		return
	}
	_ = writer.WriteFinish(requestID)
}

// =============================================================================
// Tool Loop
// =============================================================================

// runToolLoop drives up to maxToolSteps model steps, executing requested
// tools serially between steps.
//
// # Description
//
// Each step streams the model's text and reasoning deltas through the
// writer inside numbered blocks ("text-1", "reasoning-1", ...). When the
// model requests tool calls, the loop appends the assistant turn,
// executes each call in order, appends the tool results, and runs the
// next step. A step with no tool calls ends the loop. Tool execution
// failures are fed back to the model as the tool result text rather
// than ending the turn.
//
// # Inputs
//
//   - ctx: Deadline-bound request context.
//   - writer: Stream writer for delta events.
//   - messages: Assembled conversation including the system prompt.
//   - requestID: For logging.
//   - firstTokenTime: Set once on the first visible delta.
//
// # Outputs
//
//   - int: Number of deltas delivered to the client.
//   - error: Non-nil if a model step failed or the writer aborted.
//
// # Limitations
//
//   - Parallel tool calls are disabled; calls run strictly in order.
//
// # Assumptions
//
//   - The registry rejects unknown tool names with an error.
func (h *streamingChatHandler) runToolLoop(
	ctx context.Context,
	writer StreamWriter,
	messages []datatypes.Message,
	requestID string,
	firstTokenTime *time.Time,
) (int, error) {
	params := llm.GenerationParams{
		DisableParallelToolCalls: true,
		ReasoningEffort:          defaultReasoningEffort,
	}
	if h.registry != nil && h.registry.Len() > 0 {
		params.Tools = h.registry.Definitions()
	}

	tokenCount := 0

	for step := 1; step <= maxToolSteps; step++ {
		textBlockID := fmt.Sprintf("text-%d", step)
		reasoningBlockID := fmt.Sprintf("reasoning-%d", step)
		textOpen := false
		reasoningOpen := false

		callback := func(event llm.StreamEvent) error {
			switch event.Type {
			case llm.StreamEventToken:
				if !textOpen {
					if err := writer.WriteTextStart(textBlockID); err != nil {
						return err
					}
					textOpen = true
				}
				if firstTokenTime.IsZero() {
					*firstTokenTime = time.Now()
				}
				tokenCount++
				return writer.WriteTextDelta(textBlockID, event.Content)
			case llm.StreamEventThinking:
				if !reasoningOpen {
					if err := writer.WriteReasoningStart(reasoningBlockID); err != nil {
						return err
					}
					reasoningOpen = true
				}
				tokenCount++
				return writer.WriteReasoningDelta(reasoningBlockID, event.Content)
			default:
				return nil
			}
		}

		result, err := h.llmClient.ChatStream(ctx, messages, params, callback)

		// Close any open blocks before deciding what comes next
		if reasoningOpen {
			if wErr := writer.WriteReasoningEnd(reasoningBlockID); wErr != nil && err == nil {
				err = wErr
			}
		}
		if textOpen {
			if wErr := writer.WriteTextEnd(textBlockID); wErr != nil && err == nil {
				err = wErr
			}
		}
		if err != nil {
			return tokenCount, err
		}

		if len(result.ToolCalls) == 0 {
			return tokenCount, nil
		}

		// Append the assistant turn that requested the tools, then run
		// each call in order and append its result.
		assistantCalls := make([]datatypes.ToolCall, 0, len(result.ToolCalls))
		for _, call := range result.ToolCalls {
			assistantCalls = append(assistantCalls, datatypes.ToolCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			})
		}
		messages = append(messages, datatypes.Message{
			Role:      datatypes.RoleAssistant,
			Content:   result.Content,
			ToolCalls: assistantCalls,
		})

		for _, call := range result.ToolCalls {
			if err := writer.WriteToolCall(call.ID, call.Name, json.RawMessage(call.Args)); err != nil {
				return tokenCount, err
			}

			toolResult, toolErr := h.callTool(ctx, call.Name, call.Args)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordToolCall(call.Name, toolErr == nil)
			}
			if toolErr != nil {
				// Feed the failure back to the model; it can recover or
				// answer without the tool.
				slog.Warn("Tool call failed",
					"error", toolErr,
					"requestId", requestID,
					"tool", call.Name,
				)
				toolResult = fmt.Sprintf("Error: %v", toolErr)
			}

			if err := writer.WriteToolResult(call.ID, call.Name, toolResult); err != nil {
				return tokenCount, err
			}

			messages = append(messages, datatypes.Message{
				Role:       datatypes.RoleTool,
				Content:    toolResult,
				ToolCallID: call.ID,
			})
		}
	}

	slog.Warn("Tool loop reached step cap, ending turn",
		"requestId", requestID,
		"maxSteps", maxToolSteps,
	)
	return tokenCount, nil
}

// callTool dispatches one tool invocation through the registry.
func (h *streamingChatHandler) callTool(ctx context.Context, name, args string) (string, error) {
	if h.registry == nil {
		return "", fmt.Errorf("no tools are configured")
	}
	return h.registry.Call(ctx, name, json.RawMessage(args))
}

// =============================================================================
// Helpers
// =============================================================================

// bindChatStreamRequest parses the request body into a ChatStreamRequest.
//
// # Description
//
// JSON bodies bind directly. Multipart bodies carry the message history
// as a JSON array in the "messages" form field, plus optional "image"
// and "file_name" fields and a "file" part whose bytes populate
// FileData. When a multipart file part is present, its filename is used
// unless the form overrides it.
//
// # Inputs
//
//   - c: Gin context with an unread request body.
//
// # Outputs
//
//   - *datatypes.ChatStreamRequest: The bound request.
//   - error: Non-nil if the body could not be parsed.
func bindChatStreamRequest(c *gin.Context) (*datatypes.ChatStreamRequest, error) {
	var req datatypes.ChatStreamRequest

	contentType := c.ContentType()
	if contentType != "multipart/form-data" {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	rawMessages := c.PostForm("messages")
	if rawMessages == "" {
		return nil, fmt.Errorf("multipart request missing messages field")
	}
	if err := json.Unmarshal([]byte(rawMessages), &req.Messages); err != nil {
		return nil, fmt.Errorf("messages field is not a valid JSON array: %w", err)
	}
	req.RequestID = c.PostForm("request_id")
	req.Image = c.PostForm("image")
	req.FileName = c.PostForm("file_name")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return &req, nil
		}
		return nil, err
	}
	if req.FileName == "" {
		req.FileName = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// +1 so oversized uploads fail validation instead of silently truncating
	data, err := io.ReadAll(io.LimitReader(file, datatypes.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	req.FileData = data

	return &req, nil
}

// runHeartbeat sends keepalive pings until the stream ends.
//
// # Description
//
// Sends SSE comment pings at heartbeatInterval to keep intermediary
// connections (load balancers, proxies) from timing out during slow
// model steps. Stops on done close or context cancellation. Write
// failures stop the loop silently; the main stream path surfaces the
// broken connection.
func (h *streamingChatHandler) runHeartbeat(
	ctx context.Context,
	writer StreamWriter,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}
