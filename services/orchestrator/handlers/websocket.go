package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
	"github.com/AleutianAI/folio/services/orchestrator/observability"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 10MB Read Buffer (base64 file uploads arrive inline)
	ReadBufferSize: 10 * 1024 * 1024,
	// 10MB Write Buffer
	WriteBufferSize: 10 * 1024 * 1024,
}

// wsKeepAliveWriteTimeout bounds the ping control write so a dead peer
// can't wedge the heartbeat goroutine.
const wsKeepAliveWriteTimeout = 5 * time.Second

// wsWriter implements StreamWriter over a WebSocket connection.
//
// Events carry the same envelope and hash chain as the SSE transport
// (see computeEventHash); the only difference is framing. Each event is
// one JSON text message, keepalives are WebSocket ping control frames.
type wsWriter struct {
	conn     *websocket.Conn
	prevHash string
	mu       sync.Mutex
}

// NewWSWriter creates a StreamWriter over an upgraded connection.
func NewWSWriter(conn *websocket.Conn) StreamWriter {
	return &wsWriter{conn: conn}
}

func (w *wsWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	return w.conn.WriteJSON(event)
}

func (w *wsWriter) WriteStart() error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventStart))
}

func (w *wsWriter) WriteTextStart(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextStart).WithBlockID(blockID))
}

func (w *wsWriter) WriteTextDelta(blockID, delta string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextDelta).WithBlockID(blockID).WithDelta(delta))
}

func (w *wsWriter) WriteTextEnd(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventTextEnd).WithBlockID(blockID))
}

func (w *wsWriter) WriteReasoningStart(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningStart).WithBlockID(blockID))
}

func (w *wsWriter) WriteReasoningDelta(blockID, delta string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningDelta).WithBlockID(blockID).WithDelta(delta))
}

func (w *wsWriter) WriteReasoningEnd(blockID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventReasoningEnd).WithBlockID(blockID))
}

func (w *wsWriter) WriteToolCall(callID, name string, args json.RawMessage) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventToolCall).
		WithBlockID(callID).
		WithTool(name, args))
}

func (w *wsWriter) WriteToolResult(callID, name, result string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventToolResult).
		WithBlockID(callID).
		WithTool(name, nil).
		WithResult(result))
}

func (w *wsWriter) WriteFinish(sessionID string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventFinish).WithSessionID(sessionID))
}

func (w *wsWriter) WriteError(kind, message string) error {
	return w.WriteEvent(*datatypes.NewStreamEvent(datatypes.EventError).WithError(kind, message))
}

// WriteKeepAlive sends a WebSocket ping control frame. Pings don't
// enter the hash chain; they carry no content to audit.
func (w *wsWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsKeepAliveWriteTimeout))
}

var _ StreamWriter = (*wsWriter)(nil)

// HandleChatWS serves the chat pipeline over a persistent WebSocket.
//
// Each JSON message the client sends is one ChatStreamRequest and
// produces one full event stream (start through finish) on the same
// connection. File uploads arrive inline as file_base64. The connection
// stays open across turns until the client disconnects.
func (h *streamingChatHandler) HandleChatWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Websocket client connected")

	endpoint := observability.EndpointChatWS
	writer := NewWSWriter(ws)

	for {
		var req datatypes.ChatStreamRequest
		if err := ws.ReadJSON(&req); err != nil {
			slog.Info("Websocket client disconnected", "error", err.Error())
			return
		}

		h.runWSTurn(c.Request.Context(), writer, &req, endpoint)
	}
}

// runWSTurn runs one request through the shared pipeline with per-turn
// metrics and tracing. Validation failures become error events rather
// than closing the connection, so the client can correct and retry.
func (h *streamingChatHandler) runWSTurn(
	parent context.Context,
	writer StreamWriter,
	req *datatypes.ChatStreamRequest,
	endpoint observability.Endpoint,
) {
	startTime := time.Now()

	ctx, span := h.tracer.Start(parent, "HandleChatWS.turn")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	req.EnsureDefaults()
	if err := req.DecodeFile(); err != nil {
		slog.Error("Failed to decode websocket file payload",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		_ = writer.WriteError(datatypes.ErrorKindValidation, "invalid file payload")
		return
	}
	if err := req.Validate(); err != nil {
		slog.Error("Websocket request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		_ = writer.WriteError(datatypes.ErrorKindValidation, "invalid request: validation failed")
		return
	}

	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("request.message_count", len(req.Messages)),
	)

	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	success = h.runPipeline(ctx, span, writer, req, endpoint, startTime)
}
