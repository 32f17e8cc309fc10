// ABOUTME: HTTP server implementing the SSE push channel and inbound message routing.
// ABOUTME: POST responses report delivery only; results travel back over the SSE stream.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stepfn/tutor-gateway/internal/approval"
	"github.com/stepfn/tutor-gateway/internal/session"
	"github.com/stepfn/tutor-gateway/internal/tools"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// sessionEventBuffer is the per-session queue of outbound events.
const sessionEventBuffer = 16

// protocolVersion is advertised in initialize responses.
const protocolVersion = "2024-11-05"

// StatusCounter exposes invocation counters for the health endpoint.
type StatusCounter interface {
	StatusCounts() (map[string]int, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Tools     *tools.Registry
	Sessions  *session.Registry
	Approvals *approval.Gateway
	Logger    *slog.Logger

	// MessagesPath is the inbound endpoint advertised in the endpoint event.
	MessagesPath string

	ServerName    string
	ServerVersion string

	// Counter is optional; when set, /health includes invocation counters.
	Counter StatusCounter
}

// Server implements the SSE transport endpoints and the message router.
type Server struct {
	tools     *tools.Registry
	sessions  *session.Registry
	approvals *approval.Gateway
	logger    *slog.Logger

	messagesPath  string
	serverName    string
	serverVersion string
	counter       StatusCounter
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.Approvals == nil {
		return nil, errors.New("approval gateway is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	messagesPath := cfg.MessagesPath
	if messagesPath == "" {
		messagesPath = "/messages"
	}

	name := cfg.ServerName
	if name == "" {
		name = "tutor-gateway"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	return &Server{
		tools:         cfg.Tools,
		sessions:      cfg.Sessions,
		approvals:     cfg.Approvals,
		logger:        logger.With("component", "mcp-server"),
		messagesPath:  messagesPath,
		serverName:    name,
		serverVersion: version,
		counter:       cfg.Counter,
	}, nil
}

// RegisterRoutes registers the transport and diagnostics endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/sse", s.withCORS(http.HandlerFunc(s.handleSSE)))
	mux.Handle(s.messagesPath, s.withCORS(http.HandlerFunc(s.handleMessages)))
	mux.Handle("/health", s.withCORS(http.HandlerFunc(s.handleHealth)))
	mux.Handle("/debug/tools", s.withCORS(http.HandlerFunc(s.handleDebugTools)))
}

// withCORS applies the permissive CORS policy the transport callers expect.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleSSE opens the push channel. The first event tells the caller where
// to POST; the handler then blocks, draining the session queue onto the
// wire until either side disconnects.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	key := r.Header.Get("X-Session-Key")
	if key == "" {
		key = uuid.New().String()
	}

	sess := session.New(key, sessionEventBuffer)
	sess.OnDisconnect(func() {
		s.sessions.Evict(sess)
	})
	s.sessions.Register(sess)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("%s?sessionId=%s", s.messagesPath, url.QueryEscape(key))
	s.writeSSEEvent(w, flusher, "endpoint", endpoint)

	s.logger.Info("SSE connection established", "session_key", key)

	for {
		select {
		case ev := <-sess.Events():
			s.writeSSEEvent(w, flusher, ev.Name, ev.Data)
		case <-sess.Done():
			s.logger.Info("SSE connection closed", "session_key", key)
			return
		case <-r.Context().Done():
			sess.Close()
			s.logger.Info("SSE client disconnected", "session_key", key)
			return
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}

// handleMessages accepts inbound JSON-RPC and reports delivery only. The
// routed message's outcome travels back over the resolved session.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("sessionId")
	if key == "" {
		key = r.Header.Get("X-Session-Key")
	}

	sess, err := s.sessions.ResolveForDispatch(key)
	if err != nil {
		s.logger.Warn("message with no deliverable session", "session_key", key)
		s.sendJSON(w, http.StatusFailedDependency, map[string]any{
			"error":            "NoActiveSession",
			"activeTransports": s.sessions.Count(),
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to read request body",
		})
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "MalformedRequest",
			"message": "request body too large",
		})
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "MalformedRequest",
			"message": "invalid JSON",
		})
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "MalformedRequest",
			"message": "invalid JSON-RPC version",
		})
		return
	}

	s.logger.Debug("message received",
		"method", req.Method,
		"session_key", sess.Key(),
		"is_notification", req.IsNotification())

	// The POST connection is about to be released; routed work must not be
	// tied to its cancellation.
	s.dispatch(context.WithoutCancel(r.Context()), sess, req)

	s.sendJSON(w, http.StatusOK, map[string]any{"status": "delivered"})
}

// dispatch routes one decoded message. Responses and errors for requests
// carrying an id are pushed over the session, never the POST response.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, req JSONRPCRequest) {
	if req.IsNotification() {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted notification", "method", req.Method)
		} else {
			s.logger.Warn("notification for non-notification method", "method", req.Method)
		}
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(sess, req)
	case "ping":
		s.pushResult(sess, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(sess, req)
	case "tools/call":
		s.handleToolsCall(ctx, sess, req)
	default:
		s.pushError(sess, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// handleInitialize answers the MCP handshake over the push stream.
func (s *Server) handleInitialize(sess *session.Session, req JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.serverVersion,
		},
	}
	s.pushResult(sess, req.ID, result)
}

// handleToolsList pushes the tool catalog.
func (s *Server) handleToolsList(sess *session.Session, req JSONRPCRequest) {
	all := s.tools.List()
	result := MCPListToolsResult{
		Tools: make([]MCPToolInfo, len(all)),
	}
	for i, tool := range all {
		result.Tools[i] = MCPToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaJSON(tool),
		}
	}

	s.logger.Debug("tools/list", "count", len(all), "session_key", sess.Key())
	s.pushResult(sess, req.ID, result)
}

// handleToolsCall validates the call and hands it to the approval gateway.
func (s *Server) handleToolsCall(ctx context.Context, sess *session.Session, req JSONRPCRequest) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.pushError(sess, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.pushError(sess, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	tool, ok := s.tools.Get(params.Name)
	if !ok {
		s.pushError(sess, req.ID, JSONRPCInvalidParams, "tool not found", nil)
		return
	}

	args := map[string]any{}
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.pushError(sess, req.ID, JSONRPCInvalidParams, "arguments must be a JSON object", nil)
			return
		}
	}

	if err := tool.ValidateArguments(args); err != nil {
		var verr *tools.ValidationError
		var data any
		if errors.As(err, &verr) {
			data = verr.Issues
		}
		s.logger.Debug("tools/call rejected by schema",
			"tool", params.Name,
			"session_key", sess.Key())
		s.pushError(sess, req.ID, JSONRPCInvalidParams, "invalid arguments", data)
		return
	}

	correlationID := req.ID
	s.logger.Debug("tools/call",
		"tool", params.Name,
		"session_key", sess.Key(),
		"requires_approval", tool.RequiresApproval)

	go s.approvals.Submit(ctx, approval.Request{
		Tool:          tool,
		Arguments:     args,
		CorrelationID: correlationID,
		SessionKey:    sess.Key(),
		OnResult: func(result *tools.Result, err error) {
			s.deliverOutcome(sess, correlationID, params.Name, result, err)
		},
		OnApprovalRequired: func(approvalRequestID string) {
			s.pushNotification(sess, "notifications/approval_required", ApprovalRequiredParams{
				ApprovalRequestID: approvalRequestID,
				ToolName:          params.Name,
				Arguments:         args,
			})
		},
	})
}

// deliverOutcome pushes the terminal result of an invocation.
func (s *Server) deliverOutcome(sess *session.Session, id json.RawMessage, toolName string, result *tools.Result, err error) {
	if err != nil {
		if errors.Is(err, approval.ErrRejected) {
			s.pushError(sess, id, JSONRPCInvalidRequest, "tool invocation rejected", nil)
			return
		}
		s.logger.Warn("tool execution failed",
			"tool", toolName,
			"error", err)
		s.pushError(sess, id, JSONRPCInternalError, "tool execution failed", nil)
		return
	}

	out := MCPCallToolResult{
		Content: make([]MCPContent, len(result.Content)),
		IsError: result.IsError,
	}
	for i, c := range result.Content {
		out.Content[i] = MCPContent{Type: c.Type, Text: c.Text}
	}
	s.pushResult(sess, id, out)
}

// handleHealth reports transport and invocation state. Tool arguments and
// results never appear here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]any{
		"status":            "ok",
		"activeConnections": s.sessions.Count(),
		"sessionKeys":       s.sessions.Keys(),
		"server": map[string]any{
			"name":    s.serverName,
			"version": s.serverVersion,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.counter != nil {
		counts, err := s.counter.StatusCounts()
		if err != nil {
			s.logger.Warn("reading invocation counters", "error", err)
		} else {
			health["invocations"] = counts
		}
	}

	s.sendJSON(w, http.StatusOK, health)
}

// handleDebugTools lists the tool catalog for operators.
func (s *Server) handleDebugTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	all := s.tools.List()
	infos := make([]MCPToolInfo, len(all))
	for i, tool := range all {
		infos[i] = MCPToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaJSON(tool),
		}
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"tools": infos,
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.serverVersion,
		},
	})
}

// push helpers

func (s *Server) pushResult(sess *session.Session, id json.RawMessage, result any) {
	s.pushMessage(sess, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *Server) pushError(sess *session.Session, id json.RawMessage, code int, message string, data any) {
	s.pushMessage(sess, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *Server) pushNotification(sess *session.Session, method string, params any) {
	s.pushMessage(sess, JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// pushMessage queues a message on the session. A closed channel is logged
// and swallowed; the invocation already ran and there is nobody to tell.
func (s *Server) pushMessage(sess *session.Session, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshaling outbound message", "error", err)
		return
	}
	if err := sess.SendMessage(data); err != nil {
		s.logger.Warn("dropping message for closed session",
			"session_key", sess.Key(),
			"error", err)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

// schemaJSON renders a tool's input schema for the wire.
func schemaJSON(tool *tools.Tool) json.RawMessage {
	if tool.InputSchema == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
