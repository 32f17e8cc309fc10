// ABOUTME: Tests for the SSE transport endpoints and message router.
// ABOUTME: Uses httptest with testify; pushed outcomes are read off the session queue.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepfn/tutor-gateway/internal/approval"
	"github.com/stepfn/tutor-gateway/internal/session"
	"github.com/stepfn/tutor-gateway/internal/tools"
)

// pushed is the decoded form of any message queued on a session.
type pushed struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type testEnv struct {
	server    *Server
	mux       *http.ServeMux
	sessions  *session.Registry
	approvals *approval.Gateway
	registry  *tools.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := tools.NewRegistry(nil)
	require.NoError(t, registry.Register(tools.NewGetFibonacciTool()))
	require.NoError(t, registry.Register(tools.NewFibonacciSequenceTool()))

	require.NoError(t, registry.Register(&tools.Tool{
		Name:             "gated_echo",
		Description:      "echoes its input after approval",
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			text, _ := args["text"].(string)
			return tools.TextResult("echo: " + text), nil
		},
	}))

	sessions := session.NewRegistry(session.RegistryConfig{})
	approvals := approval.NewGateway(approval.GatewayConfig{})

	srv, err := NewServer(Config{
		Tools:     registry,
		Sessions:  sessions,
		Approvals: approvals,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	return &testEnv{
		server:    srv,
		mux:       mux,
		sessions:  sessions,
		approvals: approvals,
		registry:  registry,
	}
}

// connect registers a live session directly, standing in for an SSE caller.
func (e *testEnv) connect(t *testing.T, key string) *session.Session {
	t.Helper()
	sess := session.New(key, 16)
	sess.OnDisconnect(func() { e.sessions.Evict(sess) })
	e.sessions.Register(sess)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func (e *testEnv) post(t *testing.T, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// waitMessage reads the next pushed message off the session queue.
func waitMessage(t *testing.T, sess *session.Session) pushed {
	t.Helper()
	select {
	case ev := <-sess.Events():
		require.Equal(t, "message", ev.Name)
		var msg pushed
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed message")
		return pushed{}
	}
}

func TestSSEEndpointEvent(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.mux)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("X-Session-Key", "caller-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventName = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}

	assert.Equal(t, "endpoint", eventName)
	assert.Equal(t, "/messages?sessionId=caller-1", data)
	assert.Equal(t, 1, env.sessions.Count())
}

func TestMessagesNoActiveSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/messages?sessionId=nope", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	assert.Equal(t, http.StatusFailedDependency, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NoActiveSession", body["error"])
	assert.Equal(t, float64(0), body["activeTransports"])
}

func TestMessagesMalformed(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "caller-1")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, "/messages?sessionId=caller-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "MalformedRequest", body["error"])
		})
	}
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	rec := env.post(t, "/messages?sessionId=caller-1", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := waitMessage(t, sess)
	assert.Equal(t, "1", string(msg.ID))
	require.Nil(t, msg.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	assert.Contains(t, result, "serverInfo")
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	env.post(t, "/messages?sessionId=caller-1", `{"jsonrpc":"2.0","id":7,"method":"ping"}`)

	msg := waitMessage(t, sess)
	assert.Equal(t, "7", string(msg.ID))
	assert.Nil(t, msg.Error)
}

func TestToolsList(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	env.post(t, "/messages?sessionId=caller-1", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	msg := waitMessage(t, sess)
	require.Nil(t, msg.Error)

	var result MCPListToolsResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	require.Len(t, result.Tools, 3)
	assert.Equal(t, "getFibonacci", result.Tools[0].Name)
	assert.NotEmpty(t, result.Tools[0].InputSchema)
}

func TestToolsCallExempt(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	rec := env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"getFibonacci","arguments":{"n":10}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := waitMessage(t, sess)
	assert.Equal(t, "3", string(msg.ID))
	require.Nil(t, msg.Error)

	var result MCPCallToolResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "The 10th Fibonacci number is 55.", result.Content[0].Text)
}

func TestToolsCallUnknownTool(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	rec := env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"missing","arguments":{}}}`)
	// Delivery succeeded; the error is reported over the channel.
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := waitMessage(t, sess)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCInvalidParams, msg.Error.Code)
}

func TestToolsCallInvalidArguments(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	rec := env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"getFibonacci","arguments":{"n":-1,"extra":true}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := waitMessage(t, sess)
	assert.Equal(t, "5", string(msg.ID))
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCInvalidParams, msg.Error.Code)
	assert.Equal(t, "invalid arguments", msg.Error.Message)
	assert.NotNil(t, msg.Error.Data)
}

func TestToolsCallGatedApproved(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"gated_echo","arguments":{"text":"hi"}}}`)

	// First push is the approval request, not a result.
	notif := waitMessage(t, sess)
	assert.Equal(t, "notifications/approval_required", notif.Method)

	var params ApprovalRequiredParams
	require.NoError(t, json.Unmarshal(notif.Params, &params))
	assert.Equal(t, "gated_echo", params.ToolName)
	assert.NotEmpty(t, params.ApprovalRequestID)
	assert.Equal(t, "hi", params.Arguments["text"])

	require.NoError(t, env.approvals.Resolve(params.ApprovalRequestID, true))

	msg := waitMessage(t, sess)
	assert.Equal(t, "6", string(msg.ID))
	require.Nil(t, msg.Error)

	var result MCPCallToolResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, "echo: hi", result.Content[0].Text)
}

func TestToolsCallGatedRejected(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	var handlerRuns int
	var mu sync.Mutex
	require.NoError(t, env.registry.Register(&tools.Tool{
		Name:             "gated_counter",
		Description:      "counts executions",
		RequiresApproval: true,
		Handler: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			mu.Lock()
			handlerRuns++
			mu.Unlock()
			return tools.TextResult("ran"), nil
		},
	}))

	env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"gated_counter","arguments":{}}}`)

	notif := waitMessage(t, sess)
	var params ApprovalRequiredParams
	require.NoError(t, json.Unmarshal(notif.Params, &params))

	require.NoError(t, env.approvals.Resolve(params.ApprovalRequestID, false))

	msg := waitMessage(t, sess)
	assert.Equal(t, "8", string(msg.ID))
	require.NotNil(t, msg.Error)
	assert.Contains(t, msg.Error.Message, "rejected")

	mu.Lock()
	assert.Zero(t, handlerRuns, "handler must not run for a rejected invocation")
	mu.Unlock()
}

func TestFallbackToSoleSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	// No sessionId at all; the sole live session receives the outcome.
	rec := env.post(t, "/messages", `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	msg := waitMessage(t, sess)
	assert.Equal(t, "9", string(msg.ID))
}

func TestConcurrentCallsCorrelateByID(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":101,"method":"tools/call","params":{"name":"getFibonacci","arguments":{"n":10}}}`)
	env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","id":102,"method":"tools/call","params":{"name":"getFibonacci","arguments":{"n":12}}}`)

	byID := map[string]MCPCallToolResult{}
	for range 2 {
		msg := waitMessage(t, sess)
		require.Nil(t, msg.Error)
		var result MCPCallToolResult
		require.NoError(t, json.Unmarshal(msg.Result, &result))
		byID[string(msg.ID)] = result
	}

	require.Len(t, byID, 2)
	assert.Equal(t, "The 10th Fibonacci number is 55.", byID["101"].Content[0].Text)
	assert.Equal(t, "The 12th Fibonacci number is 144.", byID["102"].Content[0].Text)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	env.post(t, "/messages?sessionId=caller-1", `{"jsonrpc":"2.0","id":10,"method":"resources/list"}`)

	msg := waitMessage(t, sess)
	require.NotNil(t, msg.Error)
	assert.Equal(t, JSONRPCMethodNotFound, msg.Error.Code)
}

func TestNotificationAccepted(t *testing.T) {
	env := newTestEnv(t)
	sess := env.connect(t, "caller-1")

	rec := env.post(t, "/messages?sessionId=caller-1",
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Nothing is pushed back for a notification.
	select {
	case ev := <-sess.Events():
		t.Fatalf("unexpected pushed event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "caller-1")
	env.connect(t, "caller-2")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["activeConnections"])

	keys, ok := body["sessionKeys"].([]any)
	require.True(t, ok)
	assert.Len(t, keys, 2)
}

func TestDebugTools(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/tools", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []MCPToolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 3)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(body.Tools[0].InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestDispatchAfterReconnect(t *testing.T) {
	env := newTestEnv(t)

	old := env.connect(t, "caller-1")
	replacement := env.connect(t, "caller-1")

	assert.True(t, old.Closed(), "registering the same key must close the old session")

	env.post(t, "/messages?sessionId=caller-1", `{"jsonrpc":"2.0","id":11,"method":"ping"}`)

	msg := waitMessage(t, replacement)
	assert.Equal(t, "11", string(msg.ID))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/messages", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func ExampleServer_RegisterRoutes() {
	registry := tools.NewRegistry(nil)
	_ = registry.Register(tools.NewGetFibonacciTool())

	srv, _ := NewServer(Config{
		Tools:     registry,
		Sessions:  session.NewRegistry(session.RegistryConfig{}),
		Approvals: approval.NewGateway(approval.GatewayConfig{}),
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	fmt.Println("routes registered")
	// Output: routes registered
}
