// ABOUTME: Per-invocation approval state machine for gated tool execution.
// ABOUTME: Gated invocations suspend until an operator approves or rejects them.

package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepfn/tutor-gateway/internal/tools"
)

// Invocation statuses.
const (
	StatusPending          = "pending"
	StatusAwaitingApproval = "awaiting_approval"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
	StatusExecuting        = "executing"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
)

// ErrUnknownApprovalRequest is returned when a resolution names an approval
// request id that is not pending.
var ErrUnknownApprovalRequest = errors.New("unknown approval request")

// ErrRejected is delivered as the invocation outcome when the operator
// rejects a gated tool call.
var ErrRejected = errors.New("tool invocation rejected by operator")

// Recorder receives invocation status transitions for the audit log. It must
// never be handed arguments or results.
type Recorder interface {
	RecordTransition(invocationID, toolName, sessionKey, status string)
}

// Request is one tool invocation submitted to the gateway.
type Request struct {
	Tool          *tools.Tool
	Arguments     map[string]any
	CorrelationID json.RawMessage
	SessionKey    string

	// OnResult delivers the terminal outcome: the tool result, or an
	// execution/rejection error.
	OnResult func(result *tools.Result, err error)

	// OnApprovalRequired pushes the approval request to the caller in place
	// of a result. Only fired for gated tools.
	OnApprovalRequired func(approvalRequestID string)
}

// pendingInvocation is the continuation held while a gated call awaits its
// operator decision. Discarded at every terminal state.
type pendingInvocation struct {
	id        string
	req       Request
	createdAt time.Time
}

// GatewayConfig holds configuration for creating a Gateway.
type GatewayConfig struct {
	Logger   *slog.Logger
	Recorder Recorder
}

// Gateway runs invocations through the approval state machine. Exempt tools
// execute immediately; gated tools park in the pending map until Resolve.
type Gateway struct {
	mu      sync.Mutex
	pending map[string]*pendingInvocation

	logger   *slog.Logger
	recorder Recorder
}

// NewGateway creates an approval gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		pending:  make(map[string]*pendingInvocation),
		logger:   logger.With("component", "approval-gateway"),
		recorder: cfg.Recorder,
	}
}

func (g *Gateway) record(invocationID, toolName, sessionKey, status string) {
	if g.recorder != nil {
		g.recorder.RecordTransition(invocationID, toolName, sessionKey, status)
	}
}

// Submit runs req through the state machine. For exempt tools the handler
// executes before Submit returns; callers run Submit on their own goroutine.
// For gated tools Submit parks the invocation and returns after emitting the
// approval request.
func (g *Gateway) Submit(ctx context.Context, req Request) {
	id := uuid.New().String()
	g.record(id, req.Tool.Name, req.SessionKey, StatusPending)

	if !req.Tool.RequiresApproval {
		g.execute(ctx, id, req)
		return
	}

	g.mu.Lock()
	g.pending[id] = &pendingInvocation{
		id:        id,
		req:       req,
		createdAt: time.Now(),
	}
	g.mu.Unlock()

	g.record(id, req.Tool.Name, req.SessionKey, StatusAwaitingApproval)
	g.logger.Info("tool invocation awaiting approval",
		"approval_request_id", id,
		"tool", req.Tool.Name,
		"session_key", req.SessionKey)

	if req.OnApprovalRequired != nil {
		req.OnApprovalRequired(id)
	}
}

// Resolve applies an operator decision to a pending invocation. Unknown ids
// fail with ErrUnknownApprovalRequest and affect nothing else.
func (g *Gateway) Resolve(id string, approve bool) error {
	g.mu.Lock()
	inv, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApprovalRequest, id)
	}

	if !approve {
		g.record(inv.id, inv.req.Tool.Name, inv.req.SessionKey, StatusRejected)
		g.logger.Info("tool invocation rejected",
			"approval_request_id", inv.id,
			"tool", inv.req.Tool.Name)
		if inv.req.OnResult != nil {
			inv.req.OnResult(nil, ErrRejected)
		}
		return nil
	}

	g.record(inv.id, inv.req.Tool.Name, inv.req.SessionKey, StatusApproved)
	g.logger.Info("tool invocation approved",
		"approval_request_id", inv.id,
		"tool", inv.req.Tool.Name)

	// The originating request is long gone; the resumed execution runs on
	// its own context.
	go g.execute(context.Background(), inv.id, inv.req)
	return nil
}

// execute runs the tool handler and delivers the outcome.
func (g *Gateway) execute(ctx context.Context, id string, req Request) {
	g.record(id, req.Tool.Name, req.SessionKey, StatusExecuting)

	result, err := req.Tool.Handler(ctx, req.Arguments)
	if err != nil {
		g.record(id, req.Tool.Name, req.SessionKey, StatusFailed)
		g.logger.Error("tool execution failed",
			"invocation_id", id,
			"tool", req.Tool.Name,
			"error", err)
	} else {
		g.record(id, req.Tool.Name, req.SessionKey, StatusCompleted)
		g.logger.Debug("tool execution completed",
			"invocation_id", id,
			"tool", req.Tool.Name)
	}

	if req.OnResult != nil {
		req.OnResult(result, err)
	}
}

// PendingCount returns the number of invocations awaiting approval.
func (g *Gateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
