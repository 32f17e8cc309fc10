// ABOUTME: Operator API handlers, currently the approval resolution endpoint.
// ABOUTME: POST /api/approvals applies an approve or reject decision.

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stepfn/tutor-gateway/internal/approval"
)

// approvalDecision is the request body for POST /api/approvals.
type approvalDecision struct {
	ApprovalRequestID string `json:"approval_request_id"`
	Approve           bool   `json:"approve"`

	// ContinuationContext is accepted for operator tooling round-trips; the
	// gateway holds the authoritative continuation internally.
	ContinuationContext json.RawMessage `json:"continuation_context,omitempty"`
}

func (g *Gateway) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read request body"})
		return
	}

	var decision approvalDecision
	if err := json.Unmarshal(body, &decision); err != nil {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "MalformedRequest",
			"message": "invalid JSON",
		})
		return
	}
	if decision.ApprovalRequestID == "" {
		g.sendJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "MalformedRequest",
			"message": "approval_request_id is required",
		})
		return
	}

	if err := g.approvals.Resolve(decision.ApprovalRequestID, decision.Approve); err != nil {
		if errors.Is(err, approval.ErrUnknownApprovalRequest) {
			g.sendJSON(w, http.StatusNotFound, map[string]string{
				"error": "UnknownApprovalRequest",
			})
			return
		}
		g.logger.Error("resolving approval",
			"approval_request_id", decision.ApprovalRequestID,
			"error", err)
		g.sendJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := "rejected"
	if decision.Approve {
		status = "approved"
	}
	g.logger.Info("approval resolved",
		"approval_request_id", decision.ApprovalRequestID,
		"status", status)

	g.sendJSON(w, http.StatusOK, map[string]string{
		"approval_request_id": decision.ApprovalRequestID,
		"status":              status,
	})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("encoding response", "error", err)
	}
}
