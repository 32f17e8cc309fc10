// Package mcp implements the gateway's wire surface: the SSE push channel,
// the inbound message endpoint, and the diagnostics endpoints.
//
// The transport contract is one logical duplex channel per caller built from
// two HTTP legs. GET /sse opens the push stream; its first event is an
// "endpoint" event naming the messages URL, with the caller's session key as
// a query parameter. The caller then POSTs JSON-RPC to that URL. The POST
// response only reports delivery (200 delivered, 424 no active session,
// 400 malformed); every routed outcome, including errors found after
// delivery, travels back over the push stream tagged with the request's id.
//
// tools/call requests are schema-validated and handed to the approval
// gateway. Gated tools emit a notifications/approval_required message and
// park until an operator resolves them via the operator API.
package mcp
