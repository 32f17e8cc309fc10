// Package approval gates tool execution behind operator confirmation.
//
// Every invocation passes through the gateway. Exempt tools run immediately;
// gated tools are parked with their full continuation (arguments, correlation
// id, delivery callbacks) until an operator approves or rejects them. The
// continuation is discarded the moment the invocation reaches a terminal
// state, so a decision can be applied at most once.
package approval
