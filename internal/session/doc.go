// Package session tracks live caller push channels for the gateway.
//
// A Session wraps one server-sent-event connection: events queued via Send
// are drained by the HTTP layer and written to the wire. The Registry maps
// session keys to live sessions, enforcing at most one session per key and
// resolving which session an inbound message should be routed to.
package session
