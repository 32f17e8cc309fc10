// Package store provides the SQLite-backed invocation audit log.
//
// The audit log records status transitions only (invocation id, tool name,
// session key, status, timestamp). Tool arguments and results are never
// written to it. Sessions themselves are not persisted; the store holds
// nothing a restart needs to recover.
package store
