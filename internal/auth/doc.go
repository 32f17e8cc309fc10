// Package auth provides HS256 JWT verification and HTTP middleware for the
// operator API surface. When no secret is configured the middleware is a
// pass-through; the binary logs a warning in that case.
package auth
