// Package session owns matching sessions: creation with a unique share code,
// concurrency-safe participant admission and status transitions. Session
// records live in Redis with a sliding TTL.
package session
