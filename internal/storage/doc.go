// Package storage persists posts, registered channels, user preferences and
// notifier dedup windows.
//
// Backends: "sqlite" (modernc, pure Go), "postgres" (lib/pq) and "memory".
// Both SQL backends share one implementation over database/sql; the dialect
// only rewrites placeholders and row locking.
package storage
