// Package notifier delivers short owner notices (reminders, failure
// notices) off the caller's goroutine.
//
// Notices go through a bounded queue drained by a small worker pool. Sends
// are rate limited with a token bucket, and identical notices to the same
// chat inside the dedup window are suppressed. The dedup window can be
// persisted through the store so a restart does not repeat a notice.
//
// Retries default to zero: a reminder or failure notice is one-shot.
package notifier
