// Package webhook ingests payment processor notifications.
//
// Pipeline.Receive runs on the HTTP request: it verifies the signature over
// the raw body, validates the envelope, records the event keyed by the
// processor's notification id and enqueues a ProcessEvent task. A replayed
// notification id is reported as a duplicate and leaves the stored event
// untouched, so at-least-once delivery upstream becomes at-most-once
// processing here.
//
// Processor.Process runs on a queue worker. It claims the event, dispatches
// it by type and records the outcome. Retryable failures are re-enqueued with
// backoff until MaxRetries, after which the event is failed_terminal and an
// alert is raised. Replay puts a failed_terminal event back in the queue
// after manual review.
//
// Event status transitions go through a statemachine.Machine:
//
//	queued ──claim──▶ processing ──deliver──▶ delivered
//	failed ──claim──▶ processing ──fail─────▶ failed
//	                  processing ──give_up──▶ failed_terminal ──replay──▶ queued
package webhook
