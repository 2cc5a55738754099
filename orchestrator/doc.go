// Package orchestrator drives the plan/act/reflect/learn loop for a single
// task. Each accepted task moves through an explicit state machine
// (PLANNING, EXECUTING, REFLECTING, then RETRYING, LEARNING with DONE, or
// ABANDONED) under a hard iteration budget, so no task can loop forever.
// Tasks run concurrently up to a configured limit; each execution is an
// independent goroutine with its own iteration limiter and trace ID.
// Cancellation is honored at state transition boundaries, and a cancelled or
// panicking task still releases its resources and emits a terminal event, so
// callers never hang on a failure.
package orchestrator
