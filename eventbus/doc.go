// Package eventbus implements the durable publish/subscribe channel between
// the orchestrator and external observers. Publishing follows the outbox
// pattern: every event is written to the store before dispatch, and the
// delivered flag flips only after every live subscriber has accepted the
// event into its queue. Undelivered events are replayed in their original
// order on Start, annotated as redeliveries, so subscribers must be
// idempotent. Routine trace events are sampled to bound overhead;
// error-class events are never sampled out.
package eventbus
