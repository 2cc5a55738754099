// Package core provides the foundational domain types, interfaces and error
// taxonomy used by Prometheus. It defines the core abstractions for:
//
//   - Tasks (immutable units of routed work with a complexity tier)
//   - Memory entries (six-kind tagged records owned by the memory system)
//   - Skills (named, success-rate-tracked procedures)
//   - Plan candidates and reflection verdicts (ephemeral loop artifacts)
//   - Events (durable outbox records with at-least-once delivery)
//   - Pluggable contracts for stores, the event bus, the planner, the critic
//     and the task router
//
// The package intentionally keeps implementation concerns (persistence, the
// orchestrator state machine, concrete engines) out of scope, exposing small
// interfaces so backends can be swapped at wiring time.
package core
