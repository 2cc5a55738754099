// Package evolution turns repeated successful executions into named,
// reusable skills. The engine aggregates execution traces by procedure
// fingerprint, promotes a procedure once its observed success rate clears the
// threshold over enough independent samples, and keeps promoted skill stats
// honest by recomputing them from the full durable invocation history. It
// also drives self-improvement: the curriculum generator proposes practice
// tasks targeting the weakest skills.
package evolution
