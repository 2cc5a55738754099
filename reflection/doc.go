// Package reflection scores task outcomes and decides whether the
// orchestrator should retry, accept, or abandon. The engine is deterministic:
// the score combines execution health (step errors, terminal failure) with
// goal coverage of the produced output, and fixed thresholds map the score to
// a verdict. Critiques name concrete discrepancies so a retry has something
// to act on.
package reflection
