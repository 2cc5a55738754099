// Package world maintains the simulated environment used to evaluate
// candidate action sequences before the orchestrator commits resources. The
// simulator runs a bounded look-ahead beam search over step sequences and is
// pure with respect to shared state: it reads a memory snapshot, optionally
// consults the injected language model for step proposals, and returns a
// value. It never fails outright: when nothing clears the confidence
// threshold the best available candidate is returned tagged low-confidence
// so the orchestrator proceeds with explicit uncertainty.
package world
