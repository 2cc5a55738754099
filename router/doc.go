// Package router classifies inbound tasks by complexity and steers simple
// work away from the orchestrator. Classification is a pure function of the
// task's text features plus current orchestrator load, with every threshold
// taken from configuration. It never blocks on the network and is safe to
// call concurrently.
package router
