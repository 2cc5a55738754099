// Package store contains concrete Store implementations. The persistence
// contract and entity records reside in the core package; depend on
// core.Store in your code and select an implementation (SQLite-backed or
// in-memory) at wiring time.
//
// The SQLite store is the durable production backend: WAL journaling gives
// write-ahead crash recovery, every entity commits in its own transaction,
// payloads are gzip-compressed with transparent reads of legacy uncompressed
// rows, and the file size is monitored with automatic compaction past a soft
// threshold. The in-memory store backs tests and ephemeral demos.
package store
