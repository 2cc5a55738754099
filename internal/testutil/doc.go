// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (tasks, traces,
// memory entries, events) and asserting behaviors. These helpers are
// intentionally minimal and avoid adding third-party dependencies. They are
// not intended for production usage.
package testutil
