// Package model defines the polymorphic language model capability injected
// into the world model and reflection engine at construction time. Concrete
// providers live in subpackages (anthropic, openai); MockModel supports tests
// and offline examples. Swapping providers is a wiring decision, never a
// runtime type inspection.
package model
