// Package ports defines the capability-port interfaces the engine
// depends on: LLM invocation, web search, sandboxed execution, and
// vector memory. Implementations live in their own packages; tests
// substitute fakes.
package ports

import (
	"context"
	"errors"
)

// Message is one turn of an LLM conversation.
type Message struct {
	// Role is "user", "assistant", or "system".
	Role string
	// Content is the message text.
	Content string
}

// LLM is the language-model invocation port. When schema is non-empty
// the implementation requests JSON-schema-constrained output; the
// constraint is advisory and callers must still validate the result.
type LLM interface {
	Invoke(ctx context.Context, messages []Message, system, schema string) (string, error)
}

// Search is the web search port. Search never fails for a well-formed
// query: on upstream failure it returns a degraded fallback string so
// callers need no special failure handling.
type Search interface {
	Search(ctx context.Context, query string) string
}

// ExecutionImage is an image artifact produced by a sandbox run.
type ExecutionImage struct {
	// Filename is the produced file's base name.
	Filename string `json:"filename"`
	// MimeType is the image content type.
	MimeType string `json:"mime_type"`
	// Data is the raw image payload.
	Data []byte `json:"data"`
}

// ExecutionOutput is the result of one sandbox run.
type ExecutionOutput struct {
	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`
	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`
	// Succeeded is true when the run exited cleanly.
	Succeeded bool `json:"succeeded"`
	// Images are image files harvested from the run's working directory.
	Images []ExecutionImage `json:"images,omitempty"`
}

// Sandbox is the code-execution port. Each Run is a fresh logical
// execution; output files from prior runs never leak into later ones.
type Sandbox interface {
	Run(ctx context.Context, code string) (*ExecutionOutput, error)
	// WarmUp primes the execution environment. Best effort; failures
	// are ignored.
	WarmUp(ctx context.Context)
}

// VectorMemory is the semantic memory port. An unconfigured backing
// store degrades to a no-op/empty-result mode, never a crash.
type VectorMemory interface {
	Store(ctx context.Context, taskID, content, role string) error
	Retrieve(ctx context.Context, query string) (string, error)
	// CheckCache returns a cached answer for semantically similar
	// queries scoring at or above threshold, and whether one was found.
	CheckCache(ctx context.Context, query string, threshold float64) (string, bool)
}

// Error describes a port failure with retry classification.
type Error struct {
	// Op names the failing operation, e.g. "llm.invoke".
	Op string
	// Retryable indicates a transient condition (rate limit, timeout,
	// upstream 5xx) worth retrying with backoff.
	Retryable bool
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": port error"
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a port error marked retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
