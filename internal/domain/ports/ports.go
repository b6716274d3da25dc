// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"
	"errors"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
)

// ErrNotCached is returned by KnowledgeCache.Read when no cache file exists.
var ErrNotCached = errors.New("knowledge base not cached")

// DocumentParser extracts text from binary document formats (PDF).
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// ParseFile extracts text from a document on disk.
	ParseFile(ctx context.Context, path string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// WebScraper fetches a page and reduces it to plain text lines.
type WebScraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// KnowledgeCache persists the built knowledge base as one flat text file.
// No versioning, no checksum: presence of the file is the only freshness signal.
type KnowledgeCache interface {
	// Read returns the cached text verbatim, or ErrNotCached.
	Read(ctx context.Context) (string, error)

	// Write replaces the cached text.
	Write(ctx context.Context, text string) error

	// Remove deletes the cache file. Removing a missing file is not an error.
	Remove(ctx context.Context) error

	// Path returns the location of the cache file.
	Path() string
}

// CompletionOptions are the fixed sampling parameters of a completion call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMService generates chat completions from a hosted language model.
// Single Responsibility: Only LLM inference, no retrieval logic.
type LLMService interface {
	// Configured reports whether a credential is available. When false the
	// service must not be called.
	Configured() bool

	// Complete returns the text of the first choice.
	Complete(ctx context.Context, messages []entities.ChatMessage, opts CompletionOptions) (string, error)

	// CompleteStream produces a streaming response (for real-time UI).
	CompleteStream(ctx context.Context, messages []entities.ChatMessage, opts CompletionOptions) (<-chan StreamToken, error)
}

// StreamToken represents a single token in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// ConversationStore keeps per-session chat history for the shells.
// The generator never touches it; shells pass a read-only slice each turn.
type ConversationStore interface {
	// History returns the stored turns, oldest first.
	History(ctx context.Context, sessionID string) ([]entities.ChatMessage, error)

	// Append adds turns, trimming the oldest beyond the store's cap.
	Append(ctx context.Context, sessionID string, msgs ...entities.ChatMessage) error

	// Clear removes every turn of the session.
	Clear(ctx context.Context, sessionID string) error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

// String returns a readable name for logs.
func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
