// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SourceKind tells where a knowledge base section came from.
type SourceKind string

const (
	SourcePDF SourceKind = "PDF"
	SourceWeb SourceKind = "WEB"
)

// Source is one contribution to the knowledge base (a PDF manual or a scraped page).
// Clean Architecture: Entity knows nothing about how the text was extracted.
type Source struct {
	Kind   SourceKind
	Origin string // file name or URL
	Text   string
}

// KnowledgeBase is the full text corpus searched at query time.
// It is immutable once built; paragraphs are separated by blank lines.
type KnowledgeBase struct {
	Text     string
	Sources  []Source // empty when served from the cache file
	Cached   bool     // true when read back from the cache file
	LoadedAt time.Time
}

// Empty reports whether there is nothing to retrieve from.
func (kb KnowledgeBase) Empty() bool {
	return kb.Text == ""
}

// ScoredChunk is a paragraph with its retrieval score.
// Ephemeral: exists only for the duration of one retrieval call.
type ScoredChunk struct {
	Score    int
	Content  string
	Position int // index among the chunks that survived the length filter
}

// ChatMessage represents a conversation turn.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatRequest represents a query with conversation context.
type ChatRequest struct {
	Query   string
	History []ChatMessage
}

// ChatResponse represents the LLM's answer with the context it was grounded on.
type ChatResponse struct {
	Answer  string
	Context string        // joined top chunks handed to the model
	Sources []ScoredChunk // ranked chunks behind Context
}

// LastN returns the trailing n turns of history, oldest first.
// The returned slice shares no backing array with history.
func LastN(history []ChatMessage, n int) []ChatMessage {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]ChatMessage, len(history))
	copy(out, history)
	return out
}
