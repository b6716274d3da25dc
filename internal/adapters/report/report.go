// Package report exports the knowledge base and retrieval scores as office documents.
package report

import (
	"time"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
)

// QueryResult is the retrieval outcome for one sample query.
type QueryResult struct {
	Query      string
	Terms      []string
	Chunks     []entities.ScoredChunk
	Breakdowns []retrieval.Breakdown // parallel to Chunks
}

// Evaluate ranks knowledgeBase for every query, keeping at most maxChunks each.
func Evaluate(s *retrieval.Scorer, knowledgeBase string, queries []string, maxChunks int) []QueryResult {
	results := make([]QueryResult, 0, len(queries))
	for _, q := range queries {
		terms := s.QueryTerms(q)
		top := s.Top(q, knowledgeBase, maxChunks)
		breakdowns := make([]retrieval.Breakdown, len(top))
		for i, ch := range top {
			breakdowns[i] = s.Explain(terms, ch.Content)
		}
		results = append(results, QueryResult{Query: q, Terms: terms, Chunks: top, Breakdowns: breakdowns})
	}
	return results
}

// KnowledgeReport describes what the .docx report contains.
type KnowledgeReport struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	CachePath   string
	KB          entities.KnowledgeBase
	ChunkCount  int
	Results     []QueryResult
}

// DefaultQueries are the sample questions used when none are given.
var DefaultQueries = []string{
	"What is the attendance policy?",
	"How is the grade point average calculated?",
	"What are the exam rules?",
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
