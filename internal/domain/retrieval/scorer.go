// Package retrieval selects knowledge base paragraphs for a query.
// Pure business logic: no I/O, no hidden state. The same (query, text) pair
// always produces the same context.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
)

const (
	// DefaultMaxChunks is the number of chunks joined into the context.
	DefaultMaxChunks = 5
	// DefaultMinChunkLength is the shortest trimmed paragraph, in characters, that is scored.
	DefaultMinChunkLength = 20
	// Separator joins the selected chunks.
	Separator = "\n\n---\n\n"

	// The containment test runs twice, once per weight. Ranking of
	// borderline queries depends on both constants, keep them separate.
	exactMatchWeight = 3
	occurrenceWeight = 1
	expansionBonus   = 2
)

// DefaultStopWords are dropped from the query before matching.
var DefaultStopWords = []string{"what", "how", "is", "the", "a", "an", "are", "you"}

// Expansion grants a bonus when Term is queried and the chunk mentions any of Related.
type Expansion struct {
	Term    string
	Related []string
}

// DefaultExpansions is the built-in synonym table.
var DefaultExpansions = []Expansion{
	{Term: "attendance", Related: []string{"present", "absent"}},
	{Term: "grade", Related: []string{"gpa", "cgpa", "mark"}},
	{Term: "exam", Related: []string{"test", "quiz", "assessment"}},
}

var (
	// Unicode-aware word tokens: letters, digits and underscore.
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	// A blank line is a newline followed by optional horizontal whitespace and another newline.
	blankLinePattern = regexp.MustCompile(`\n[^\S\n]*\n`)
)

// Option configures a Scorer.
type Option func(*Scorer)

// WithStopWords replaces the stop-word list.
func WithStopWords(words []string) Option {
	return func(s *Scorer) {
		s.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			s.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithExpansions replaces the synonym table. Entries are lowercased; a nil
// table keeps the default.
func WithExpansions(expansions []Expansion) Option {
	return func(s *Scorer) {
		if expansions == nil {
			return
		}
		normalized := make([]Expansion, 0, len(expansions))
		for _, e := range expansions {
			rel := make([]string, len(e.Related))
			for i, r := range e.Related {
				rel[i] = strings.ToLower(r)
			}
			normalized = append(normalized, Expansion{Term: strings.ToLower(e.Term), Related: rel})
		}
		s.expansions = normalized
	}
}

// WithMinChunkLength changes the paragraph length filter. Values below 1 are ignored.
func WithMinChunkLength(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.minChunkLength = n
		}
	}
}

// Scorer ranks knowledge base paragraphs by query-term overlap.
// A Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	stopWords      map[string]struct{}
	expansions     []Expansion
	minChunkLength int
}

// NewScorer creates a scorer with the default stop words, expansions and length filter.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		expansions:     DefaultExpansions,
		minChunkLength: DefaultMinChunkLength,
	}
	WithStopWords(DefaultStopWords)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultScorer = NewScorer()

// Retrieve ranks with the default scorer. See Scorer.Retrieve.
func Retrieve(query, knowledgeBase string, maxChunks int) string {
	return defaultScorer.Retrieve(query, knowledgeBase, maxChunks)
}

// Retrieve returns the top maxChunks paragraphs of knowledgeBase for query,
// joined by Separator. It returns "" when the knowledge base is empty, the
// query has no usable terms, or nothing scores above zero.
func (s *Scorer) Retrieve(query, knowledgeBase string, maxChunks int) string {
	return Join(s.Top(query, knowledgeBase, maxChunks))
}

// Top returns at most maxChunks ranked chunks.
func (s *Scorer) Top(query, knowledgeBase string, maxChunks int) []entities.ScoredChunk {
	if maxChunks <= 0 {
		return nil
	}
	ranked := s.Rank(query, knowledgeBase)
	if len(ranked) > maxChunks {
		ranked = ranked[:maxChunks]
	}
	return ranked
}

// Join concatenates chunk contents with Separator.
func Join(chunks []entities.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, Separator)
}

// Rank scores every eligible chunk and returns those above zero, best first.
// Equal scores keep knowledge base order.
func (s *Scorer) Rank(query, knowledgeBase string) []entities.ScoredChunk {
	if knowledgeBase == "" {
		return nil
	}
	terms := s.QueryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	var ranked []entities.ScoredChunk
	for i, chunk := range s.SplitChunks(knowledgeBase) {
		score := s.Explain(terms, chunk).Total()
		if score == 0 {
			continue
		}
		ranked = append(ranked, entities.ScoredChunk{Score: score, Content: chunk, Position: i})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// QueryTerms returns the distinct lowercase word tokens of query, minus stop
// words, in order of first appearance.
func (s *Scorer) QueryTerms(query string) []string {
	tokens := wordPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := s.stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// SplitChunks splits text on blank lines and keeps trimmed paragraphs of at
// least the minimum length.
func (s *Scorer) SplitChunks(text string) []string {
	var chunks []string
	for _, part := range blankLinePattern.Split(text, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) < s.minChunkLength {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks
}

// Breakdown itemizes how a chunk earned its score.
type Breakdown struct {
	Matched    []string // query terms contained in the chunk
	Exact      int
	Occurrence int
	Expansion  int
}

// Total is the chunk score.
func (b Breakdown) Total() int {
	return b.Exact + b.Occurrence + b.Expansion
}

// Explain scores one chunk against already extracted query terms.
func (s *Scorer) Explain(terms []string, chunk string) Breakdown {
	lower := strings.ToLower(chunk)
	var b Breakdown

	for _, term := range terms {
		if strings.Contains(lower, term) {
			b.Exact += exactMatchWeight
			b.Matched = append(b.Matched, term)
		}
	}
	for _, term := range terms {
		if strings.Contains(lower, term) {
			b.Occurrence += occurrenceWeight
		}
	}

	for _, exp := range s.expansions {
		if !contains(terms, exp.Term) {
			continue
		}
		for _, rel := range exp.Related {
			if strings.Contains(lower, rel) {
				b.Expansion += expansionBonus
				break
			}
		}
	}
	return b
}

func contains(terms []string, term string) bool {
	for _, t := range terms {
		if t == term {
			return true
		}
	}
	return false
}
