// Package usecases - answer.go handles retrieval and response generation.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

const (
	// MissingKeyMessage is returned instead of calling the model when no API key is configured.
	MissingKeyMessage = "⚠️ API key not configured. Please set GROQ_API_KEY in your environment or .env file."

	// DefaultHistoryWindow is how many past turns are sent with each query.
	DefaultHistoryWindow = 6

	errorMessageFormat = "Sorry, I couldn't generate a response right now. Error: %v"
	dateLayout         = "January 2, 2006"
)

// ErrorMessage is the user-facing text for a failed completion.
func ErrorMessage(err error) string {
	return fmt.Sprintf(errorMessageFormat, err)
}

// KnowledgeProvider hands out the current knowledge base.
type KnowledgeProvider interface {
	Get(ctx context.Context) entities.KnowledgeBase
}

// AnswerConfig holds the fixed generation parameters.
type AnswerConfig struct {
	AppName       string
	Temperature   float64
	MaxTokens     int
	MaxChunks     int
	HistoryWindow int
}

// AnswerOption customizes an AnswerUseCase.
type AnswerOption func(*AnswerUseCase)

// WithClock replaces the date source used in the system prompt.
func WithClock(now func() time.Time) AnswerOption {
	return func(uc *AnswerUseCase) { uc.now = now }
}

// WithScorer replaces the default retrieval scorer.
func WithScorer(s *retrieval.Scorer) AnswerOption {
	return func(uc *AnswerUseCase) { uc.scorer = s }
}

// AnswerUseCase retrieves context for a query and asks the model.
// Single Responsibility: no history ownership, shells pass it in.
type AnswerUseCase struct {
	llm       ports.LLMService
	knowledge KnowledgeProvider
	scorer    *retrieval.Scorer
	cfg       AnswerConfig
	now       func() time.Time
}

// NewAnswerUseCase creates an AnswerUseCase with injected dependencies.
func NewAnswerUseCase(llm ports.LLMService, knowledge KnowledgeProvider, cfg AnswerConfig, opts ...AnswerOption) *AnswerUseCase {
	if cfg.AppName == "" {
		cfg.AppName = "Z.M.ai"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = retrieval.DefaultMaxChunks
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	uc := &AnswerUseCase{
		llm:       llm,
		knowledge: knowledge,
		scorer:    retrieval.NewScorer(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Retrieve ranks the knowledge base for query and returns the chunks
// behind the context together with the joined context.
func (uc *AnswerUseCase) Retrieve(ctx context.Context, query string) ([]entities.ScoredChunk, string) {
	kb := uc.knowledge.Get(ctx)
	top := uc.scorer.Top(query, kb.Text, uc.cfg.MaxChunks)
	return top, retrieval.Join(top)
}

// Ask retrieves context for the request and generates the answer.
// Failures are already folded into Answer.
func (uc *AnswerUseCase) Ask(ctx context.Context, req entities.ChatRequest) entities.ChatResponse {
	sources, policyContext := uc.Retrieve(ctx, req.Query)
	log.Debugf("query %q: %d chunks retrieved", req.Query, len(sources))

	return entities.ChatResponse{
		Answer:  uc.Generate(ctx, req.Query, policyContext, req.History),
		Context: policyContext,
		Sources: sources,
	}
}

// Generate asks the model to answer query from context and recent history.
// It always returns displayable text: the missing key warning, the answer,
// or an error message.
func (uc *AnswerUseCase) Generate(ctx context.Context, query, policyContext string, history []entities.ChatMessage) string {
	if !uc.llm.Configured() {
		return MissingKeyMessage
	}

	answer, err := uc.llm.Complete(ctx, uc.Messages(query, policyContext, history), uc.completionOptions())
	if err != nil {
		log.Errorf("generating response: %v", err)
		return ErrorMessage(err)
	}
	return answer
}

// AskStream is Ask for incremental output. The channel carries answer
// fragments and ends with a Done token; failures arrive as an error message
// fragment instead of an error.
func (uc *AnswerUseCase) AskStream(ctx context.Context, req entities.ChatRequest) ([]entities.ScoredChunk, <-chan ports.StreamToken) {
	sources, policyContext := uc.Retrieve(ctx, req.Query)

	if !uc.llm.Configured() {
		return sources, single(MissingKeyMessage)
	}

	upstream, err := uc.llm.CompleteStream(ctx, uc.Messages(req.Query, policyContext, req.History), uc.completionOptions())
	if err != nil {
		log.Errorf("starting response stream: %v", err)
		return sources, single(ErrorMessage(err))
	}

	out := make(chan ports.StreamToken, 16)
	go func() {
		defer close(out)
		for tok := range upstream {
			if tok.Error != nil {
				log.Errorf("response stream: %v", tok.Error)
				out <- ports.StreamToken{Content: ErrorMessage(tok.Error), Done: true}
				return
			}
			out <- tok
			if tok.Done {
				return
			}
		}
		out <- ports.StreamToken{Done: true}
	}()
	return sources, out
}

// Messages builds the model input: system prompt, the trailing history
// window (oldest first) and the query as the final user turn.
func (uc *AnswerUseCase) Messages(query, policyContext string, history []entities.ChatMessage) []entities.ChatMessage {
	window := entities.LastN(history, uc.cfg.HistoryWindow)

	msgs := make([]entities.ChatMessage, 0, len(window)+2)
	msgs = append(msgs, entities.ChatMessage{Role: entities.RoleSystem, Content: uc.SystemPrompt(policyContext)})
	msgs = append(msgs, window...)
	msgs = append(msgs, entities.ChatMessage{Role: entities.RoleUser, Content: query})
	return msgs
}

// SystemPrompt embeds today's date and the retrieved context.
func (uc *AnswerUseCase) SystemPrompt(policyContext string) string {
	return fmt.Sprintf(`You are %s, a friendly academic policy assistant for university students.
Today's date is %s.

Answer the student's question using the policy excerpts below. Quote rules and numbers exactly as written.
If the excerpts do not cover the question, say so plainly and suggest contacting the relevant university office.
Use short paragraphs or bullet points in Markdown.

POLICY CONTEXT:
%s`, uc.cfg.AppName, uc.now().Format(dateLayout), policyContext)
}

func (uc *AnswerUseCase) completionOptions() ports.CompletionOptions {
	return ports.CompletionOptions{Temperature: uc.cfg.Temperature, MaxTokens: uc.cfg.MaxTokens}
}

func single(content string) <-chan ports.StreamToken {
	ch := make(chan ports.StreamToken, 1)
	ch <- ports.StreamToken{Content: content, Done: true}
	close(ch)
	return ch
}
