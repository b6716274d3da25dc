package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/policyrag-go/internal/adapters/store"
	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/usecases"
)

type staticKB string

func (s staticKB) Get(ctx context.Context) entities.KnowledgeBase {
	return entities.KnowledgeBase{Text: string(s)}
}

// replyLLM streams a fixed reply and counts calls
type replyLLM struct {
	reply string
	calls int
	last  []entities.ChatMessage
}

func (r *replyLLM) Configured() bool { return true }

func (r *replyLLM) Complete(ctx context.Context, msgs []entities.ChatMessage, opts ports.CompletionOptions) (string, error) {
	r.calls++
	r.last = msgs
	return r.reply, nil
}

func (r *replyLLM) CompleteStream(ctx context.Context, msgs []entities.ChatMessage, opts ports.CompletionOptions) (<-chan ports.StreamToken, error) {
	r.calls++
	r.last = msgs
	ch := make(chan ports.StreamToken, 2)
	ch <- ports.StreamToken{Content: r.reply}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

func runChat(t *testing.T, llm *replyLLM, history ports.ConversationStore, input string) string {
	t.Helper()
	color.NoColor = true

	kb := staticKB("Attendance policy: students must be present.\n\nGrading uses GPA and CGPA.")
	answers := usecases.NewAnswerUseCase(llm, kb, usecases.AnswerConfig{})

	var out bytes.Buffer
	chat := NewChat(answers, history, strings.NewReader(input), &out, Options{Title: "Z.M.ai", Model: "llama-3.1-8b-instant"})
	require.NoError(t, chat.Run(context.Background()))
	return out.String()
}

func TestChat_AnswersAndRemembers(t *testing.T) {
	llm := &replyLLM{reply: "Be present."}
	history := store.NewInMemoryStore(50)

	out := runChat(t, llm, history, "What is the attendance policy?\nand exams?\nexit\n")

	assert.Contains(t, out, "Z.M.ai")
	assert.Contains(t, out, "Using model: llama-3.1-8b-instant")
	assert.Contains(t, out, "Assistant: Be present.")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, 2, llm.calls)

	// the second turn sees the first exchange
	require.Len(t, llm.last, 4)
	assert.Equal(t, "What is the attendance policy?", llm.last[1].Content)

	turns, _ := history.History(context.Background(), "cli")
	assert.Len(t, turns, 4)
}

func TestChat_ClearCommand(t *testing.T) {
	llm := &replyLLM{reply: "ok"}
	history := store.NewInMemoryStore(50)

	out := runChat(t, llm, history, "attendance\n/clear\ngrading\n")

	assert.Contains(t, out, "Conversation cleared.")
	require.Len(t, llm.last, 2, "history should be empty after /clear")
}

func TestChat_ContextCommandSkipsModel(t *testing.T) {
	llm := &replyLLM{reply: "unused"}

	out := runChat(t, llm, store.NewInMemoryStore(50), "/context attendance\n/context parking\n/context\n")

	assert.Contains(t, out, "[score 6, chunk 0]")
	assert.Contains(t, out, "Attendance policy: students must be present.")
	assert.Contains(t, out, "No matching policy excerpts.")
	assert.Contains(t, out, "usage: /context")
	assert.Zero(t, llm.calls)
}

func TestChat_EndOfInputAndBlankLines(t *testing.T) {
	llm := &replyLLM{reply: "ok"}
	out := runChat(t, llm, store.NewInMemoryStore(50), "\n   \n")

	assert.NotContains(t, out, "Assistant:")
	assert.Zero(t, llm.calls)
}
