package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
)

var fixedClock = WithClock(func() time.Time {
	return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
})

var testAnswerConfig = AnswerConfig{Temperature: 0.3, MaxTokens: 2048}

func TestGenerate_MissingKeyMakesNoCall(t *testing.T) {
	llm := &mockLLM{configured: false, response: "should not be used"}
	uc := NewAnswerUseCase(llm, staticKnowledge(""), testAnswerConfig)

	got := uc.Generate(context.Background(), "attendance?", "ctx", nil)
	if got != MissingKeyMessage {
		t.Errorf("expected warning, got %q", got)
	}
	if llm.calls != 0 {
		t.Error("no call should be made without a key")
	}
}

func TestGenerate_MessageLayout(t *testing.T) {
	llm := &mockLLM{configured: true, response: "75% attendance."}
	uc := NewAnswerUseCase(llm, staticKnowledge(""), testAnswerConfig, fixedClock)

	var history []entities.ChatMessage
	for i := 0; i < 8; i++ {
		role := entities.RoleUser
		if i%2 == 1 {
			role = entities.RoleAssistant
		}
		history = append(history, entities.ChatMessage{Role: role, Content: string(rune('a' + i))})
	}

	got := uc.Generate(context.Background(), "What is the attendance policy?", "Attendance policy: present.", history)
	if got != "75% attendance." {
		t.Errorf("unexpected answer %q", got)
	}

	msgs := llm.messages
	if len(msgs) != 8 {
		t.Fatalf("expected system + 6 history + query, got %d", len(msgs))
	}
	if msgs[0].Role != entities.RoleSystem {
		t.Error("first message should be the system prompt")
	}
	if !strings.Contains(msgs[0].Content, "March 5, 2024") || !strings.Contains(msgs[0].Content, "Attendance policy: present.") {
		t.Errorf("system prompt should embed date and context:\n%s", msgs[0].Content)
	}
	if msgs[1].Content != "c" || msgs[6].Content != "h" {
		t.Errorf("history window should be the last 6, oldest first: %q..%q", msgs[1].Content, msgs[6].Content)
	}
	if last := msgs[7]; last.Role != entities.RoleUser || last.Content != "What is the attendance policy?" {
		t.Errorf("query should be the final user turn: %+v", last)
	}
	if llm.opts.Temperature != 0.3 || llm.opts.MaxTokens != 2048 {
		t.Errorf("unexpected options %+v", llm.opts)
	}
}

func TestGenerate_EmptyContextStillCalls(t *testing.T) {
	llm := &mockLLM{configured: true, response: "I don't know."}
	uc := NewAnswerUseCase(llm, staticKnowledge(""), testAnswerConfig)

	if got := uc.Generate(context.Background(), "parking?", "", nil); got != "I don't know." {
		t.Errorf("unexpected answer %q", got)
	}
	if len(llm.messages) != 2 {
		t.Errorf("expected system + query, got %d messages", len(llm.messages))
	}
}

func TestGenerate_UpstreamErrorBecomesMessage(t *testing.T) {
	logs := captureLogs(t)
	llm := &mockLLM{configured: true, err: errors.New("rate limited")}
	uc := NewAnswerUseCase(llm, staticKnowledge(""), testAnswerConfig)

	got := uc.Generate(context.Background(), "exam?", "", nil)
	if got != ErrorMessage(llm.err) || !strings.Contains(got, "rate limited") {
		t.Errorf("unexpected error text %q", got)
	}
	if !logs.has("ERROR", "rate limited") {
		t.Error("upstream failure should be logged")
	}
}

func TestAsk_ReturnsContextAndSources(t *testing.T) {
	kb := "Attendance policy: students must be present.\n\nGrading uses GPA and CGPA."
	llm := &mockLLM{configured: true, response: "Be present."}
	uc := NewAnswerUseCase(llm, staticKnowledge(kb), testAnswerConfig)

	resp := uc.Ask(context.Background(), entities.ChatRequest{Query: "What is the attendance policy?"})
	if resp.Answer != "Be present." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if resp.Context != "Attendance policy: students must be present." {
		t.Errorf("unexpected context %q", resp.Context)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Score != 10 {
		t.Errorf("unexpected sources %+v", resp.Sources)
	}
}

func TestAsk_EndToEndFromCache(t *testing.T) {
	cache := &memoryCache{text: "X\n\nY policy Z", present: true}
	knowledge := NewKnowledgeUseCase(nil, nil, cache, KnowledgeSources{})
	llm := &mockLLM{configured: true, echo: true}
	uc := NewAnswerUseCase(llm, knowledge, testAnswerConfig,
		WithScorer(retrieval.NewScorer(retrieval.WithMinChunkLength(1))))

	resp := uc.Ask(context.Background(), entities.ChatRequest{Query: "policy"})
	if resp.Context != "Y policy Z" {
		t.Fatalf("expected context %q, got %q", "Y policy Z", resp.Context)
	}
	if !strings.Contains(resp.Answer, "Y policy Z") || !strings.Contains(resp.Answer, "policy") {
		t.Errorf("echoed prompt should contain context and query: %q", resp.Answer)
	}
}

func TestAsk_EndToEndDefaultLengthFilter(t *testing.T) {
	cache := &memoryCache{text: "X\n\nY policy Z applies to every student.", present: true}
	knowledge := NewKnowledgeUseCase(nil, nil, cache, KnowledgeSources{})
	llm := &mockLLM{configured: true, echo: true}
	uc := NewAnswerUseCase(llm, knowledge, testAnswerConfig)

	resp := uc.Ask(context.Background(), entities.ChatRequest{Query: "policy"})
	if resp.Context != "Y policy Z applies to every student." {
		t.Errorf("unexpected context %q", resp.Context)
	}
}

func TestAskStream_ForwardsTokens(t *testing.T) {
	llm := &mockLLM{configured: true, stream: []ports.StreamToken{
		{Content: "Be "}, {Content: "present."}, {Done: true},
	}}
	uc := NewAnswerUseCase(llm, staticKnowledge("Attendance policy: students must be present."), testAnswerConfig)

	sources, ch := uc.AskStream(context.Background(), entities.ChatRequest{Query: "attendance"})
	if len(sources) != 1 {
		t.Errorf("expected one source, got %d", len(sources))
	}

	var sb strings.Builder
	for tok := range ch {
		sb.WriteString(tok.Content)
	}
	if sb.String() != "Be present." {
		t.Errorf("unexpected streamed answer %q", sb.String())
	}
}

func TestAskStream_Failures(t *testing.T) {
	captureLogs(t)

	cases := []struct {
		name string
		llm  *mockLLM
		want string
	}{
		{"missing key", &mockLLM{}, MissingKeyMessage},
		{"start error", &mockLLM{configured: true, err: errors.New("boom")}, ErrorMessage(errors.New("boom"))},
		{"mid-stream error", &mockLLM{configured: true, stream: []ports.StreamToken{
			{Content: "Partial "}, {Done: true, Error: errors.New("reset")},
		}}, "Partial " + ErrorMessage(errors.New("reset"))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			uc := NewAnswerUseCase(c.llm, staticKnowledge(""), testAnswerConfig)
			_, ch := uc.AskStream(context.Background(), entities.ChatRequest{Query: "exam"})

			var sb strings.Builder
			var last ports.StreamToken
			for tok := range ch {
				sb.WriteString(tok.Content)
				last = tok
			}
			if sb.String() != c.want {
				t.Errorf("got %q, want %q", sb.String(), c.want)
			}
			if !last.Done || last.Error != nil {
				t.Errorf("stream should end with a clean Done token: %+v", last)
			}
		})
	}
}
