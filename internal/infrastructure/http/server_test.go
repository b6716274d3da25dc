package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/policyrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/store"
	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/usecases"
)

const testKB = "Attendance policy: students must be present for 75% of classes.\n\nGrading uses GPA and CGPA."

// stubLLM implements ports.LLMService with a canned answer
type stubLLM struct {
	answer   string
	received []entities.ChatMessage
}

func (s *stubLLM) Configured() bool { return true }

func (s *stubLLM) Complete(ctx context.Context, msgs []entities.ChatMessage, opts ports.CompletionOptions) (string, error) {
	s.received = msgs
	return s.answer, nil
}

func (s *stubLLM) CompleteStream(ctx context.Context, msgs []entities.ChatMessage, opts ports.CompletionOptions) (<-chan ports.StreamToken, error) {
	s.received = msgs
	ch := make(chan ports.StreamToken, 3)
	half := len(s.answer) / 2
	ch <- ports.StreamToken{Content: s.answer[:half]}
	ch <- ports.StreamToken{Content: s.answer[half:]}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

// stubParser implements ports.DocumentParser
type stubParser struct{ text string }

func (p *stubParser) Parse(ctx context.Context, data []byte, name string) (string, error) {
	return p.text, nil
}
func (p *stubParser) ParseFile(ctx context.Context, path string) (string, error) { return p.text, nil }
func (p *stubParser) SupportedFormats() []string                                   { return []string{"pdf"} }

type fixture struct {
	server  *Server
	llm     *stubLLM
	history *store.InMemoryStore
	parser  *stubParser
}

func newFixture(t *testing.T, answer string) *fixture {
	t.Helper()

	cache := loader.NewFileCache(t.TempDir(), "")
	require.NoError(t, cache.Write(context.Background(), testKB))

	parser := &stubParser{text: "Exam rules: no phones allowed in the hall."}
	knowledge := usecases.NewKnowledgeUseCase(parser, nil, cache, usecases.KnowledgeSources{PDFPath: "manual.pdf"})
	llm := &stubLLM{answer: answer}
	answers := usecases.NewAnswerUseCase(llm, knowledge, usecases.AnswerConfig{Temperature: 0.3})
	history := store.NewInMemoryStore(50)

	srv := NewServer(answers, knowledge, history, llm, Options{Title: "Z.M.ai", Subtitle: "Policy assistant", Model: "llama-3.1-8b-instant"})
	return &fixture{server: srv, llm: llm, history: history, parser: parser}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func withSession(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	return req
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, "ok")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llm_configured"])
	assert.Equal(t, "llama-3.1-8b-instant", body["model"])
}

func TestServer_IndexIssuesSession(t *testing.T) {
	f := newFixture(t, "ok")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Z.M.ai</title>")
	assert.Contains(t, rec.Body.String(), "Policy assistant")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), SessionCookie+"=")
}

func TestServer_QueryJSON(t *testing.T) {
	f := newFixture(t, "You need **75%** attendance.")
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"What is the attendance policy?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(withSession(req, "s1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You need **75%** attendance.", resp.Answer)
	assert.Contains(t, resp.AnswerHTML, "<strong>75%</strong>")
	assert.Equal(t, "Attendance policy: students must be present for 75% of classes.", resp.Context)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 10, resp.Sources[0].Score)

	history, _ := f.history.History(context.Background(), "s1")
	require.Len(t, history, 2)
	assert.Equal(t, "What is the attendance policy?", history[0].Content)
	assert.Equal(t, entities.RoleAssistant, history[1].Role)
}

func TestServer_QueryUsesSessionHistory(t *testing.T) {
	f := newFixture(t, "answer")
	ctx := context.Background()
	f.history.Append(ctx, "s1",
		entities.ChatMessage{Role: entities.RoleUser, Content: "earlier question"},
		entities.ChatMessage{Role: entities.RoleAssistant, Content: "earlier answer"})

	form := url.Values{"query": {"and grading?"}}
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(withSession(req, "s1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.llm.received, 4)
	assert.Equal(t, "earlier question", f.llm.received[1].Content)
	assert.Equal(t, "and grading?", f.llm.received[3].Content)
}

func TestServer_QueryHTMXFragmentEscapes(t *testing.T) {
	f := newFixture(t, "Be present. <script>alert(1)</script>")
	form := url.Values{"query": {"<b>attendance</b>"}}
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "&lt;b&gt;attendance&lt;/b&gt;")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "Be present.")
}

func TestServer_QueryRequiresText(t *testing.T) {
	f := newFixture(t, "ok")
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"   "}`))
	req.Header.Set("Content-Type", "application/json")

	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(httptest.NewRequest(http.MethodGet, "/api/query/stream", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(httptest.NewRequest(http.MethodGet, "/api/context", nil)).Code)
}

func TestServer_QueryStream(t *testing.T) {
	f := newFixture(t, "Students must attend.")
	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/query/stream?q=attendance", nil), "s2"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var content strings.Builder
	var final map[string]any
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		if ev["done"] == true {
			final = ev
			continue
		}
		content.WriteString(ev["content"].(string))
	}
	assert.Equal(t, "Students must attend.", content.String())
	require.NotNil(t, final)
	assert.Contains(t, final["html"], "<p>Students must attend.</p>")

	history, _ := f.history.History(context.Background(), "s2")
	require.Len(t, history, 2)
	assert.Equal(t, "Students must attend.", history[1].Content)
}

func TestServer_Context(t *testing.T) {
	f := newFixture(t, "unused")
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/context?q=grade", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Chunks  []chunkView `json:"chunks"`
		Context string      `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Chunks, 1)
	assert.Equal(t, "Grading uses GPA and CGPA.", body.Context)
	assert.Nil(t, f.llm.received, "context endpoint must not call the model")
}

func TestServer_Clear(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()
	f.history.Append(ctx, "s3", entities.ChatMessage{Role: entities.RoleUser, Content: "hi"})

	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/clear", nil), "s3"))
	require.Equal(t, http.StatusOK, rec.Code)

	history, _ := f.history.History(ctx, "s3")
	assert.Empty(t, history)
}

func TestServer_Refresh(t *testing.T) {
	f := newFixture(t, "ok")
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ctxRec := f.do(httptest.NewRequest(http.MethodGet, "/api/context?q=exam", nil))
	assert.Contains(t, ctxRec.Body.String(), "no phones allowed")
	assert.NotContains(t, ctxRec.Body.String(), "GPA")
}
