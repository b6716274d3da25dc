package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// mockParser implements ports.DocumentParser for testing
type mockParser struct {
	text  string
	err   error
	calls int
}

func (m *mockParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	return m.ParseFile(ctx, filename)
}

func (m *mockParser) ParseFile(ctx context.Context, path string) (string, error) {
	m.calls++
	return m.text, m.err
}

func (m *mockParser) SupportedFormats() []string { return []string{"pdf"} }

// mockScraper implements ports.WebScraper for testing
type mockScraper struct {
	text  string
	err   error
	calls int
}

func (m *mockScraper) Scrape(ctx context.Context, url string) (string, error) {
	m.calls++
	return m.text, m.err
}

// memoryCache implements ports.KnowledgeCache without touching disk
type memoryCache struct {
	text     string
	present  bool
	writeErr error
	writes   int
}

func (c *memoryCache) Read(ctx context.Context) (string, error) {
	if !c.present {
		return "", ports.ErrNotCached
	}
	return c.text, nil
}

func (c *memoryCache) Write(ctx context.Context, text string) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes++
	c.text, c.present = text, true
	return nil
}

func (c *memoryCache) Remove(ctx context.Context) error {
	c.text, c.present = "", false
	return nil
}

func (c *memoryCache) Path() string { return "memory://knowledge_base.txt" }

// mockLLM implements ports.LLMService, recording what it was sent
type mockLLM struct {
	configured bool
	response   string
	err        error
	echo       bool // answer with the concatenated prompt
	stream     []ports.StreamToken

	calls    int
	messages []entities.ChatMessage
	opts     ports.CompletionOptions
}

func (m *mockLLM) Configured() bool { return m.configured }

func (m *mockLLM) Complete(ctx context.Context, messages []entities.ChatMessage, opts ports.CompletionOptions) (string, error) {
	m.calls++
	m.messages, m.opts = messages, opts
	if m.err != nil {
		return "", m.err
	}
	if m.echo {
		var sb strings.Builder
		for _, msg := range messages {
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}
	return m.response, nil
}

func (m *mockLLM) CompleteStream(ctx context.Context, messages []entities.ChatMessage, opts ports.CompletionOptions) (<-chan ports.StreamToken, error) {
	m.calls++
	m.messages, m.opts = messages, opts
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan ports.StreamToken, len(m.stream))
	for _, tok := range m.stream {
		ch <- tok
	}
	close(ch)
	return ch, nil
}

// staticKnowledge implements KnowledgeProvider
type staticKnowledge string

func (s staticKnowledge) Get(ctx context.Context) entities.KnowledgeBase {
	return entities.KnowledgeBase{Text: string(s)}
}

// recordingLogger captures log lines by level
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Debugf(format string, args ...any) { r.add("DEBUG", format, args...) }
func (r *recordingLogger) Infof(format string, args ...any)  { r.add("INFO", format, args...) }
func (r *recordingLogger) Warnf(format string, args ...any)  { r.add("WARN", format, args...) }
func (r *recordingLogger) Errorf(format string, args ...any) { r.add("ERROR", format, args...) }

func (r *recordingLogger) add(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r *recordingLogger) has(level, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.HasPrefix(l, level+" ") && strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// captureLogs swaps the package logger for the duration of a test.
func captureLogs(t interface{ Cleanup(func()) }) *recordingLogger {
	rec := &recordingLogger{}
	prev := log.Default
	log.Default = rec
	t.Cleanup(func() { log.Default = prev })
	return rec
}
