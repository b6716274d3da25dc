// Package http provides the HTTP chat shell.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// SessionCookie carries the conversation id of a browser.
const SessionCookie = "policyrag_session"

// Options configures the server.
type Options struct {
	Addr     string
	Title    string
	Subtitle string
	Model    string
}

// Server is the HTTP server for the chat API and UI.
type Server struct {
	answers   *usecases.AnswerUseCase
	knowledge *usecases.KnowledgeUseCase
	history   ports.ConversationStore
	llm       ports.LLMService
	md        goldmark.Markdown
	index     *template.Template
	opts      Options
	echo      *echo.Echo
}

// NewServer creates the server and registers its routes.
func NewServer(
	answers *usecases.AnswerUseCase,
	knowledge *usecases.KnowledgeUseCase,
	history ports.ConversationStore,
	llm ports.LLMService,
	opts Options,
) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	s := &Server{
		answers:   answers,
		knowledge: knowledge,
		history:   history,
		llm:       llm,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		index: template.Must(template.New("index").Parse(indexHTML)),
		opts:  opts,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Infof("%s %s %d %v", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/", s.handleIndex)
	api := e.Group("/api")
	api.POST("/query", s.handleQuery)
	api.GET("/query/stream", s.handleQueryStream) // SSE streaming
	api.GET("/context", s.handleContext)
	api.POST("/clear", s.handleClear)
	api.POST("/refresh", s.handleRefresh)
	api.GET("/health", s.handleHealth)

	s.echo = e
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.echo.Server.ReadTimeout = 15 * time.Second
	s.echo.Server.WriteTimeout = 300 * time.Second // long answers stream slowly

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.echo.Shutdown(shutdownCtx)
	}()

	log.Infof("%s server starting on %s", s.opts.Title, s.opts.Addr)
	if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex renders the chat UI.
func (s *Server) handleIndex(c echo.Context) error {
	s.session(c)

	var buf bytes.Buffer
	if err := s.index.Execute(&buf, s.opts); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

type queryRequest struct {
	Query string `json:"query" form:"query" query:"q"`
}

type chunkView struct {
	Score    int    `json:"score"`
	Position int    `json:"position"`
	Content  string `json:"content"`
}

type queryResponse struct {
	Answer     string      `json:"answer"`
	AnswerHTML string      `json:"answer_html"`
	Context    string      `json:"context"`
	Sources    []chunkView `json:"sources"`
}

// handleQuery answers one question. htmx requests get an HTML fragment.
func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query required"})
	}

	ctx := c.Request().Context()
	sessionID := s.session(c)
	history := s.loadHistory(ctx, sessionID)

	resp := s.answers.Ask(ctx, entities.ChatRequest{Query: query, History: history})
	s.remember(ctx, sessionID, query, resp.Answer)

	rendered := s.render(resp.Answer)
	if c.Request().Header.Get("HX-Request") != "" {
		return c.HTML(http.StatusOK,
			`<div class="message user">`+template.HTMLEscapeString(query)+`</div>`+
				`<div class="message assistant">`+rendered+`</div>`)
	}
	return c.JSON(http.StatusOK, queryResponse{
		Answer:     resp.Answer,
		AnswerHTML: rendered,
		Context:    resp.Context,
		Sources:    toViews(resp.Sources),
	})
}

// handleQueryStream answers over server-sent events.
func (s *Server) handleQueryStream(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query required"})
	}

	ctx := c.Request().Context()
	sessionID := s.session(c)
	history := s.loadHistory(ctx, sessionID)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, tokens := s.answers.AskStream(ctx, entities.ChatRequest{Query: query, History: history})

	var answer strings.Builder
	for tok := range tokens {
		answer.WriteString(tok.Content)
		if tok.Content != "" {
			sendSSE(w, map[string]any{"content": tok.Content, "done": false})
		}
		if tok.Done {
			break
		}
	}

	s.remember(ctx, sessionID, query, answer.String())
	sendSSE(w, map[string]any{"done": true, "html": s.render(answer.String())})
	return nil
}

func sendSSE(w *echo.Response, data map[string]any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	w.Flush()
}

// handleContext shows what retrieval selects for a query, without calling the model.
func (s *Server) handleContext(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query required"})
	}
	chunks, joined := s.answers.Retrieve(c.Request().Context(), query)
	return c.JSON(http.StatusOK, map[string]any{
		"query":   query,
		"chunks":  toViews(chunks),
		"context": joined,
	})
}

// handleClear forgets the conversation of the calling session.
func (s *Server) handleClear(c echo.Context) error {
	if err := s.history.Clear(c.Request().Context(), s.session(c)); err != nil {
		log.Errorf("clearing history: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not clear history"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

// handleRefresh deletes the cache file and rebuilds the knowledge base.
func (s *Server) handleRefresh(c echo.Context) error {
	kb, err := s.knowledge.Refresh(c.Request().Context())
	if err != nil {
		log.Errorf("refreshing knowledge base: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "refreshed",
		"chars":   len([]rune(kb.Text)),
		"sources": len(kb.Sources),
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "ok",
		"llm_configured":   s.llm.Configured(),
		"model":            s.opts.Model,
		"knowledge_loaded": s.knowledge.Loaded(),
	})
}

// session returns the caller's session id, issuing a cookie on first visit.
func (s *Server) session(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// later handlers in the same request see the new id
	c.Request().AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	return id
}

func (s *Server) loadHistory(ctx context.Context, sessionID string) []entities.ChatMessage {
	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		log.Warnf("loading history for %s: %v", sessionID, err)
		return nil
	}
	return history
}

func (s *Server) remember(ctx context.Context, sessionID, query, answer string) {
	err := s.history.Append(ctx, sessionID,
		entities.ChatMessage{Role: entities.RoleUser, Content: query},
		entities.ChatMessage{Role: entities.RoleAssistant, Content: answer},
	)
	if err != nil {
		log.Warnf("saving history for %s: %v", sessionID, err)
	}
}

// render converts a Markdown answer to HTML. Raw HTML in the answer is escaped.
func (s *Server) render(markdown string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return template.HTMLEscapeString(markdown)
	}
	return buf.String()
}

func toViews(chunks []entities.ScoredChunk) []chunkView {
	views := make([]chunkView, len(chunks))
	for i, ch := range chunks {
		views[i] = chunkView{Score: ch.Score, Position: ch.Position, Content: ch.Content}
	}
	return views
}
