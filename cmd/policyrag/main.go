// Command policyrag answers academic policy questions from a PDF manual and a
// policy web page, over HTTP or in the terminal.
//
// Usage:
//
//	policyrag [serve|chat|refresh|report|score] [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/0xcro3dile/policyrag-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/llm"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/parser"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/report"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/scraper"
	"github.com/0xcro3dile/policyrag-go/internal/adapters/store"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
	"github.com/0xcro3dile/policyrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/cli"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/config"
	httpserver "github.com/0xcro3dile/policyrag-go/internal/infrastructure/http"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

var commands = map[string]string{
	"serve":   "run the HTTP chat server (default)",
	"chat":    "chat in the terminal",
	"refresh": "delete the cache file and rebuild the knowledge base",
	"report":  "write a .docx knowledge base report",
	"score":   "write an .xlsx workbook of retrieval scores",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	if _, ok := commands[cmd]; !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	envFile := fs.String("env", ".env", "dotenv file to load")
	addr := fs.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	out := fs.String("out", "", "output file for report and score")
	queries := fs.String("queries", "", "semicolon separated sample queries for report and score")
	session := fs.String("session", "cli", "history session id for chat")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: policyrag [command] [flags]\n\ncommands:\n")
		for _, name := range []string{"serve", "chat", "refresh", "report", "score"} {
			fmt.Fprintf(fs.Output(), "  %-8s %s\n", name, commands[name])
		}
		fmt.Fprintln(fs.Output(), "\nflags:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := config.Load(*envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.SetLevel(cfg.App.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if *addr != "" {
		cfg.App.HTTPAddr = *addr
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "chat":
		return app.chat(ctx, *session)
	case "refresh":
		kb, err := app.knowledge.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Knowledge base rebuilt: %d characters from %d sources, cached at %s\n",
			len([]rune(kb.Text)), len(kb.Sources), app.cache.Path())
		return nil
	case "report":
		return app.report(ctx, orDefault(*out, "knowledge_base_report.docx"), splitQueries(*queries))
	case "score":
		return app.score(ctx, orDefault(*out, "retrieval_scores.xlsx"), splitQueries(*queries))
	default:
		return app.serve(ctx)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg       config.Config
	cache     *loader.FileCache
	llm       *llm.OpenAIAdapter
	history   ports.ConversationStore
	closers   []func() error
	scorer    *retrieval.Scorer
	knowledge *usecases.KnowledgeUseCase
	answers   *usecases.AnswerUseCase
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.cache = loader.NewFileCache(cfg.Sources.CacheDir, loader.DefaultFileName)
	a.knowledge = usecases.NewKnowledgeUseCase(
		parser.NewPDFParser(),
		scraper.NewGoqueryScraper(),
		a.cache,
		usecases.KnowledgeSources{
			PDFPath:       cfg.Sources.PDFPath,
			ScrapeURL:     cfg.Sources.ScrapeURL,
			ScrapeEnabled: cfg.Sources.ScrapeEnabled,
		},
	)

	a.llm = llm.NewOpenAIAdapter(llm.Options{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: 2,
	})

	a.scorer = retrieval.NewScorer(cfg.ScorerOptions()...)
	a.answers = usecases.NewAnswerUseCase(a.llm, a.knowledge, usecases.AnswerConfig{
		AppName:     cfg.App.Title,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		MaxChunks:   cfg.RAG.TopK,
	}, usecases.WithScorer(a.scorer))

	if cfg.App.HistoryDB != "" {
		db, err := store.NewSQLiteStore(cfg.App.HistoryDB, cfg.App.MaxHistory)
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		a.history = db
		a.closers = append(a.closers, db.Close)
	} else {
		a.history = store.NewInMemoryStore(cfg.App.MaxHistory)
	}
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warnf("closing: %v", err)
		}
	}
}

func (a *app) serve(ctx context.Context) error {
	start := time.Now()
	kb := a.knowledge.Get(ctx)
	log.Infof("knowledge base ready: %d characters (cached=%t) in %v", len(kb.Text), kb.Cached, time.Since(start))

	if err := a.watchCache(ctx); err != nil {
		log.Warnf("cache watcher disabled: %v", err)
	}

	server := httpserver.NewServer(a.answers, a.knowledge, a.history, a.llm, httpserver.Options{
		Addr:     a.cfg.App.HTTPAddr,
		Title:    a.cfg.App.Title,
		Subtitle: a.cfg.App.Subtitle,
		Model:    a.llm.Model(),
	})
	return server.Start(ctx)
}

// watchCache invalidates the held knowledge base whenever the cache file is deleted.
func (a *app) watchCache(ctx context.Context) error {
	if err := os.MkdirAll(a.cache.Dir(), 0o755); err != nil {
		return err
	}
	watcher, err := filewatcher.NewFSNotifyWatcher(loader.DefaultFileName)
	if err != nil {
		return err
	}
	events, err := watcher.Watch(ctx, a.cache.Dir())
	if err != nil {
		watcher.Stop()
		return err
	}
	a.closers = append(a.closers, watcher.Stop)

	go func() {
		for ev := range events {
			if ev.Operation != ports.FileDeleted {
				continue
			}
			log.Infof("cache file %s %s, knowledge base will reload on next query", ev.Path, ev.Operation)
			a.knowledge.Invalidate()
		}
	}()
	return nil
}

func (a *app) chat(ctx context.Context, session string) error {
	a.knowledge.Get(ctx)

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		a.Close()
		os.Exit(0)
	}()

	chat := cli.NewChat(a.answers, a.history, os.Stdin, os.Stdout, cli.Options{
		Title:     a.cfg.App.Title,
		Subtitle:  a.cfg.App.Subtitle,
		Model:     a.llm.Model(),
		SessionID: session,
	})
	return chat.Run(ctx)
}

func (a *app) report(ctx context.Context, path string, queries []string) error {
	kb := a.knowledge.Get(ctx)
	if kb.Empty() {
		return errors.New("knowledge base is empty, nothing to report")
	}

	err := report.WriteDocx(path, report.KnowledgeReport{
		Title:       a.cfg.App.Title,
		Subtitle:    "Knowledge Base Report",
		GeneratedAt: time.Now(),
		CachePath:   a.cache.Path(),
		KB:          kb,
		ChunkCount:  len(a.scorer.SplitChunks(kb.Text)),
		Results:     report.Evaluate(a.scorer, kb.Text, queries, a.cfg.RAG.TopK),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}

func (a *app) score(ctx context.Context, path string, queries []string) error {
	kb := a.knowledge.Get(ctx)
	if err := report.WriteScoreWorkbook(path, report.Evaluate(a.scorer, kb.Text, queries, a.cfg.RAG.TopK)); err != nil {
		return err
	}
	fmt.Printf("Scores for %d queries written to %s\n", len(queries), path)
	return nil
}

func splitQueries(raw string) []string {
	var queries []string
	for _, q := range strings.Split(raw, ";") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return report.DefaultQueries
	}
	return queries
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
