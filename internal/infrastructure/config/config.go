// Package config loads application settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RAGConfig configures retrieval.
type RAGConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	SimilarityThreshold float64
	MinChunkLength      int
	Expansions          []retrieval.Expansion // nil keeps the built-in table
}

// SourceConfig names the knowledge base sources and cache location.
type SourceConfig struct {
	PDFPath       string
	ScrapeURL     string
	ScrapeEnabled bool
	CacheDir      string
}

// AppConfig configures the shells.
type AppConfig struct {
	Title      string
	Subtitle   string
	MaxHistory int
	HTTPAddr   string
	HistoryDB  string // empty keeps history in memory
	LogLevel   string
}

// Config is the complete application configuration.
type Config struct {
	LLM     LLMConfig
	RAG     RAGConfig
	Sources SourceConfig
	App     AppConfig
}

// Load reads the given .env files (".env" when none), without overriding
// variables already set, then builds the configuration from the environment.
// A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.Debugf("config: %s not loaded: %v", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a variable lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	e := &env{getenv: getenv}

	apiKey := e.str("GROQ_API_KEY", "")
	if apiKey == "" {
		apiKey = e.str("LLM_API_KEY", "")
	}

	cfg := Config{
		LLM: LLMConfig{
			APIKey:      apiKey,
			Model:       e.str("MODEL_NAME", "llama-3.1-8b-instant"),
			BaseURL:     e.str("LLM_BASE_URL", "https://api.groq.com/openai/v1/"),
			Temperature: e.float("LLM_TEMPERATURE", 0.3),
			MaxTokens:   e.int("LLM_MAX_TOKENS", 2048),
			Timeout:     e.duration("LLM_TIMEOUT", 30*time.Second),
		},
		RAG: RAGConfig{
			ChunkSize:           e.int("CHUNK_SIZE", 1000),
			ChunkOverlap:        e.int("CHUNK_OVERLAP", 200),
			TopK:                e.int("TOP_K_RESULTS", retrieval.DefaultMaxChunks),
			SimilarityThreshold: e.float("SIMILARITY_THRESHOLD", 0.25),
			MinChunkLength:      e.int("MIN_CHUNK_LENGTH", retrieval.DefaultMinChunkLength),
		},
		Sources: SourceConfig{
			PDFPath:       e.str("DEFAULT_PDF_PATH", "reference/Academic-Policy-Manual-for-Students2.pdf"),
			ScrapeURL:     e.str("SCRAPE_URL", "https://iqra.edu.pk/iu-policies/"),
			ScrapeEnabled: e.bool("SCRAPE_ENABLED", true),
			CacheDir:      e.str("CACHE_DIR", "data/cache"),
		},
		App: AppConfig{
			Title:      e.str("APP_TITLE", "Z.M.ai"),
			Subtitle:   e.str("APP_SUBTITLE", "RAG-based Academic Policy Assistant"),
			MaxHistory: e.int("MAX_HISTORY", 50),
			HTTPAddr:   e.str("HTTP_ADDR", ":8080"),
			HistoryDB:  e.str("HISTORY_DB", ""),
			LogLevel:   e.str("LOG_LEVEL", log.LevelInfo),
		},
	}

	if raw := e.str("RETRIEVAL_EXPANSIONS", ""); raw != "" {
		exps, err := ParseExpansions(raw)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("RETRIEVAL_EXPANSIONS: %w", err))
		}
		cfg.RAG.Expansions = exps
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. A missing API key is only a warning: the
// assistant answers with a configuration notice instead.
func (c Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 {
		errs = append(errs, errors.New("CHUNK_OVERLAP must not be negative"))
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, errors.New("CHUNK_OVERLAP must be less than CHUNK_SIZE"))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("SIMILARITY_THRESHOLD must be between 0 and 1"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, errors.New("TOP_K_RESULTS must be positive"))
	}
	if c.RAG.MinChunkLength <= 0 {
		errs = append(errs, errors.New("MIN_CHUNK_LENGTH must be positive"))
	}
	if c.App.MaxHistory <= 0 {
		errs = append(errs, errors.New("MAX_HISTORY must be positive"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
	}
	if c.LLM.APIKey == "" {
		log.Warnf("GROQ_API_KEY not configured")
	}
	return errors.Join(errs...)
}

// ScorerOptions translates the retrieval settings into scorer options.
func (c Config) ScorerOptions() []retrieval.Option {
	return []retrieval.Option{
		retrieval.WithMinChunkLength(c.RAG.MinChunkLength),
		retrieval.WithExpansions(c.RAG.Expansions),
	}
}

// ParseExpansions reads a synonym table written as
// "attendance=present|absent;grade=gpa|cgpa|mark".
func ParseExpansions(raw string) ([]retrieval.Expansion, error) {
	var exps []retrieval.Expansion
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		term, related, ok := strings.Cut(entry, "=")
		term = strings.TrimSpace(term)
		if !ok || term == "" {
			return nil, fmt.Errorf("entry %q: want term=word|word", entry)
		}

		var words []string
		for _, w := range strings.Split(related, "|") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("entry %q: no related words", entry)
		}
		exps = append(exps, retrieval.Expansion{Term: term, Related: words})
	}
	return exps, nil
}

// env reads typed values and collects parse errors.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go durations ("45s") or plain seconds ("45").
func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
