// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - adapters are injected.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// sectionBanner frames the label line of every knowledge base section.
var sectionBanner = strings.Repeat("=", 60)

// KnowledgeSources names where the knowledge base is built from.
type KnowledgeSources struct {
	PDFPath       string
	ScrapeURL     string
	ScrapeEnabled bool
}

// KnowledgeUseCase builds the knowledge base and holds it for the process.
// Safe for concurrent use.
type KnowledgeUseCase struct {
	parser  ports.DocumentParser
	scraper ports.WebScraper
	cache   ports.KnowledgeCache
	sources KnowledgeSources
	now     func() time.Time

	mu     sync.Mutex
	kb     entities.KnowledgeBase
	loaded bool
}

// NewKnowledgeUseCase creates a KnowledgeUseCase with injected adapters.
// A nil parser or scraper disables that source.
func NewKnowledgeUseCase(
	parser ports.DocumentParser,
	scraper ports.WebScraper,
	cache ports.KnowledgeCache,
	sources KnowledgeSources,
) *KnowledgeUseCase {
	return &KnowledgeUseCase{
		parser:  parser,
		scraper: scraper,
		cache:   cache,
		sources: sources,
		now:     time.Now,
	}
}

// Load returns the knowledge base text, reading the cache file when present
// and otherwise building it from the sources. It never fails: unavailable
// sources contribute nothing and are only logged.
func (uc *KnowledgeUseCase) Load(ctx context.Context) string {
	return uc.build(ctx).Text
}

// Get returns the held knowledge base, loading it on first use.
func (uc *KnowledgeUseCase) Get(ctx context.Context) entities.KnowledgeBase {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.loaded {
		uc.kb = uc.build(ctx)
		uc.loaded = true
	}
	return uc.kb
}

// Invalidate drops the held copy; the next Get loads again.
func (uc *KnowledgeUseCase) Invalidate() {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.loaded = false
	uc.kb = entities.KnowledgeBase{}
}

// Loaded reports whether a knowledge base is held in memory.
func (uc *KnowledgeUseCase) Loaded() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.loaded
}

// Refresh deletes the cache file and rebuilds from the sources.
func (uc *KnowledgeUseCase) Refresh(ctx context.Context) (entities.KnowledgeBase, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.cache.Remove(ctx); err != nil {
		return uc.kb, fmt.Errorf("refreshing knowledge base: %w", err)
	}
	uc.kb = uc.build(ctx)
	uc.loaded = true
	return uc.kb, nil
}

// CachePath returns the location of the cache file.
func (uc *KnowledgeUseCase) CachePath() string {
	return uc.cache.Path()
}

func (uc *KnowledgeUseCase) build(ctx context.Context) entities.KnowledgeBase {
	text, err := uc.cache.Read(ctx)
	switch {
	case err == nil:
		log.Infof("knowledge base loaded from cache %s (%d bytes)", uc.cache.Path(), len(text))
		return entities.KnowledgeBase{Text: text, Cached: true, LoadedAt: uc.now()}
	case !errors.Is(err, ports.ErrNotCached):
		log.Warnf("reading knowledge base cache: %v", err)
	}

	var sources []entities.Source
	if src, ok := uc.extractPDF(ctx); ok {
		sources = append(sources, src)
	}
	if src, ok := uc.scrapeWeb(ctx); ok {
		sources = append(sources, src)
	}

	kb := entities.KnowledgeBase{
		Text:     JoinSections(sources),
		Sources:  sources,
		LoadedAt: uc.now(),
	}
	if kb.Empty() {
		log.Warnf("knowledge base is empty: no source produced text")
		return kb
	}

	if err := uc.cache.Write(ctx, kb.Text); err != nil {
		log.Errorf("writing knowledge base cache: %v", err)
	} else {
		log.Infof("knowledge base cached to %s (%d sources)", uc.cache.Path(), len(sources))
	}
	return kb
}

func (uc *KnowledgeUseCase) extractPDF(ctx context.Context) (entities.Source, bool) {
	if uc.parser == nil || uc.sources.PDFPath == "" {
		return entities.Source{}, false
	}
	text, err := uc.parser.ParseFile(ctx, uc.sources.PDFPath)
	if err != nil {
		log.Warnf("PDF source %s unavailable: %v", uc.sources.PDFPath, err)
		return entities.Source{}, false
	}
	if strings.TrimSpace(text) == "" {
		log.Warnf("PDF source %s has no extractable text", uc.sources.PDFPath)
		return entities.Source{}, false
	}
	return entities.Source{
		Kind:   entities.SourcePDF,
		Origin: filepath.Base(uc.sources.PDFPath),
		Text:   text,
	}, true
}

func (uc *KnowledgeUseCase) scrapeWeb(ctx context.Context) (entities.Source, bool) {
	if uc.scraper == nil || !uc.sources.ScrapeEnabled || uc.sources.ScrapeURL == "" {
		return entities.Source{}, false
	}
	text, err := uc.scraper.Scrape(ctx, uc.sources.ScrapeURL)
	if err != nil {
		log.Errorf("scraping %s: %v", uc.sources.ScrapeURL, err)
		return entities.Source{}, false
	}
	if strings.TrimSpace(text) == "" {
		return entities.Source{}, false
	}
	return entities.Source{Kind: entities.SourceWeb, Origin: uc.sources.ScrapeURL, Text: text}, true
}

// Section renders one source under its banner:
//
//	============================================================
//	PDF CONTENT: manual.pdf
//	============================================================
//
//	<text>
func Section(src entities.Source) string {
	return fmt.Sprintf("%s\n%s CONTENT: %s\n%s\n\n%s", sectionBanner, src.Kind, src.Origin, sectionBanner, src.Text)
}

// JoinSections concatenates the rendered sources separated by a blank line.
func JoinSections(sources []entities.Source) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = Section(src)
	}
	return strings.Join(parts, "\n\n")
}
