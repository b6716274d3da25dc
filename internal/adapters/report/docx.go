package report

import (
	"fmt"
	"strings"

	"github.com/gomutex/godocx"
)

const excerptLength = 400

// WriteDocx writes the knowledge base report to path.
func WriteDocx(path string, r KnowledgeReport) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	if _, err := doc.AddHeading(r.Title, 0); err != nil {
		return fmt.Errorf("adding title: %w", err)
	}
	if r.Subtitle != "" {
		if _, err := doc.AddHeading(r.Subtitle, 1); err != nil {
			return fmt.Errorf("adding subtitle: %w", err)
		}
	}

	info := doc.AddParagraph("")
	info.AddText("Generated: ").Bold(true)
	info.AddText(r.GeneratedAt.Format("2006-01-02 15:04"))
	if r.CachePath != "" {
		info = doc.AddParagraph("")
		info.AddText("Cache file: ").Bold(true)
		info.AddText(r.CachePath)
	}

	if _, err := doc.AddHeading("1. Knowledge Base", 2); err != nil {
		return err
	}
	origin := "built from sources"
	if r.KB.Cached {
		origin = "loaded from cache"
	}
	doc.AddParagraph(fmt.Sprintf("%d characters, %d scorable chunks, %s.",
		len([]rune(r.KB.Text)), r.ChunkCount, origin))
	for _, src := range r.KB.Sources {
		doc.AddParagraph(fmt.Sprintf("%s: %s (%d characters)", src.Kind, src.Origin, len([]rune(src.Text)))).Style("List Bullet")
	}

	if _, err := doc.AddHeading("2. Sample Retrieval", 2); err != nil {
		return err
	}
	for i, res := range r.Results {
		if _, err := doc.AddHeading(fmt.Sprintf("2.%d %s", i+1, res.Query), 3); err != nil {
			return err
		}
		doc.AddParagraph("Query terms: " + strings.Join(res.Terms, ", "))
		if len(res.Chunks) == 0 {
			doc.AddParagraph("No chunk matched this query.")
			continue
		}
		for _, ch := range res.Chunks {
			p := doc.AddParagraph("")
			p.AddText(fmt.Sprintf("Score %d (chunk %d): ", ch.Score, ch.Position)).Bold(true)
			p.AddText(truncate(ch.Content, excerptLength))
		}
	}

	if err := doc.SaveTo(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
