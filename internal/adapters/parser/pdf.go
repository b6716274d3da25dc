// Package parser provides document parsing adapters.
// Clean Architecture: Adapter implementing ports.DocumentParser.
// Text extraction is delegated to github.com/ledongthuc/pdf.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageMarker prefixes the text of every PDF page.
const PageMarker = "--- PDF Page %d ---"

// PDFParser implements ports.DocumentParser for PDF files.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts text from PDF bytes.
func (p *PDFParser) Parse(ctx context.Context, data []byte, filename string) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing %s: %v", filename, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filename, err)
	}
	return extractPages(ctx, rdr)
}

// ParseFile extracts text from a PDF on disk.
func (p *PDFParser) ParseFile(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return extractPages(ctx, rdr)
}

// SupportedFormats returns formats this parser handles.
func (p *PDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// extractPages concatenates page texts, each preceded by its page marker.
// Pages without a text layer are skipped.
func extractPages(ctx context.Context, rdr *pdf.Reader) (string, error) {
	var pages []string
	for i := 1; i <= rdr.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf(PageMarker, i)+"\n"+text)
	}
	return strings.Join(pages, "\n\n"), nil
}
