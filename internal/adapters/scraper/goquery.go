// Package scraper fetches a policy web page and reduces it to plain text.
// Clean Architecture: Adapter implementing ports.WebScraper.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// DefaultUserAgent mimics a desktop browser; some university sites reject Go's default.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultTimeout bounds one page fetch.
	DefaultTimeout = 30 * time.Second
	// MinLineLength is the shortest kept line, in characters.
	MinLineLength = 4

	// boilerplate elements removed before text extraction
	noiseSelector = "script, style, nav, footer, header, aside"
)

// ErrStatus is returned when the server answers with a non-2xx status.
var ErrStatus = errors.New("unexpected http status")

// GoqueryScraper implements ports.WebScraper with net/http and goquery.
type GoqueryScraper struct {
	client    *http.Client
	userAgent string
}

// Option configures a GoqueryScraper.
type Option func(*GoqueryScraper)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *GoqueryScraper) { s.client = c }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *GoqueryScraper) { s.userAgent = ua }
}

// NewGoqueryScraper creates a scraper with a 30 second timeout.
func NewGoqueryScraper(opts ...Option) *GoqueryScraper {
	s := &GoqueryScraper{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape downloads url and returns its visible text, one line per text block.
func (s *GoqueryScraper) Scrape(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetching %s: %w: %d", url, ErrStatus, resp.StatusCode)
	}

	return ExtractText(resp.Body)
}

// ExtractText parses an HTML document, drops boilerplate elements and
// returns the remaining text lines that are at least MinLineLength long.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	var lines []string
	for _, root := range doc.Nodes {
		collectText(root, &lines)
	}
	return strings.Join(lines, "\n"), nil
}

func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		for _, line := range strings.Split(n.Data, "\n") {
			line = strings.TrimSpace(line)
			if utf8.RuneCountInString(line) < MinLineLength {
				continue
			}
			*lines = append(*lines, line)
		}
		return
	}
	if n.Type == html.ElementNode && (n.Data == "noscript" || n.Data == "template") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}
