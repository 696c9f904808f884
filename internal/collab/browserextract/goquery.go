// Package browserextract implements two BrowserExtractor strategies: a
// lightweight HTTP+goquery fetcher for pages that do not require a live
// browser session, and a go-rod driver that reads the DOM of an already
// open tab over the Chrome DevTools protocol. Both are best-effort and
// respect the caller's context deadline.
package browserextract

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/normanking/aura-orchestrator/internal/types"
)

// HTTPExtractor fetches ApplicationInfo.Name as a URL and extracts the
// page's visible text with goquery. It is the simpler of the two
// BrowserExtractor implementations and does not require a live CDP
// connection, at the cost of missing any content rendered by JavaScript.
type HTTPExtractor struct {
	Client *http.Client
}

// NewHTTPExtractor returns an HTTPExtractor using http.DefaultClient when
// client is nil.
func NewHTTPExtractor(client *http.Client) *HTTPExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExtractor{Client: client}
}

// ExtractText fetches app.Name as a URL and returns the concatenated,
// whitespace-normalized text of the document body.
func (e *HTTPExtractor) ExtractText(ctx context.Context, app types.ApplicationInfo) (string, error) {
	if app.Name == "" {
		return "", fmt.Errorf("browserextract: no URL available on ApplicationInfo.Name")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.Name, nil)
	if err != nil {
		return "", fmt.Errorf("browserextract: building request: %w", err)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("browserextract: fetching %q: %w", app.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("browserextract: %q returned status %d", app.Name, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("browserextract: parsing HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(strings.TrimSpace(s.Text()))
	})

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return "", fmt.Errorf("browserextract: extracted empty text from %q", app.Name)
	}
	return text, nil
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
