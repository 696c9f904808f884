package browserextract

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/normanking/aura-orchestrator/internal/types"
)

// CDPExtractor reads the rendered DOM of an already-running browser over
// the Chrome DevTools Protocol. Unlike HTTPExtractor it sees
// JavaScript-rendered content, at the cost of requiring a live,
// CDP-reachable browser instance.
type CDPExtractor struct {
	ControlURL string
}

// NewCDPExtractor returns a CDPExtractor that connects to the browser at
// controlURL (a ws:// DevTools debugger URL) on each call.
func NewCDPExtractor(controlURL string) *CDPExtractor {
	return &CDPExtractor{ControlURL: controlURL}
}

// ExtractText connects to the foreground browser, finds the page matching
// app.Name (its URL or title), and returns the body's visible text.
func (e *CDPExtractor) ExtractText(ctx context.Context, app types.ApplicationInfo) (string, error) {
	if e.ControlURL == "" {
		return "", fmt.Errorf("browserextract: no CDP control URL configured")
	}

	browser := rod.New().ControlURL(e.ControlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("browserextract: connecting to browser: %w", err)
	}
	defer browser.Close()

	page, err := findActivePage(browser, app.Name)
	if err != nil {
		return "", fmt.Errorf("browserextract: locating active page: %w", err)
	}

	body, err := page.Element("body")
	if err != nil {
		return "", fmt.Errorf("browserextract: locating document body: %w", err)
	}

	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("browserextract: reading body text: %w", err)
	}

	text = normalizeWhitespace(text)
	if text == "" {
		return "", fmt.Errorf("browserextract: extracted empty text via CDP")
	}
	return text, nil
}

// findActivePage returns the first open page whose URL contains hint or
// whose title equals hint. When hint is empty or no page matches, it
// returns the browser's first page.
func findActivePage(browser *rod.Browser, hint string) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no open pages")
	}
	if hint == "" {
		return pages[0], nil
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.Contains(info.URL, hint) || info.Title == hint {
			return p, nil
		}
	}
	return pages[0], nil
}
