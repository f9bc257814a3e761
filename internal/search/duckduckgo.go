// Package search provides the web search tool used by the planning pipelines.
package search

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FlyAIBox/tripflow/internal/log"
)

// Default DuckDuckGo configuration values.
const (
	DefaultBaseURL    = "https://html.duckduckgo.com/html/"
	DefaultMaxResults = 5
	DefaultRegion     = "wt-wt"
	DefaultTimeout    = 20 * time.Second
)

// Result is a single web search result.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Searcher runs web searches. Implemented by Client, faked in tests.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ClientConfig is the configuration for the DuckDuckGo client.
type ClientConfig struct {
	BaseURL    string
	MaxResults int
	Region     string
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "search.DuckDuckGo"})
	return nil
}

// Client searches the web through the DuckDuckGo HTML endpoint. It needs
// no API key.
type Client struct {
	baseURL    string
	maxResults int
	region     string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a new DuckDuckGo client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		region:     cfg.Region,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

// Search runs a query and returns up to MaxResults results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", c.region)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "tripflow/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	results := parseResults(string(body), c.maxResults)
	c.logger.Debugf("Search %q returned %d results", query, len(results))

	return results, nil
}

// parseResults extracts results from the DuckDuckGo HTML response. Each
// result is an anchor with class "result__a" followed by a snippet with
// class "result__snippet".
func parseResults(page string, max int) []Result {
	var results []Result

	remaining := page
	for len(results) < max {
		anchor, rest, ok := cutTag(remaining, `class="result__a"`)
		if !ok {
			break
		}

		r := Result{
			Title: anchor.text,
			URL:   anchor.href,
		}

		// Snippet, if present, follows the result anchor.
		if snippet, snippetRest, ok := cutTag(rest, `class="result__snippet"`); ok {
			r.Snippet = snippet.text
			rest = snippetRest
		}

		if r.Title != "" {
			results = append(results, r)
		}
		remaining = rest
	}

	return results
}

type tagContent struct {
	text string
	href string
}

// cutTag finds the first tag containing marker and returns its inner text
// (tags stripped), its href attribute when present, and the rest of the page.
func cutTag(page, marker string) (tagContent, string, bool) {
	idx := strings.Index(page, marker)
	if idx < 0 {
		return tagContent{}, "", false
	}

	// Back up to the tag opening to read attributes like href.
	tagStart := strings.LastIndex(page[:idx], "<")
	if tagStart < 0 {
		return tagContent{}, "", false
	}
	tagEnd := strings.Index(page[idx:], ">")
	if tagEnd < 0 {
		return tagContent{}, "", false
	}
	tagEnd += idx

	openTag := page[tagStart:tagEnd]
	href := extractAttr(openTag, "href")

	// Results and snippets are anchors, and may contain nested markup
	// like <b> around the query terms, so close at the anchor end.
	closeIdx := strings.Index(page[tagEnd:], "</a>")
	if closeIdx < 0 {
		closeIdx = strings.Index(page[tagEnd:], "</")
	}
	if closeIdx < 0 {
		return tagContent{}, "", false
	}
	closeIdx += tagEnd

	inner := stripTags(page[tagEnd+1 : closeIdx])

	return tagContent{text: inner, href: href}, page[closeIdx:], true
}

// extractAttr extracts an attribute value from a tag string.
func extractAttr(tag, attr string) string {
	needle := attr + `="`
	idx := strings.Index(tag, needle)
	if idx < 0 {
		return ""
	}
	start := idx + len(needle)
	end := strings.Index(tag[start:], `"`)
	if end < 0 {
		return ""
	}
	return html.UnescapeString(tag[start : start+end])
}

// stripTags removes markup and unescapes HTML entities from a fragment.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}
