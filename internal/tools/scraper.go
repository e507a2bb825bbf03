package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ScraperTool fetches a page over plain HTTP and keeps its readable text.
// Use the browser tool for pages that need JavaScript.
type ScraperTool struct {
	UserAgent string
	MaxChars  int
	client    *http.Client
	sanitizer *bluemonday.Policy
}

func NewScraperTool() *ScraperTool {
	return &ScraperTool{
		UserAgent: defaultUserAgent,
		MaxChars:  50000,
		client:    &http.Client{Timeout: 30 * time.Second},
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *ScraperTool) Name() string {
	return "scraper"
}

func (s *ScraperTool) Description() string {
	return "Fetch a webpage and extract the main content as clean, sanitized text (param: url)."
}

func (s *ScraperTool) Kind() Kind {
	return KindRemote
}

func (s *ScraperTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	target, err := pageURL(params)
	if err != nil {
		return "", err
	}

	article, err := s.fetch(ctx, target)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(s.sanitizer.Sanitize(article.TextContent))
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", target)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\nURL: %s\n", article.Title, target)
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", article.Excerpt)
	}
	b.WriteString("\n-- CONTENT --\n")
	b.WriteString(truncate(text, s.MaxChars))
	return b.String(), nil
}

// pageURL takes the url param, or the step query when the planner put the
// address there.
func pageURL(params map[string]string) (*url.URL, error) {
	raw := strings.TrimSpace(params["url"])
	if raw == "" && strings.HasPrefix(params["query"], "http") {
		raw = strings.TrimSpace(params["query"])
	}
	if raw == "" {
		return nil, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", raw)
	}
	return u, nil
}

func (s *ScraperTool) fetch(ctx context.Context, target *url.URL) (readability.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return readability.Article{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return readability.Article{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return readability.Article{}, fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, target)
	if err != nil {
		return readability.Article{}, fmt.Errorf("failed to parse article: %w", err)
	}
	return article, nil
}
