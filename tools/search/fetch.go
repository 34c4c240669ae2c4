package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const (
	pageFetchTimeout = 8 * time.Second
	maxPageBytes     = 1 << 20
)

// enrich fills Excerpt for the first fetchPages results concurrently.
// Fetch failures leave the excerpt empty.
func (t *Tool) enrich(ctx context.Context, results []Result) {
	n := min(t.fetchPages, len(results))
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, pageFetchTimeout)
			defer cancel()
			text, err := t.Fetch(fctx, results[i].URL)
			if err != nil {
				t.logger.Debug("page fetch failed", "url", results[i].URL, "error", err)
				return
			}
			results[i].Excerpt = truncate(text, maxExcerptLen)
		}(i)
	}
	wg.Wait()
}

// Fetch downloads a page and extracts its readable text.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CourierBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return "", fmt.Errorf("no readable text at %s", rawURL)
	}
	return text, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
