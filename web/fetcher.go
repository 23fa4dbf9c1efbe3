// Package web fetches pages and extracts readable text for research
// prompts.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = int64(5 * 1024 * 1024)
	maxRedirects       = 10
)

// Fetcher retrieves pages with bounded size and timeout and reduces them
// to readable text
type Fetcher struct {
	Timeout     time.Duration
	MaxBodySize int64
	client      *http.Client
}

// NewFetcher creates a fetcher with sane bounds
func NewFetcher(timeout time.Duration, maxBodySize int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}

	return &Fetcher{
		Timeout:     timeout,
		MaxBodySize: maxBodySize,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// FetchReadable fetches a URL and returns its readable text content
func (f *Fetcher) FetchReadable(ctx context.Context, urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("only http and https schemes are supported")
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "swarm/1.0 (research bot)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.MaxBodySize {
		return "", fmt.Errorf("content exceeds maximum size of %d bytes", f.MaxBodySize)
	}

	return ExtractText(string(body))
}

// ExtractText reduces an HTML document to its readable text: scripts,
// styles and navigation chrome are dropped, block text is joined with
// newlines.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, td, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			lines = append(lines, text)
		}
	})

	// Fall back to the whole body for pages without block structure
	if len(lines) == 0 {
		text := strings.TrimSpace(root.Text())
		if text == "" {
			return "", fmt.Errorf("no readable content found")
		}
		return collapseWhitespace(text), nil
	}

	return strings.Join(lines, "\n"), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
