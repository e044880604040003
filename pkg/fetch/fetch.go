package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	// DefaultUserAgent is sent with every request; some sites refuse clients
	// that do not look like a browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout   = 30 * time.Second

	// maxResponseSize limits the response body to 10 MB.
	maxResponseSize = 10 * 1024 * 1024
)

// Fetcher downloads pages and converts them to Markdown.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the client. Its timeout is left as configured.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns its main content as Markdown.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %q: must start with http:// or https://", rawURL)
	}

	body, err := f.get(ctx, pageURL.String())
	if err != nil {
		return "", err
	}
	return ToMarkdown(body, pageURL)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ToMarkdown reduces an HTML page to its main content and renders it as
// Markdown without blank lines.
func ToMarkdown(rawHTML []byte, pageURL *url.URL) (string, error) {
	cleaned, err := stripScripts(rawHTML)
	if err != nil {
		return "", err
	}

	content := cleaned
	article, err := readability.FromReader(strings.NewReader(cleaned), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		content = article.Content
	}

	domain := ""
	if pageURL != nil {
		domain = pageURL.Host
	}
	markdown, err := md.NewConverter(domain, true, nil).ConvertString(content)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	return dropBlankLines(markdown), nil
}

// stripScripts removes script, style and noscript elements.
func stripScripts(rawHTML []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return html, nil
}

func dropBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
