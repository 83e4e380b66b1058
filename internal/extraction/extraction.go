// Package extraction turns a single source (a posting URL or pasted text)
// into a posting snapshot.
package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "spigell/hh-checkpoint"
	maxBodySize      = 5 << 20
)

// Error describes a failed fetch of a source URL.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type Extractor struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// New creates an Extractor. A nil client gets DefaultTimeout.
func New(client *http.Client, userAgent string, logger *zap.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, userAgent: userAgent, logger: logger}
}

// IsURL reports whether source should be fetched rather than read as text.
func IsURL(source string) bool {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Extract fetches source when it is a URL and parses it as posting text otherwise.
func (e *Extractor) Extract(ctx context.Context, source string) (dedup.PostingSnapshot, error) {
	if IsURL(source) {
		return e.FromURL(ctx, strings.TrimSpace(source))
	}
	return FromText(source), nil
}

// FromURL downloads a posting page and extracts its fields.
func (e *Extractor) FromURL(ctx context.Context, rawURL string) (dedup.PostingSnapshot, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: "invalid url", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: "build request", Cause: err}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	e.logger.Debug("fetching posting", zap.String("url", rawURL))

	resp, err := e.client.Do(req)
	if err != nil {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: fmt.Sprintf("bad status: %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: "read body", Cause: err}
	}

	snapshot, err := parsePage(body, pageURL)
	if err != nil {
		return dedup.PostingSnapshot{}, &Error{URL: rawURL, Message: "parse page", Cause: err}
	}
	snapshot.URL = rawURL

	return snapshot, nil
}

func parsePage(body []byte, pageURL *url.URL) (dedup.PostingSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return dedup.PostingSnapshot{}, err
	}

	snapshot := dedup.PostingSnapshot{
		Title: firstText(doc,
			`[data-qa="vacancy-title"]`,
			`h1`,
		),
		Company: firstText(doc,
			`[data-qa="vacancy-company-name"]`,
		),
		Location: firstText(doc,
			`[data-qa="vacancy-view-location"]`,
			`[data-qa="vacancy-view-raw-address"]`,
		),
		Description: firstText(doc,
			`[data-qa="vacancy-description"]`,
		),
	}

	if snapshot.Title == "" {
		snapshot.Title = firstNonEmpty(metaContent(doc, "og:title"), collapse(doc.Find("title").First().Text()))
	}
	if snapshot.Company == "" {
		snapshot.Company = metaContent(doc, "og:site_name")
	}

	if snapshot.Description == "" {
		article, err := readability.FromReader(bytes.NewReader(body), pageURL)
		if err == nil {
			snapshot.Description = collapse(article.TextContent)
		}
		if snapshot.Description == "" {
			snapshot.Description = collapse(doc.Find("body").Text())
		}
	}

	return snapshot, nil
}

// PlainText strips markup from an HTML fragment.
func PlainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := collapse(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
