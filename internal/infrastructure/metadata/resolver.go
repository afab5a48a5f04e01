// Package metadata resolves an article URL to its title and description by streaming
// the page through an HTML tokenizer.
package metadata

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

const (
	// DefaultTimeout bounds one article fetch including the body scan.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxBodyBytes caps how much of a page is scanned.
	DefaultMaxBodyBytes int64 = 4 << 20

	fallbackTitleRunes = 50
	ellipsis           = "…"
)

// FallbackDescription replaces a description the page does not provide.
const FallbackDescription = "No appropriate description meta tag found in article html; perhaps" +
	" they did something weird like put their tag names in all caps 🤷."

var schemePrefix = regexp.MustCompile(`^https?://(www\.)?`)

// Outcome labels reported to the observer.
const (
	OutcomeResolved = "resolved"
	OutcomeDegraded = "degraded"
)

// Resolver fetches pages through a Fetcher and extracts metadata.
type Resolver struct {
	fetcher      ports.Fetcher
	timeout      time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
	observe      func(outcome string)
}

var _ ports.Resolver = (*Resolver)(nil)

// Option customizes a Resolver.
type Option func(*Resolver)

// WithTimeout overrides the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxBodyBytes overrides the scanned body cap.
func WithMaxBodyBytes(n int64) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBodyBytes = n
		}
	}
}

// WithObserver registers a callback receiving each resolution outcome.
func WithObserver(fn func(outcome string)) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.observe = fn
		}
	}
}

// NewResolver builds a Resolver with a 5s timeout and a 4 MiB scan cap.
func NewResolver(fetcher ports.Fetcher, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		fetcher:      fetcher,
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logger,
		observe:      func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve always returns usable metadata; fetch or parse failures fall back to text
// synthesized from the URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) domain.ArticleMetadata {
	meta := domain.ArticleMetadata{Domain: Domain(rawURL)}

	found, err := r.scan(ctx, rawURL)
	if err != nil {
		r.logger.Warn("fetch article failed", "url", rawURL, "error", err)
	}

	meta.Title = found.Title
	meta.Description = found.Description

	if meta.Title == "" {
		meta.Title = FallbackTitle(rawURL)
		meta.Degraded = true
	}
	if meta.Description == "" {
		meta.Description = FallbackDescription
		meta.Degraded = true
	}

	if meta.Degraded {
		r.logger.Warn("article metadata incomplete", "url", rawURL, "error", domain.ErrResolutionDegraded)
		r.observe(OutcomeDegraded)
	} else {
		r.observe(OutcomeResolved)
	}
	return meta
}

func (r *Resolver) scan(ctx context.Context, rawURL string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, &domain.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.fetcher.Do(req)
	if err != nil {
		return Page{}, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	r.logger.Debug("article response", "url", rawURL, "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	found, err := Extract(io.LimitReader(resp.Body, r.maxBodyBytes))
	if err != nil {
		// Whatever was captured before the body broke off is still usable.
		return found, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return found, nil
}

// Page is the metadata found in an HTML document.
type Page struct {
	Title       string
	Description string
}

// Extract streams HTML tokens from body and collects the page title and description
// without building a DOM. og:title wins over the first <title> element's text. Every
// name="description" or og:description tag overwrites the description captured so far,
// so the last one in the document wins. On a read error the metadata seen so far is
// returned with the error.
func Extract(body io.Reader) (Page, error) {
	z := xhtml.NewTokenizer(body)

	var (
		titleText   strings.Builder
		inTitle     bool
		titleDone   bool
		ogTitle     string
		description string
	)

	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			page := Page{
				Title:       strings.TrimSpace(ogTitle),
				Description: strings.TrimSpace(description),
			}
			if page.Title == "" {
				page.Title = strings.TrimSpace(titleText.String())
			}
			if err := z.Err(); err != nil && err != io.EOF {
				return page, err
			}
			return page, nil

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "title":
				if !titleDone && tt == xhtml.StartTagToken {
					inTitle = true
				}
			case "meta":
				if !hasAttr {
					continue
				}
				tag := metaAttrs(z)
				if tag.content == "" {
					continue
				}
				if tag.name == "description" {
					description = tag.content
				}
				if tag.property == "og:description" {
					description = tag.content
				}
				if tag.property == "og:title" {
					ogTitle = tag.content
				}
			}

		case xhtml.TextToken:
			if inTitle {
				titleText.Write(z.Text())
			}

		case xhtml.EndTagToken:
			name, _ := z.TagName()
			if inTitle && string(name) == "title" {
				inTitle = false
				titleDone = true
			}
		}
	}
}

type metaTag struct {
	name     string
	property string
	content  string
}

func metaAttrs(z *xhtml.Tokenizer) metaTag {
	var tag metaTag
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "name":
			tag.name = string(val)
		case "property":
			tag.property = string(val)
		case "content":
			tag.content = string(val)
		}
		if !more {
			return tag
		}
	}
}

// FallbackTitle renders a URL as a title: scheme and leading www. stripped, cut to 50
// characters, entity-decoded, with an ellipsis appended.
func FallbackTitle(rawURL string) string {
	trimmed := schemePrefix.ReplaceAllString(rawURL, "")
	runes := []rune(trimmed)
	if len(runes) > fallbackTitleRunes {
		runes = runes[:fallbackTitleRunes]
	}
	return html.UnescapeString(string(runes)) + ellipsis
}

// Domain returns the lowercase host of rawURL without a leading www.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
