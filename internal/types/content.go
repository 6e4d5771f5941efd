package types

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Content is the raw content retrieved for one identifier.
type Content struct {
	// ID is the identifier the content was fetched for.
	ID string

	// URL is the target that was requested.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers.
	Headers http.Header

	// Body is the decoded response body.
	Body []byte

	// ContentType is the MIME type of the response.
	ContentType string

	// FinalURL is the URL after any redirects.
	FinalURL string

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when the content was received.
	FetchedAt time.Time

	doc *goquery.Document
}

// NewContent creates Content from an http.Response whose body has already
// been read and decoded.
func NewContent(id, target string, httpResp *http.Response, body []byte, duration time.Duration) *Content {
	finalURL := target
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Content{
		ID:            id,
		URL:           target,
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// NewBrowserContent creates Content from headless browser output.
func NewBrowserContent(id, target string, body []byte, finalURL string, duration time.Duration) *Content {
	return &Content{
		ID:            id,
		URL:           target,
		StatusCode:    http.StatusOK,
		Headers:       make(http.Header),
		Body:          body,
		ContentType:   "text/html",
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// Document returns a parsed goquery document, lazily initializing it.
func (c *Content) Document() (*goquery.Document, error) {
	if c.doc != nil {
		return c.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(c.Body))
	if err != nil {
		return nil, err
	}
	c.doc = doc
	return doc, nil
}

// IsJSON reports whether the content looks like a JSON document.
func (c *Content) IsJSON() bool {
	if strings.Contains(c.ContentType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(c.Body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// BaseURL returns the URL relative links should be resolved against.
func (c *Content) BaseURL() *url.URL {
	for _, raw := range []string{c.FinalURL, c.URL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil {
			return u
		}
	}
	return nil
}
