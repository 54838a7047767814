// Package extract resolves a URL into normalized metadata through an ordered
// cascade of platform extractors and a generic page scraper.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// BrowserUserAgent is sent on every page fetch so sites serve their
	// regular HTML rather than a bot variant.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

	maxBodyBytes = 10 << 20
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func ok(status int) bool { return status >= 200 && status < 300 }

// getJSON issues a GET bounded by timeout and decodes a 2xx JSON body into out.
func getJSON(ctx context.Context, client Doer, timeout time.Duration, rawURL string, header http.Header, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// probe reports whether a HEAD request to rawURL answers 2xx within timeout.
func probe(ctx context.Context, client Doer, timeout time.Duration, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return ok(resp.StatusCode)
}

// Page is a fetched HTML document.
type Page struct {
	// URL is the address after redirects.
	URL  string
	HTML string
}

// PageFetcher loads the HTML behind a URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches pages with a plain GET and browser-like headers.
// Redirects are followed by the client.
type HTTPFetcher struct {
	client  Doer
	timeout time.Duration
	header  http.Header
}

// NewHTTPFetcher returns a fetcher sending the full browser header set.
func NewHTTPFetcher(client Doer, timeout time.Duration) *HTTPFetcher {
	// Accept-Encoding is left to the transport so it can decompress.
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return &HTTPFetcher{client: client, timeout: timeout, header: h}
}

// newDiscoveryFetcher sends only a user agent and a plain HTML accept header.
func newDiscoveryFetcher(client Doer, timeout time.Duration) *HTTPFetcher {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html")
	return &HTTPFetcher{client: client, timeout: timeout, header: h}
}

// FetchPage implements PageFetcher.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = f.header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Page{URL: final, HTML: string(body)}, nil
}
