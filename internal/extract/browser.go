package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// ErrNoBrowser is returned when no Chromium binary can be found.
var ErrNoBrowser = errors.New("rod browser dependency not found")

// BrowserFetcher renders pages in a headless Chromium so script-built
// markup is visible to the scraper. The browser is launched on first use
// and shared until Close.
type BrowserFetcher struct {
	log     logrus.FieldLogger
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserFetcher creates a browser-backed PageFetcher.
func NewBrowserFetcher(timeout time.Duration, logger logrus.FieldLogger) *BrowserFetcher {
	return &BrowserFetcher{
		log:     logger.WithField("component", "browser_fetcher"),
		timeout: timeout,
	}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	path, exists := launcher.LookPath()
	if !exists {
		return nil, ErrNoBrowser
	}
	u, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	f.log.Info("Headless browser started")
	f.browser = browser
	return browser, nil
}

// FetchPage implements PageFetcher.
func (f *BrowserFetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	log := f.log.WithField("url", rawURL)

	browser, err := f.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing rod page")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("page load timed out for %s: %w", rawURL, pageCtx.Err())
		}
		return nil, fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page HTML: %w", err)
	}

	final := rawURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	log.Debug("Rendered page")
	return &Page{URL: final, HTML: html}, nil
}

// Close shuts the shared browser down, if it was started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
