package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"shelf/internal/config"
	"shelf/internal/domain"
	"shelf/internal/metrics"
)

type stubExtractor struct {
	applies func(string) bool
	result  *domain.ExtractedMetadata
	calls   int
}

func (s *stubExtractor) Applies(u string) bool { return s.applies(u) }

func (s *stubExtractor) Extract(context.Context, string) *domain.ExtractedMetadata {
	s.calls++
	if s.result == nil {
		return nil
	}
	md := *s.result
	return &md
}

type stubFallback struct {
	title string
	calls int
}

func (s *stubFallback) Extract(context.Context, string) domain.ExtractedMetadata {
	s.calls++
	return domain.ExtractedMetadata{Title: domain.Str(s.title)}
}

func always(string) bool { return true }

func TestRouter_FirstSuccessWins(t *testing.T) {
	yt := &stubExtractor{applies: IsYouTubeURL, result: &domain.ExtractedMetadata{Title: domain.Str("video")}}
	oe := &stubExtractor{applies: always, result: &domain.ExtractedMetadata{Title: domain.Str("oembed")}}
	fb := &stubFallback{title: "page"}

	r := NewRouter([]Strategy{{Name: domain.SourceYouTube, Extractor: yt}, {Name: domain.SourceOEmbed, Extractor: oe}}, fb, nil, testLogger())

	md := r.Extract(context.Background(), "https://youtube.com/watch?v=1")
	assert.Equal(t, "video", domain.Deref(md.Title))
	assert.Equal(t, domain.SourceYouTube, md.EnrichmentSource)
	assert.Zero(t, oe.calls)
	assert.Zero(t, fb.calls)
}

func TestRouter_PlatformFailureFallsThrough(t *testing.T) {
	yt := &stubExtractor{applies: IsYouTubeURL}
	tw := &stubExtractor{applies: IsTwitterURL, result: &domain.ExtractedMetadata{Title: domain.Str("tweet")}}
	oe := &stubExtractor{applies: always}
	fb := &stubFallback{title: "page"}

	r := NewRouter([]Strategy{
		{Name: domain.SourceYouTube, Extractor: yt},
		{Name: domain.SourceTwitter, Extractor: tw},
		{Name: domain.SourceOEmbed, Extractor: oe},
	}, fb, nil, testLogger())

	md := r.Extract(context.Background(), "https://youtube.com/watch?v=1")
	assert.Equal(t, "page", domain.Deref(md.Title))
	assert.Equal(t, domain.SourceMetascraper, md.EnrichmentSource)
	assert.Equal(t, 1, yt.calls)
	assert.Zero(t, tw.calls, "twitter must not run for a youtube URL")
	assert.Equal(t, 1, oe.calls)
	assert.Equal(t, 1, fb.calls)
}

func TestRouter_TypeOverridePropagates(t *testing.T) {
	article := domain.TypeArticle
	tw := &stubExtractor{applies: IsTwitterURL, result: &domain.ExtractedMetadata{TypeOverride: &article}}
	r := NewRouter([]Strategy{{Name: domain.SourceTwitter, Extractor: tw}}, &stubFallback{}, nil, testLogger())

	md := r.Extract(context.Background(), "https://x.com/a/status/1")
	assert.Equal(t, domain.SourceTwitter, md.EnrichmentSource)
	if assert.NotNil(t, md.TypeOverride) {
		assert.Equal(t, domain.TypeArticle, *md.TypeOverride)
	}
}

func TestNewDefaultRouter_Order(t *testing.T) {
	r := NewDefaultRouter(Options{APITimeout: time.Second, ScrapeTimeout: time.Second}, nil, testLogger())
	assert.Equal(t, []string{"youtube", "twitter", "oembed", "metascraper"}, r.Names())
}

type hostRewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (h hostRewrite) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme, r.URL.Host, r.Host = h.target.Scheme, h.target.Host, h.target.Host
	return h.next.RoundTrip(r)
}

// A YouTube URL whose extractor yields nothing still reaches the page
// scraper through the real cascade.
func TestNewDefaultRouter_YouTubeFallsThroughToScraper(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`<html><head><title>Scraped</title></head><body></body></html>`))
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	reg := prometheus.NewRegistry()
	r := NewDefaultRouter(Options{
		Client:        &http.Client{Transport: hostRewrite{target: target, next: srv.Client().Transport}},
		Credentials:   config.Credentials{XAPIToken: "unused"},
		APITimeout:    time.Second,
		ScrapeTimeout: time.Second,
	}, metrics.New(reg), testLogger())

	// No video id, so the YouTube stage gives up before any request.
	md := r.Extract(context.Background(), "https://www.youtube.com/feed/trending")
	assert.Equal(t, "Scraped", domain.Deref(md.Title))
	assert.Equal(t, domain.SourceMetascraper, md.EnrichmentSource)

	// oEmbed discovery, then the scraper.
	mu.Lock()
	assert.Equal(t, []string{"/feed/trending", "/feed/trending"}, paths)
	mu.Unlock()

	n, err := testutil.GatherAndCount(reg, "shelf_extraction_source_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
