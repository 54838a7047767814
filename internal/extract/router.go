package extract

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"shelf/internal/config"
	"shelf/internal/domain"
	"shelf/internal/metrics"
)

// Extractor is one platform-specific stage of the cascade. Extract returns
// nil on any failure; it never reports errors to the router.
type Extractor interface {
	Applies(rawURL string) bool
	Extract(ctx context.Context, rawURL string) *domain.ExtractedMetadata
}

// Strategy is a named cascade stage. Name is recorded as the item's
// enrichment source when the stage wins.
type Strategy struct {
	Name      string
	Extractor Extractor
}

// Fallback is the final stage. It always produces a record.
type Fallback interface {
	Extract(ctx context.Context, rawURL string) domain.ExtractedMetadata
}

// Router tries each applicable strategy in order and returns the first
// result. Results are never merged across stages.
type Router struct {
	strategies []Strategy
	fallback   Fallback
	metrics    *metrics.Recorder
	log        logrus.FieldLogger
}

// NewRouter builds a router from explicit stages. rec may be nil.
func NewRouter(strategies []Strategy, fallback Fallback, rec *metrics.Recorder, logger logrus.FieldLogger) *Router {
	return &Router{
		strategies: strategies,
		fallback:   fallback,
		metrics:    rec,
		log:        logger.WithField("component", "extractor"),
	}
}

// Options configures the default cascade.
type Options struct {
	Client        Doer
	Credentials   config.Credentials
	APITimeout    time.Duration
	ScrapeTimeout time.Duration

	// Pages overrides the page fetcher used by the generic scraper, e.g.
	// with a BrowserFetcher.
	Pages PageFetcher
}

// NewDefaultRouter wires YouTube, Twitter and oEmbed ahead of the generic
// scraper.
func NewDefaultRouter(opts Options, rec *metrics.Recorder, logger logrus.FieldLogger) *Router {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	pages := opts.Pages
	if pages == nil {
		pages = NewHTTPFetcher(client, opts.ScrapeTimeout)
	}

	strategies := []Strategy{
		{Name: domain.SourceYouTube, Extractor: NewYouTube(client, opts.Credentials.GoogleAPIKey, opts.APITimeout, logger)},
		{Name: domain.SourceTwitter, Extractor: NewTwitter(client, opts.Credentials.XAPIToken, opts.APITimeout, logger)},
		{Name: domain.SourceOEmbed, Extractor: NewOEmbed(client, opts.APITimeout, logger)},
	}
	return NewRouter(strategies, NewGeneric(pages, logger), rec, logger)
}

// Names lists the stages in the order they are tried, fallback last.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.strategies)+1)
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return append(names, domain.SourceMetascraper)
}

// Extract resolves rawURL to metadata. A failing stage falls through to the
// next one; the fallback guarantees a result.
func (r *Router) Extract(ctx context.Context, rawURL string) domain.ExtractedMetadata {
	for _, s := range r.strategies {
		if !s.Extractor.Applies(rawURL) {
			continue
		}
		md := s.Extractor.Extract(ctx, rawURL)
		if md == nil {
			continue
		}
		r.log.WithFields(logrus.Fields{"url": rawURL, "source": s.Name}).Debug("Extracted metadata")
		md.EnrichmentSource = s.Name
		r.metrics.ExtractionSource(s.Name)
		return *md
	}

	md := r.fallback.Extract(ctx, rawURL)
	md.EnrichmentSource = domain.SourceMetascraper
	r.metrics.ExtractionSource(domain.SourceMetascraper)
	return md
}
