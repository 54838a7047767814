package extract

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

const (
	wordsPerMinute   = 200
	minContentLength = 100
	maxImageDim      = 8192
)

// Generic scrapes metadata tags, favicon, word count and image dimensions
// from a page's HTML. It is the last stage of the cascade and always
// returns a record.
type Generic struct {
	pages PageFetcher
	log   logrus.FieldLogger
}

// NewGeneric creates the fallback scraper on top of pages.
func NewGeneric(pages PageFetcher, logger logrus.FieldLogger) *Generic {
	return &Generic{pages: pages, log: logger.WithField("component", "scraper")}
}

// Extract returns empty metadata when the page cannot be fetched.
func (g *Generic) Extract(ctx context.Context, rawURL string) domain.ExtractedMetadata {
	log := g.log.WithField("url", rawURL)
	empty := domain.ExtractedMetadata{EnrichmentSource: domain.SourceMetascraper}

	page, err := g.pages.FetchPage(ctx, rawURL)
	if err != nil {
		var httpErr *HTTPError
		switch {
		case errors.As(err, &httpErr):
			log.WithField("status", httpErr.StatusCode).Warn("Failed to fetch URL for metadata")
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("Metadata extraction timed out")
		default:
			log.WithError(err).Error("Metadata extraction failed")
		}
		return empty
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		log.WithError(err).Error("Failed to parse page HTML")
		return empty
	}

	md := ScrapeDocument(doc, rawURL)
	md.EnrichmentSource = domain.SourceMetascraper
	return md
}

// ScrapeDocument extracts metadata from a parsed page. pageURL resolves
// relative links. doc is modified: boilerplate elements are removed while
// counting words.
func ScrapeDocument(doc *goquery.Document, pageURL string) domain.ExtractedMetadata {
	base, _ := url.Parse(pageURL)

	md := domain.ExtractedMetadata{
		Title:       domain.Str(firstNonEmpty(metaContent(doc, "og:title", "twitter:title", "title"), text(doc, "title"), text(doc, "h1"))),
		Description: domain.Str(firstNonEmpty(metaContent(doc, "og:description", "twitter:description", "description"), itemprop(doc, "description"))),
		ImageURL:    domain.Str(resolve(base, firstNonEmpty(metaContent(doc, "og:image", "og:image:url", "og:image:secure_url", "twitter:image", "twitter:image:src"), attr(doc, `link[rel="image_src"]`, "href")))),
		Author:      domain.Str(scrapeAuthor(doc)),
		PublishedAt: domain.Str(firstNonEmpty(metaContent(doc, "article:published_time", "og:published_time", "date", "pubdate", "dc.date"), itemprop(doc, "datePublished"), attr(doc, "time[datetime]", "datetime"))),
		SiteName:    domain.Str(firstNonEmpty(metaContent(doc, "og:site_name", "application-name", "publisher"), itemprop(doc, "publisher"))),
		FaviconURL:  domain.Str(Favicon(doc, base)),
	}
	md.ImageWidth, md.ImageHeight = ImageDimensions(doc)

	words := WordCount(doc)
	md.WordCount = &words
	rt := ReadingTime(words)
	md.ReadingTime = &rt
	return md
}

// metaContent returns the first non-empty content of a <meta> whose
// property or name is one of keys, tried in order.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, k := range keys {
		sel := `meta[property="` + k + `"], meta[name="` + k + `"]`
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, _ := s.Attr("content"); strings.TrimSpace(v) != "" {
				found = strings.TrimSpace(v)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func itemprop(doc *goquery.Document, prop string) string {
	s := doc.Find(`[itemprop="` + prop + `"]`).First()
	if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := s.Attr("datetime"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return collapse(s.Text())
}

func text(doc *goquery.Document, sel string) string {
	return collapse(doc.Find(sel).First().Text())
}

func attr(doc *goquery.Document, sel, name string) string {
	v, _ := doc.Find(sel).First().Attr(name)
	return strings.TrimSpace(v)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// scrapeAuthor skips values that are profile links rather than names.
func scrapeAuthor(doc *goquery.Document) string {
	candidates := []string{
		metaContent(doc, "author", "article:author", "twitter:creator"),
		itemprop(doc, "author"),
		text(doc, `[rel="author"]`),
	}
	for _, c := range candidates {
		if c != "" && !strings.HasPrefix(c, "http://") && !strings.HasPrefix(c, "https://") {
			return c
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

var faviconSelectors = []string{
	`link[rel="icon"][type="image/png"]`,
	`link[rel="icon"][type="image/svg+xml"]`,
	`link[rel="apple-touch-icon"]`,
	`link[rel="shortcut icon"]`,
	`link[rel="icon"]`,
}

// Favicon returns the first declared icon resolved against the page origin,
// or {origin}/favicon.ico.
func Favicon(doc *goquery.Document, pageURL *url.URL) string {
	if pageURL == nil || pageURL.Host == "" {
		return ""
	}
	origin := &url.URL{Scheme: pageURL.Scheme, Host: pageURL.Host}

	for _, sel := range faviconSelectors {
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		return origin.ResolveReference(ref).String()
	}
	return origin.String() + "/favicon.ico"
}

var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	".post-content",
	".entry-content",
}

// WordCount counts whitespace-separated words in the main content area.
// Boilerplate elements are removed from doc first. When no content area
// has at least 100 characters the whole body is counted.
func WordCount(doc *goquery.Document) int {
	doc.Find("script, style, nav, header, footer, aside").Remove()

	var best string
	for _, sel := range contentSelectors {
		if t := doc.Find(sel).Text(); len([]rune(t)) > len([]rune(best)) {
			best = t
		}
	}
	if len([]rune(best)) < minContentLength {
		best = doc.Find("body").Text()
	}
	return len(strings.Fields(best))
}

// ReadingTime is minutes at 200 words per minute, at least 1.
func ReadingTime(words int) int {
	return max(1, int(math.Ceil(float64(words)/wordsPerMinute)))
}

// ImageDimensions reads og:image:width/height, then the twitter:image pair.
// A pair is used only when both values are within [1, 8192].
func ImageDimensions(doc *goquery.Document) (width, height *int) {
	pairs := [][2]string{
		{`meta[property="og:image:width"]`, `meta[property="og:image:height"]`},
		{`meta[name="twitter:image:width"]`, `meta[name="twitter:image:height"]`},
	}
	for _, p := range pairs {
		w, wok := dimension(attr(doc, p[0], "content"))
		h, hok := dimension(attr(doc, p[1], "content"))
		if wok && hok {
			return &w, &h
		}
	}
	return nil, nil
}

// dimension parses a leading integer the way browsers read "1200px".
func dimension(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 1 || n > maxImageDim {
		return 0, false
	}
	return n, true
}
