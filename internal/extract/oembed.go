package extract

import (
	"bytes"
	"context"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

// OEmbedProvider is an oEmbed endpoint known ahead of time.
type OEmbedProvider struct {
	Name     string
	Pattern  *regexp.Regexp
	Endpoint string
}

// DefaultOEmbedProviders lists providers whose endpoint needs no discovery.
func DefaultOEmbedProviders() []OEmbedProvider {
	return []OEmbedProvider{
		{"Vimeo", regexp.MustCompile(`vimeo\.com/(\d+)`), "https://vimeo.com/api/oembed.json"},
		{"Spotify", regexp.MustCompile(`spotify\.com/(track|album|playlist|episode|show)`), "https://open.spotify.com/oembed"},
		{"SoundCloud", regexp.MustCompile(`soundcloud\.com/`), "https://soundcloud.com/oembed"},
		{"Instagram", regexp.MustCompile(`instagram\.com/(p|reel|tv)/`), "https://api.instagram.com/oembed"},
		{"TikTok", regexp.MustCompile(`tiktok\.com/@[\w.-]+/video/\d+`), "https://www.tiktok.com/oembed"},
	}
}

// OEmbed resolves a URL through a known provider table, falling back to
// endpoint discovery from the page's <link rel="alternate"> tags.
type OEmbed struct {
	client    Doer
	discovery PageFetcher
	timeout   time.Duration
	log       logrus.FieldLogger

	// Providers is overridable for tests.
	Providers []OEmbedProvider
}

// NewOEmbed creates an oEmbed extractor.
func NewOEmbed(client Doer, timeout time.Duration, logger logrus.FieldLogger) *OEmbed {
	return &OEmbed{
		client:    client,
		discovery: newDiscoveryFetcher(client, timeout),
		timeout:   timeout,
		log:       logger.WithField("component", "oembed"),
		Providers: DefaultOEmbedProviders(),
	}
}

// flexFloat accepts both 125 and "125"; providers disagree on the type.
// Unparseable values decode as zero.
type flexFloat float64

func (n *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	*n = flexFloat(f)
	return nil
}

type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = flexInt(f)
	return nil
}

type oEmbedResponse struct {
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	AuthorName      string    `json:"author_name"`
	ProviderName    string    `json:"provider_name"`
	ProviderURL     string    `json:"provider_url"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ThumbnailWidth  flexInt   `json:"thumbnail_width"`
	ThumbnailHeight flexInt   `json:"thumbnail_height"`
	Duration        flexFloat `json:"duration"`
}

// Applies implements Extractor. Any URL may advertise an oEmbed endpoint.
func (o *OEmbed) Applies(string) bool { return true }

// Extract implements Extractor.
func (o *OEmbed) Extract(ctx context.Context, rawURL string) *domain.ExtractedMetadata {
	log := o.log.WithField("url", rawURL)

	endpoint, providerName := o.knownEndpoint(rawURL)
	if endpoint == "" {
		endpoint = o.discover(ctx, rawURL)
	}
	if endpoint == "" {
		return nil
	}

	var data oEmbedResponse
	if err := getJSON(ctx, o.client, o.timeout, endpoint, nil, &data); err != nil {
		log.WithError(err).Debug("oEmbed fetch failed")
		return nil
	}

	md := &domain.ExtractedMetadata{
		Title:       domain.Str(data.Title),
		ImageURL:    domain.Str(data.ThumbnailURL),
		ImageWidth:  domain.Int(int(data.ThumbnailWidth)),
		ImageHeight: domain.Int(int(data.ThumbnailHeight)),
		Author:      domain.Str(data.AuthorName),
		SiteName:    domain.Str(providerName),
	}
	if md.SiteName == nil {
		md.SiteName = domain.Str(data.ProviderName)
	}
	if data.ProviderURL != "" {
		md.FaviconURL = domain.Str(strings.TrimSuffix(data.ProviderURL, "/") + "/favicon.ico")
	}
	if data.Type == "video" && data.Duration > 0 {
		mins := int(math.Ceil(float64(data.Duration) / 60))
		md.ReadingTime = &mins
	}
	return md
}

func (o *OEmbed) knownEndpoint(rawURL string) (endpoint, name string) {
	for _, p := range o.Providers {
		if !p.Pattern.MatchString(rawURL) {
			continue
		}
		u, err := url.Parse(p.Endpoint)
		if err != nil {
			return "", ""
		}
		q := u.Query()
		q.Set("url", rawURL)
		q.Set("format", "json")
		u.RawQuery = q.Encode()
		return u.String(), p.Name
	}
	return "", ""
}

// discover reads the page and returns its advertised JSON oEmbed endpoint.
// XML endpoints are rewritten to ask for JSON.
func (o *OEmbed) discover(ctx context.Context, rawURL string) string {
	page, err := o.discovery.FetchPage(ctx, rawURL)
	if err != nil {
		o.log.WithError(err).WithField("url", rawURL).Debug("oEmbed discovery fetch failed")
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return ""
	}

	href, _ := doc.Find(`link[rel="alternate"][type="application/json+oembed"]`).First().Attr("href")
	if href == "" {
		xmlHref, _ := doc.Find(`link[rel="alternate"][type="text/xml+oembed"]`).First().Attr("href")
		href = strings.Replace(xmlHref, "format=xml", "format=json", 1)
	}
	if href == "" {
		return ""
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	endpoint := base.ResolveReference(ref)
	if strings.Contains(href, "url=") {
		return endpoint.String()
	}
	q := endpoint.Query()
	q.Set("url", rawURL)
	endpoint.RawQuery = q.Encode()
	return endpoint.String()
}
