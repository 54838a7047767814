// Package books looks up book metadata in the Google Books API.
package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shelf/internal/extract"
	"shelf/internal/metrics"
)

const (
	apiBase         = "https://www.googleapis.com/books/v1/volumes"
	maxResults      = "5"
	descriptionMax  = 1000
	permissionHint  = "Google Books API permission denied. Enable the Books API at: https://console.cloud.google.com/apis/library/books.googleapis.com"
	errorBodyLength = 500
)

// ErrPermissionDenied marks a 403 from the API. It ends the lookup since
// retrying with another query cannot fix a misconfigured project.
var ErrPermissionDenied = errors.New("google books: permission denied")

// Metadata is a matched volume.
type Metadata struct {
	Title       string  `json:"title" yaml:"title"`
	Author      *string `json:"author,omitempty" yaml:"author,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	PageCount   *int    `json:"page_count,omitempty" yaml:"page_count,omitempty"`
}

type imageLinks struct {
	ExtraLarge     string `json:"extraLarge"`
	Large          string `json:"large"`
	Medium         string `json:"medium"`
	Small          string `json:"small"`
	Thumbnail      string `json:"thumbnail"`
	SmallThumbnail string `json:"smallThumbnail"`
}

type volumeInfo struct {
	Title       string      `json:"title"`
	Authors     []string    `json:"authors"`
	Description string      `json:"description"`
	PageCount   int         `json:"pageCount"`
	ImageLinks  *imageLinks `json:"imageLinks"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

// Client searches Google Books.
type Client struct {
	http    extract.Doer
	apiKey  string
	timeout time.Duration
	metrics *metrics.Recorder
	log     logrus.FieldLogger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewClient creates a book lookup client. apiKey may be empty; rec may be nil.
func NewClient(httpClient extract.Doer, apiKey string, timeout time.Duration, rec *metrics.Recorder, logger logrus.FieldLogger) *Client {
	return &Client{
		http:    httpClient,
		apiKey:  apiKey,
		timeout: timeout,
		metrics: rec,
		log:     logger.WithField("component", "google_books"),
		BaseURL: apiBase,
	}
}

type strategy struct {
	keywords bool
	withKey  bool
}

// strategies orders the queries: keyword scoped, then plain text, then
// plain text without the key to survive quota exhaustion.
func (c *Client) strategies() []strategy {
	hasKey := c.apiKey != ""
	s := []strategy{{keywords: true, withKey: hasKey}, {keywords: false, withKey: hasKey}}
	if hasKey {
		s = append(s, strategy{keywords: false, withKey: false})
	}
	return s
}

// SearchBook returns the best matching volume for title and optional
// author, or nil when nothing is found.
func (c *Client) SearchBook(ctx context.Context, title string, author *string) *Metadata {
	log := c.log.WithField("title", title)
	if author != nil {
		log = log.WithField("author", *author)
	}

	for _, s := range c.strategies() {
		md, err := c.search(ctx, title, author, s)
		if errors.Is(err, ErrPermissionDenied) {
			c.metrics.BookLookup(metrics.OutcomeDenied)
			return nil
		}
		if err != nil {
			log.WithError(err).WithField("keywords", s.keywords).Warn("Google Books API request failed")
			continue
		}
		if md != nil {
			c.metrics.BookLookup(metrics.OutcomeFound)
			return md
		}
	}
	c.metrics.BookLookup(metrics.OutcomeNotFound)
	return nil
}

// Query builds the q parameter for one strategy.
func Query(title string, author *string, keywords bool) string {
	hasAuthor := author != nil && *author != ""
	switch {
	case keywords && hasAuthor:
		return "intitle:" + title + "+inauthor:" + *author
	case keywords:
		return "intitle:" + title
	case hasAuthor:
		return title + " " + *author
	}
	return title
}

func (c *Client) search(ctx context.Context, title string, author *string, s strategy) (*Metadata, error) {
	q := url.Values{}
	q.Set("q", Query(title, author, s.keywords))
	q.Set("maxResults", maxResults)
	q.Set("printType", "books")
	if s.withKey && c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "error": string(body)}).Error(permissionHint)
		return nil, ErrPermissionDenied
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLength))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.log.WithFields(logrus.Fields{"total_items": data.TotalItems, "item_count": len(data.Items)}).Debug("Google Books API response")
	if len(data.Items) == 0 {
		return nil, nil
	}

	best := bestMatch(data.Items, title, author)
	info := best.VolumeInfo

	md := &Metadata{Title: info.Title}
	if md.Title == "" {
		md.Title = title
	}
	switch {
	case len(info.Authors) > 0:
		joined := strings.Join(info.Authors, ", ")
		md.Author = &joined
	case author != nil && *author != "":
		a := *author
		md.Author = &a
	}
	if info.Description != "" {
		d := truncate(info.Description, descriptionMax)
		md.Description = &d
	}
	if img := bestImageURL(info.ImageLinks); img != "" {
		md.ImageURL = &img
	}
	if info.PageCount > 0 {
		n := info.PageCount
		md.PageCount = &n
	}
	return md, nil
}

// score ranks a volume against the searched title and author.
func score(v volume, title string, author *string) int {
	total := 0
	want := strings.ToLower(strings.TrimSpace(title))
	got := strings.ToLower(strings.TrimSpace(v.VolumeInfo.Title))

	switch {
	case got == want:
		total += 100
	case strings.Contains(got, want):
		total += 50
	case strings.Contains(want, got):
		total += 30
	}

	if author != nil && len(v.VolumeInfo.Authors) > 0 {
		wantAuthor := strings.ToLower(strings.TrimSpace(*author))
		if wantAuthor != "" {
			forward, reverse := false, false
			for _, a := range v.VolumeInfo.Authors {
				a = strings.ToLower(a)
				forward = forward || strings.Contains(a, wantAuthor)
				reverse = reverse || strings.Contains(wantAuthor, a)
			}
			switch {
			case forward:
				total += 50
			case reverse:
				total += 25
			}
		}
	}

	if v.VolumeInfo.ImageLinks != nil && v.VolumeInfo.ImageLinks.Thumbnail != "" {
		total += 10
	}
	if v.VolumeInfo.PageCount > 0 {
		total += 5
	}
	return total
}

// bestMatch returns the highest scoring volume. Ties keep API order, and
// when nothing scores the first result is used.
func bestMatch(items []volume, title string, author *string) volume {
	type scored struct {
		v     volume
		score int
	}
	ranked := make([]scored, len(items))
	for i, v := range items {
		ranked[i] = scored{v, score(v, title, author)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if ranked[0].score > 0 {
		return ranked[0].v
	}
	return items[0]
}

// bestImageURL picks the largest cover and rewrites it to an https URL
// without the page-curl effect and with the unzoomed image.
func bestImageURL(links *imageLinks) string {
	if links == nil {
		return ""
	}
	var u string
	for _, candidate := range []string{links.ExtraLarge, links.Large, links.Medium, links.Small, links.Thumbnail, links.SmallThumbnail} {
		if candidate != "" {
			u = candidate
			break
		}
	}
	if u == "" {
		return ""
	}
	u = strings.Replace(u, "http://", "https://", 1)
	u = strings.Replace(u, "&edge=curl", "", 1)
	u = strings.Replace(u, "zoom=1", "zoom=0", 1)
	return u
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
