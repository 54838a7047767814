package domain

import (
	"strings"
	"time"
)

// Enrichment sources recorded on an item.
const (
	SourceYouTube     = "youtube"
	SourceTwitter     = "twitter"
	SourceOEmbed      = "oembed"
	SourceMetascraper = "metascraper"
	SourceGoogleBooks = "google_books"
)

// ExtractedMetadata is the normalized result of one extraction attempt.
// Pointer fields distinguish "not found" from an empty value.
type ExtractedMetadata struct {
	Title       *string `json:"title" yaml:"title"`
	Description *string `json:"description" yaml:"description"`
	ImageURL    *string `json:"image_url" yaml:"image_url"`
	ImageWidth  *int    `json:"image_width" yaml:"image_width"`
	ImageHeight *int    `json:"image_height" yaml:"image_height"`
	FaviconURL  *string `json:"favicon_url" yaml:"favicon_url"`
	SiteName    *string `json:"site_name" yaml:"site_name"`
	Author      *string `json:"author" yaml:"author"`
	PublishedAt *string `json:"published_at" yaml:"published_at"`
	WordCount   *int    `json:"word_count" yaml:"word_count"`
	ReadingTime *int    `json:"reading_time" yaml:"reading_time"`

	// EnrichmentSource names the extractor that produced this record.
	EnrichmentSource string `json:"enrichment_source" yaml:"enrichment_source"`

	// TypeOverride supersedes the URL classifier's guess when set.
	TypeOverride *ContentType `json:"type_override,omitempty" yaml:"type_override,omitempty"`
}

// Str returns a pointer to s, or nil when s is blank.
func Str(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to n, or nil when n is zero.
func Int(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParsePublished parses the loosely formatted dates extractors return.
// Unparseable values yield nil.
func ParsePublished(s *string) *time.Time {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
