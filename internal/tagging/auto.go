// Package tagging generates topical tags for items: a deterministic
// auto-tagger from URL and content type, and an LLM-backed AI tagger.
package tagging

import (
	"net/url"
	"strings"

	"shelf/internal/classifier"
	"shelf/internal/domain"
)

type domainTag struct {
	domain string
	tag    domain.Tag
}

// Ordered so the subdomain scan is deterministic.
var domainTags = []domainTag{
	{"youtube.com", domain.Tag{Name: "YouTube", Slug: "youtube", Color: "#FF0000"}},
	{"medium.com", domain.Tag{Name: "Medium", Slug: "medium", Color: "#000000"}},
	{"substack.com", domain.Tag{Name: "Substack", Slug: "substack", Color: "#FF6719"}},
	{"github.com", domain.Tag{Name: "GitHub", Slug: "github", Color: "#24292F"}},
	{"twitter.com", domain.Tag{Name: "Twitter", Slug: "twitter", Color: "#1DA1F2"}},
	{"x.com", domain.Tag{Name: "X", Slug: "x", Color: "#000000"}},
	{"reddit.com", domain.Tag{Name: "Reddit", Slug: "reddit", Color: "#FF4500"}},
	{"nytimes.com", domain.Tag{Name: "NY Times", Slug: "nytimes", Color: "#000000"}},
	{"theverge.com", domain.Tag{Name: "The Verge", Slug: "the-verge", Color: "#E4105D"}},
	{"techcrunch.com", domain.Tag{Name: "TechCrunch", Slug: "techcrunch", Color: "#0A9952"}},
	{"arstechnica.com", domain.Tag{Name: "Ars Technica", Slug: "ars-technica", Color: "#FF4E00"}},
	{"hackernews.com", domain.Tag{Name: "Hacker News", Slug: "hacker-news", Color: "#FF6600"}},
	{"news.ycombinator.com", domain.Tag{Name: "Hacker News", Slug: "hacker-news", Color: "#FF6600"}},
	{"stackoverflow.com", domain.Tag{Name: "Stack Overflow", Slug: "stack-overflow", Color: "#F48024"}},
	{"dev.to", domain.Tag{Name: "DEV", Slug: "dev-to", Color: "#0A0A0A"}},
	{"notion.so", domain.Tag{Name: "Notion", Slug: "notion", Color: "#000000"}},
	{"figma.com", domain.Tag{Name: "Figma", Slug: "figma", Color: "#F24E1E"}},
	{"dribbble.com", domain.Tag{Name: "Dribbble", Slug: "dribbble", Color: "#EA4C89"}},
	{"spotify.com", domain.Tag{Name: "Spotify", Slug: "spotify", Color: "#1DB954"}},
	{"podcasts.apple.com", domain.Tag{Name: "Apple Podcasts", Slug: "apple-podcasts", Color: "#9933FF"}},
	{"vimeo.com", domain.Tag{Name: "Vimeo", Slug: "vimeo", Color: "#1AB7EA"}},
	{"twitch.tv", domain.Tag{Name: "Twitch", Slug: "twitch", Color: "#9146FF"}},
	{"linkedin.com", domain.Tag{Name: "LinkedIn", Slug: "linkedin", Color: "#0A66C2"}},
	{"wikipedia.org", domain.Tag{Name: "Wikipedia", Slug: "wikipedia", Color: "#000000"}},
}

var typeTags = map[domain.ContentType]domain.Tag{
	domain.TypeArticle: {Name: "Article", Slug: "article", Color: "#6B7280"},
	domain.TypeVideo:   {Name: "Video", Slug: "video", Color: "#EF4444"},
	domain.TypePost:    {Name: "Post", Slug: "post", Color: "#3B82F6"},
	domain.TypePodcast: {Name: "Podcast", Slug: "podcast", Color: "#8B5CF6"},
}

// Hostname returns the lowercase host of rawURL without a leading "www.",
// or "" when it does not parse.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func lookupDomainTag(host string) (domain.Tag, bool) {
	for _, dt := range domainTags {
		if host == dt.domain {
			return dt.tag, true
		}
	}
	for _, dt := range domainTags {
		if strings.HasSuffix(host, "."+dt.domain) {
			return dt.tag, true
		}
	}
	return domain.Tag{}, false
}

// GenerateAutoTags returns at most a content-type tag and a source tag for
// rawURL, deduplicated by slug.
func GenerateAutoTags(rawURL string, md domain.ExtractedMetadata) []domain.Tag {
	var tags []domain.Tag
	seen := make(map[string]bool)
	add := func(t domain.Tag) {
		if seen[t.Slug] {
			return
		}
		seen[t.Slug] = true
		tags = append(tags, t)
	}

	contentType := classifier.ClassifyURL(rawURL)
	if md.TypeOverride != nil {
		contentType = *md.TypeOverride
	}
	if t, ok := typeTags[contentType]; ok {
		add(t)
	}

	if host := Hostname(rawURL); host != "" {
		if t, ok := lookupDomainTag(host); ok {
			add(t)
		}
	}

	return tags
}

// TagColor looks slug up in the type and domain palettes, falling back to gray.
func TagColor(slug string) string {
	for _, t := range typeTags {
		if t.Slug == slug {
			return t.Color
		}
	}
	for _, dt := range domainTags {
		if dt.tag.Slug == slug {
			return dt.tag.Color
		}
	}
	return domain.DefaultTagColor
}

// TopicTags filters out the auto-generated type and source tags, plus any
// tag that just repeats the item's site name.
func TopicTags(item domain.Item) []domain.Tag {
	site := strings.ToLower(domain.Deref(item.SiteName))
	var out []domain.Tag
	for _, t := range item.Tags {
		if isAutoSlug(t.Slug) {
			continue
		}
		if site != "" && strings.ToLower(t.Name) == site {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isAutoSlug(slug string) bool {
	for _, t := range typeTags {
		if t.Slug == slug {
			return true
		}
	}
	for _, dt := range domainTags {
		if dt.tag.Slug == slug {
			return true
		}
	}
	return false
}
