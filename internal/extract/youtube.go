package extract

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

const (
	youTubeAPIBase       = "https://www.googleapis.com/youtube/v3/videos"
	youTubeThumbnailBase = "https://i.ytimg.com/vi"
	youTubeFavicon       = "https://www.youtube.com/favicon.ico"
	youTubeDescLimit     = 500
)

// YouTube extracts video metadata from the thumbnail CDN and, when a key is
// configured, the YouTube Data API.
type YouTube struct {
	client  Doer
	apiKey  string
	timeout time.Duration
	log     logrus.FieldLogger

	// APIBase and ThumbnailBase are overridable for tests.
	APIBase       string
	ThumbnailBase string
}

// NewYouTube creates a YouTube extractor. apiKey may be empty.
func NewYouTube(client Doer, apiKey string, timeout time.Duration, logger logrus.FieldLogger) *YouTube {
	return &YouTube{
		client:        client,
		apiKey:        apiKey,
		timeout:       timeout,
		log:           logger.WithField("component", "youtube"),
		APIBase:       youTubeAPIBase,
		ThumbnailBase: youTubeThumbnailBase,
	}
}

// IsYouTubeURL reports whether rawURL is hosted on youtube.com or youtu.be.
func IsYouTubeURL(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "youtube.com" || host == "youtu.be"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// YouTubeVideoID pulls the video id out of watch, youtu.be, embed, shorts
// and /v/ URLs. It returns "" when none applies.
func YouTubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if host == "youtu.be" {
		return firstSegment(strings.TrimPrefix(u.Path, "/"))
	}
	if host != "youtube.com" {
		return ""
	}

	if u.Path == "/watch" {
		return u.Query().Get("v")
	}
	for _, prefix := range []string{"/embed/", "/shorts/", "/v/"} {
		if strings.HasPrefix(u.Path, prefix) {
			return firstSegment(strings.TrimPrefix(u.Path, prefix))
		}
	}
	return ""
}

func firstSegment(p string) string {
	seg, _, _ := strings.Cut(p, "/")
	return seg
}

var isoDuration = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// DurationMinutes converts an ISO-8601 "PT#H#M#S" duration to whole
// minutes, rounding up. ok is false when the string does not match.
func DurationMinutes(d string) (int, bool) {
	m := isoDuration.FindStringSubmatch(d)
	if m == nil {
		return 0, false
	}
	atoi := func(s string) float64 {
		n, _ := strconv.Atoi(s)
		return float64(n)
	}
	total := atoi(m[1])*60 + atoi(m[2]) + atoi(m[3])/60
	return int(math.Ceil(total)), true
}

type youTubeResponse struct {
	Items []struct {
		Snippet *struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Applies implements Extractor.
func (y *YouTube) Applies(rawURL string) bool { return IsYouTubeURL(rawURL) }

// Extract implements Extractor. Without an API key, or when the API call
// fails, it returns thumbnail-only metadata with a nil title.
func (y *YouTube) Extract(ctx context.Context, rawURL string) *domain.ExtractedMetadata {
	log := y.log.WithField("url", rawURL)

	id := YouTubeVideoID(rawURL)
	if id == "" {
		log.Warn("Could not extract video ID from YouTube URL")
		return nil
	}

	md := &domain.ExtractedMetadata{
		FaviconURL: domain.Str(youTubeFavicon),
		SiteName:   domain.Str("YouTube"),
	}
	y.setThumbnail(ctx, md, id)

	if y.apiKey == "" {
		return md
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails")
	q.Set("id", id)
	q.Set("key", y.apiKey)

	var resp youTubeResponse
	if err := getJSON(ctx, y.client, y.timeout, y.APIBase+"?"+q.Encode(), nil, &resp); err != nil {
		log.WithError(err).WithField("video_id", id).Warn("YouTube API extraction failed")
		return md
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return md
	}

	video := resp.Items[0]
	sn := video.Snippet
	md.Title = domain.Str(sn.Title)
	md.Description = domain.Str(truncate(sn.Description, youTubeDescLimit))
	md.Author = domain.Str(sn.ChannelTitle)
	md.PublishedAt = domain.Str(sn.PublishedAt)
	if video.ContentDetails.Duration != "" {
		// Live and upcoming videos report PT0S.
		if mins, ok := DurationMinutes(video.ContentDetails.Duration); ok && mins > 0 {
			md.ReadingTime = domain.Int(mins)
		}
	}
	return md
}

// setThumbnail prefers the 1280x720 image when it exists and otherwise uses
// the 320x180 one, which every video has. Both are 16:9.
func (y *YouTube) setThumbnail(ctx context.Context, md *domain.ExtractedMetadata, id string) {
	maxres := y.ThumbnailBase + "/" + id + "/maxresdefault.jpg"
	if probe(ctx, y.client, y.timeout, maxres) {
		md.ImageURL, md.ImageWidth, md.ImageHeight = domain.Str(maxres), domain.Int(1280), domain.Int(720)
		return
	}
	mq := y.ThumbnailBase + "/" + id + "/mqdefault.jpg"
	md.ImageURL, md.ImageWidth, md.ImageHeight = domain.Str(mq), domain.Int(320), domain.Int(180)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
