package extract

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

const (
	xAPIBase       = "https://api.twitter.com/2"
	tweetTitleMax  = 200
	tweetTitleKeep = 197
)

// Twitter extracts tweets and platform Articles through the X API v2.
type Twitter struct {
	client  Doer
	token   string
	timeout time.Duration
	log     logrus.FieldLogger

	// APIBase is overridable for tests.
	APIBase string
}

// NewTwitter creates an X extractor. Without a bearer token every call
// returns nil.
func NewTwitter(client Doer, token string, timeout time.Duration, logger logrus.FieldLogger) *Twitter {
	return &Twitter{
		client:  client,
		token:   token,
		timeout: timeout,
		log:     logger.WithField("component", "twitter"),
		APIBase: xAPIBase,
	}
}

// IsTwitterURL reports whether rawURL is hosted on twitter.com or x.com.
func IsTwitterURL(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "twitter.com" || host == "x.com"
}

var statusPath = regexp.MustCompile(`/status/(\d+)`)

// TweetID returns the numeric status id in rawURL's path, or "".
func TweetID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := statusPath.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

type tweetURLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type tweetEntities struct {
	URLs []tweetURLEntity `json:"urls"`
}

type xTweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at"`
	Article   *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PreviewText string `json:"preview_text"`
		CoverMedia  string `json:"cover_media"`
	} `json:"article"`
	NoteTweet *struct {
		Text     string         `json:"text"`
		Entities *tweetEntities `json:"entities"`
	} `json:"note_tweet"`
	Entities    *tweetEntities `json:"entities"`
	Attachments *struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type xUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type xMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
}

type xResponse struct {
	Data     *xTweet `json:"data"`
	Includes struct {
		Users []xUser  `json:"users"`
		Media []xMedia `json:"media"`
	} `json:"includes"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	} `json:"errors"`
}

// Applies implements Extractor.
func (tw *Twitter) Applies(rawURL string) bool { return IsTwitterURL(rawURL) }

// Extract implements Extractor. Platform Articles come back with a nil
// reading time and an article type override; tweets read in one minute.
func (tw *Twitter) Extract(ctx context.Context, rawURL string) *domain.ExtractedMetadata {
	log := tw.log.WithField("url", rawURL)

	if tw.token == "" {
		log.Debug("X_API_TOKEN not set, skipping X API extraction")
		return nil
	}
	id := TweetID(rawURL)
	if id == "" {
		log.Warn("Not a tweet URL (no status ID found)")
		return nil
	}

	q := url.Values{}
	q.Set("expansions", "author_id,attachments.media_keys,article.cover_media")
	q.Set("tweet.fields", "created_at,entities,note_tweet,article,attachments")
	q.Set("user.fields", "name,username,profile_image_url")
	q.Set("media.fields", "url,preview_image_url,type,width,height")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tw.token)
	header.Set("Content-Type", "application/json")

	var resp xResponse
	err := getJSON(ctx, tw.client, tw.timeout, tw.APIBase+"/tweets/"+id+"?"+q.Encode(), header, &resp)
	if err != nil {
		var httpErr *HTTPError
		switch {
		case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized:
			log.Warn("X API authentication failed - check your bearer token")
		case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
			log.Warn("Tweet not found")
		default:
			log.WithError(err).Warn("X API extraction failed")
		}
		return nil
	}
	if len(resp.Errors) > 0 {
		log.WithField("errors", resp.Errors).Warn("X API returned errors")
		return nil
	}
	if resp.Data == nil {
		log.Warn("X API returned no tweet data")
		return nil
	}

	return tweetMetadata(rawURL, resp)
}

func tweetMetadata(rawURL string, resp xResponse) *domain.ExtractedMetadata {
	tweet := resp.Data

	var author *xUser
	for i := range resp.Includes.Users {
		if resp.Includes.Users[i].ID == tweet.AuthorID {
			author = &resp.Includes.Users[i]
			break
		}
	}

	md := &domain.ExtractedMetadata{
		SiteName:    domain.Str("Twitter"),
		FaviconURL:  domain.Str("https://twitter.com/favicon.ico"),
		PublishedAt: domain.Str(tweet.CreatedAt),
	}
	if strings.Contains(rawURL, "x.com") {
		md.SiteName = domain.Str("X")
		md.FaviconURL = domain.Str("https://x.com/favicon.ico")
	}

	var profileImage *string
	if author != nil {
		md.Author = domain.Str("@" + author.Username)
		profileImage = domain.Str(strings.Replace(author.ProfileImageURL, "_normal", "_400x400", 1))
	}

	first := firstAttachedMedia(tweet, resp.Includes.Media)

	if tweet.Article != nil && tweet.Article.Title != "" {
		md.Title = domain.Str(tweet.Article.Title)
		md.Description = domain.Str(tweet.Article.PreviewText)
		if md.Description == nil {
			md.Description = domain.Str(tweet.Article.Description)
		}

		cover := findMedia(resp.Includes.Media, tweet.Article.CoverMedia)
		switch {
		case cover != nil && mediaURL(cover) != "":
			setMediaImage(md, cover)
		case first != nil && mediaURL(first) != "":
			setMediaImage(md, first)
		default:
			md.ImageURL = profileImage
		}

		article := domain.TypeArticle
		md.TypeOverride = &article
		return md
	}

	text := tweet.Text
	entities := tweet.Entities
	if tweet.NoteTweet != nil && tweet.NoteTweet.Text != "" {
		text = tweet.NoteTweet.Text
	}
	if tweet.NoteTweet != nil && tweet.NoteTweet.Entities != nil {
		entities = tweet.NoteTweet.Entities
	}
	if entities != nil {
		for _, e := range entities.URLs {
			if e.URL != "" {
				text = strings.Replace(text, e.URL, e.ExpandedURL, 1)
			}
		}
	}

	md.Title = domain.Str(tweetTitle(text))
	md.Description = domain.Str(text)
	if first != nil && mediaURL(first) != "" {
		setMediaImage(md, first)
	} else {
		md.ImageURL = profileImage
	}
	md.ReadingTime = domain.Int(1)
	return md
}

// tweetTitle is the first line of text, shortened with an ellipsis past
// 200 characters.
func tweetTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	if line == "" {
		line = text
	}
	r := []rune(line)
	if len(r) > tweetTitleMax {
		return string(r[:tweetTitleKeep]) + "..."
	}
	return line
}

func firstAttachedMedia(tweet *xTweet, media []xMedia) *xMedia {
	if tweet.Attachments == nil || len(tweet.Attachments.MediaKeys) == 0 {
		return nil
	}
	return findMedia(media, tweet.Attachments.MediaKeys[0])
}

func findMedia(media []xMedia, key string) *xMedia {
	if key == "" {
		return nil
	}
	for i := range media {
		if media[i].MediaKey == key {
			return &media[i]
		}
	}
	return nil
}

// mediaURL prefers the photo URL and falls back to a video's preview frame.
func mediaURL(m *xMedia) string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewImageURL
}

func setMediaImage(md *domain.ExtractedMetadata, m *xMedia) {
	md.ImageURL = domain.Str(mediaURL(m))
	md.ImageWidth = domain.Int(m.Width)
	md.ImageHeight = domain.Int(m.Height)
}
