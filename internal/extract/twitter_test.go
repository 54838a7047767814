package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
)

const (
	articleURL    = "https://x.com/someone/status/2010810802023141688"
	coverMediaKey = "3_2010810614948499457"
	coverImageURL = "https://pbs.twimg.com/media/cover123.jpg"
)

func articleResponse(withCover bool) map[string]any {
	includes := map[string]any{
		"users": []map[string]any{{
			"id": "123", "name": "Someone", "username": "someone",
			"profile_image_url": "https://pbs.twimg.com/profile_normal.jpg",
		}},
	}
	if withCover {
		includes["media"] = []map[string]any{{
			"media_key": coverMediaKey, "type": "photo", "url": coverImageURL,
			"width": 1200, "height": 675,
		}}
	}
	return map[string]any{
		"data": map[string]any{
			"id":         "2010810802023141688",
			"text":       "https://t.co/Drd9T4nCMJ",
			"author_id":  "123",
			"created_at": "2026-01-12T20:27:08.000Z",
			"article": map[string]any{
				"title":        "The tutorial, level 2",
				"preview_text": "Part two of the tutorial",
				"cover_media":  coverMediaKey,
			},
		},
		"includes": includes,
	}
}

func twitterServer(t *testing.T, status int, body any) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/tweets/"))
		assert.Contains(t, r.URL.Query().Get("expansions"), "article.cover_media")
		assert.Contains(t, r.URL.Query().Get("tweet.fields"), "note_tweet")
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestTwitter(srv *httptest.Server, token string) *Twitter {
	tw := NewTwitter(srv.Client(), token, time.Second, testLogger())
	tw.APIBase = srv.URL
	return tw
}

func TestTweetID(t *testing.T) {
	assert.Equal(t, "123", TweetID("https://twitter.com/user/status/123"))
	assert.Equal(t, "456", TweetID("https://x.com/user/status/456/photo/1"))
	assert.Equal(t, "", TweetID("https://x.com/user"))
}

func TestTwitter_Article(t *testing.T) {
	srv, _ := twitterServer(t, http.StatusOK, articleResponse(true))

	md := newTestTwitter(srv, "test-token").Extract(context.Background(), articleURL)
	require.NotNil(t, md)

	assert.Equal(t, "The tutorial, level 2", domain.Deref(md.Title))
	assert.Equal(t, "Part two of the tutorial", domain.Deref(md.Description))
	assert.Equal(t, coverImageURL, domain.Deref(md.ImageURL))
	assert.Equal(t, 1200, *md.ImageWidth)
	assert.Equal(t, 675, *md.ImageHeight)
	assert.Equal(t, "X", domain.Deref(md.SiteName))
	assert.Equal(t, "https://x.com/favicon.ico", domain.Deref(md.FaviconURL))
	assert.Equal(t, "@someone", domain.Deref(md.Author))
	assert.Nil(t, md.ReadingTime)
	require.NotNil(t, md.TypeOverride)
	assert.Equal(t, domain.TypeArticle, *md.TypeOverride)
}

func TestTwitter_ArticleWithoutCoverFallsBackToProfileImage(t *testing.T) {
	srv, _ := twitterServer(t, http.StatusOK, articleResponse(false))

	md := newTestTwitter(srv, "test-token").Extract(context.Background(), articleURL)
	require.NotNil(t, md)
	assert.Equal(t, "https://pbs.twimg.com/profile_400x400.jpg", domain.Deref(md.ImageURL))
	assert.Nil(t, md.ImageWidth)
	assert.Nil(t, md.ImageHeight)
}

func TestTwitter_NoteTweet(t *testing.T) {
	long := strings.Repeat("a", 250)
	body := map[string]any{
		"data": map[string]any{
			"id":        "1",
			"text":      "truncated",
			"author_id": "9",
			"note_tweet": map[string]any{
				"text": long + "\nsee https://t.co/abc",
				"entities": map[string]any{"urls": []map[string]any{
					{"url": "https://t.co/abc", "expanded_url": "https://example.com/full"},
				}},
			},
			"attachments": map[string]any{"media_keys": []string{"m1"}},
		},
		"includes": map[string]any{
			"users": []map[string]any{{"id": "9", "username": "bob"}},
			"media": []map[string]any{{"media_key": "m1", "type": "video", "preview_image_url": "https://img/prev.jpg", "width": 640, "height": 360}},
		},
	}
	srv, _ := twitterServer(t, http.StatusOK, body)

	md := newTestTwitter(srv, "test-token").Extract(context.Background(), "https://twitter.com/bob/status/1")
	require.NotNil(t, md)

	assert.Equal(t, strings.Repeat("a", 197)+"...", domain.Deref(md.Title))
	assert.Equal(t, long+"\nsee https://example.com/full", domain.Deref(md.Description))
	assert.Equal(t, "https://img/prev.jpg", domain.Deref(md.ImageURL))
	assert.Equal(t, 640, *md.ImageWidth)
	assert.Equal(t, "Twitter", domain.Deref(md.SiteName))
	assert.Equal(t, "https://twitter.com/favicon.ico", domain.Deref(md.FaviconURL))
	require.NotNil(t, md.ReadingTime)
	assert.Equal(t, 1, *md.ReadingTime)
	assert.Nil(t, md.TypeOverride)
}

func TestTwitter_RegularTweetUsesEntities(t *testing.T) {
	body := map[string]any{
		"data": map[string]any{
			"id": "2", "text": "hello https://t.co/x\nsecond line", "author_id": "9",
			"entities": map[string]any{"urls": []map[string]any{
				{"url": "https://t.co/x", "expanded_url": "https://go.dev"},
			}},
		},
	}
	srv, _ := twitterServer(t, http.StatusOK, body)

	md := newTestTwitter(srv, "test-token").Extract(context.Background(), "https://x.com/u/status/2")
	require.NotNil(t, md)
	assert.Equal(t, "hello https://go.dev", domain.Deref(md.Title))
	assert.Nil(t, md.Author)
	assert.Nil(t, md.ImageURL)
}

func TestTwitter_FailuresReturnNil(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusTooManyRequests} {
		srv, calls := twitterServer(t, status, nil)
		assert.Nil(t, newTestTwitter(srv, "test-token").Extract(context.Background(), articleURL), "status %d", status)
		assert.Equal(t, int32(1), calls.Load())
	}

	srv, _ := twitterServer(t, http.StatusOK, map[string]any{"errors": []map[string]any{{"title": "Not Found Error"}}})
	assert.Nil(t, newTestTwitter(srv, "test-token").Extract(context.Background(), articleURL))

	srv, _ = twitterServer(t, http.StatusOK, map[string]any{})
	assert.Nil(t, newTestTwitter(srv, "test-token").Extract(context.Background(), articleURL))
}

func TestTwitter_NoTokenSkipsNetwork(t *testing.T) {
	srv, calls := twitterServer(t, http.StatusOK, articleResponse(true))
	assert.Nil(t, newTestTwitter(srv, "").Extract(context.Background(), articleURL))
	assert.Zero(t, calls.Load())
}

func TestTwitter_NotAStatusURL(t *testing.T) {
	srv, calls := twitterServer(t, http.StatusOK, articleResponse(true))
	assert.Nil(t, newTestTwitter(srv, "test-token").Extract(context.Background(), "https://x.com/someone"))
	assert.Zero(t, calls.Load())
}
