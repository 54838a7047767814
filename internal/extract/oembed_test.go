package extract

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
)

func TestDefaultOEmbedProviders(t *testing.T) {
	o := NewOEmbed(http.DefaultClient, time.Second, testLogger())

	tests := []struct {
		url  string
		name string
	}{
		{"https://vimeo.com/76979871", "Vimeo"},
		{"https://open.spotify.com/track/abc", "Spotify"},
		{"https://open.spotify.com/episode/abc", "Spotify"},
		{"https://soundcloud.com/artist/song", "SoundCloud"},
		{"https://www.instagram.com/p/Cxyz/", "Instagram"},
		{"https://www.tiktok.com/@user.name/video/123", "TikTok"},
		{"https://vimeo.com/channels/staff", ""},
		{"https://example.com/post", ""},
	}
	for _, tt := range tests {
		endpoint, name := o.knownEndpoint(tt.url)
		assert.Equal(t, tt.name, name, tt.url)
		if tt.name != "" {
			assert.Contains(t, endpoint, "format=json", tt.url)
		}
	}
}

func TestOEmbed_KnownProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://vimeo.com/123", r.URL.Query().Get("url"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		io.WriteString(w, `{"type":"video","title":"Clip","author_name":"Maker","provider_name":"Vimeo Inc","provider_url":"https://vimeo.com/","thumbnail_url":"https://i.vimeocdn.com/1.jpg","thumbnail_width":"640","thumbnail_height":360,"duration":125}`)
	}))
	defer srv.Close()

	o := NewOEmbed(srv.Client(), time.Second, testLogger())
	o.Providers = []OEmbedProvider{{Name: "Vimeo", Pattern: regexp.MustCompile(`vimeo\.com/(\d+)`), Endpoint: srv.URL + "/api/oembed.json"}}

	md := o.Extract(context.Background(), "https://vimeo.com/123")
	require.NotNil(t, md)

	assert.Equal(t, "Clip", domain.Deref(md.Title))
	assert.Equal(t, "Maker", domain.Deref(md.Author))
	assert.Equal(t, "Vimeo", domain.Deref(md.SiteName))
	assert.Equal(t, "https://vimeo.com/favicon.ico", domain.Deref(md.FaviconURL))
	assert.Equal(t, "https://i.vimeocdn.com/1.jpg", domain.Deref(md.ImageURL))
	assert.Equal(t, 640, *md.ImageWidth)
	assert.Equal(t, 360, *md.ImageHeight)
	require.NotNil(t, md.ReadingTime)
	assert.Equal(t, 3, *md.ReadingTime)
	assert.Nil(t, md.Description)
	assert.Nil(t, md.PublishedAt)
}

func TestOEmbed_StringDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"type":"video","title":"Clip","thumbnail_url":"https://img/1.jpg","duration":"123"}`)
	}))
	defer srv.Close()

	o := NewOEmbed(srv.Client(), time.Second, testLogger())
	o.Providers = []OEmbedProvider{{Name: "Vimeo", Pattern: regexp.MustCompile(`vimeo\.com/(\d+)`), Endpoint: srv.URL}}

	md := o.Extract(context.Background(), "https://vimeo.com/123")
	require.NotNil(t, md)
	assert.Equal(t, "Clip", domain.Deref(md.Title))
	assert.Equal(t, "https://img/1.jpg", domain.Deref(md.ImageURL))
	require.NotNil(t, md.ReadingTime)
	assert.Equal(t, 3, *md.ReadingTime)
}

func TestOEmbed_DurationIgnoredForNonVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"type":"rich","title":"Song","duration":200}`)
	}))
	defer srv.Close()

	o := NewOEmbed(srv.Client(), time.Second, testLogger())
	o.Providers = []OEmbedProvider{{Name: "SoundCloud", Pattern: regexp.MustCompile(`soundcloud\.com/`), Endpoint: srv.URL}}

	md := o.Extract(context.Background(), "https://soundcloud.com/a/b")
	require.NotNil(t, md)
	assert.Nil(t, md.ReadingTime)
}

func TestOEmbed_Discovery(t *testing.T) {
	tests := []struct {
		name string
		link string
	}{
		{"json link", `<link rel="alternate" type="application/json+oembed" href="/oembed">`},
		{"xml link rewritten", `<link rel="alternate" type="text/xml+oembed" href="/oembed?format=xml">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pageURL string
			mux := http.NewServeMux()
			mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, BrowserUserAgent, r.Header.Get("User-Agent"))
				io.WriteString(w, `<html><head>`+tt.link+`</head><body></body></html>`)
			})
			mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, pageURL, r.URL.Query().Get("url"))
				if f := r.URL.Query().Get("format"); f != "" {
					assert.Equal(t, "json", f)
				}
				io.WriteString(w, `{"type":"link","title":"Discovered","provider_name":"Blog"}`)
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()
			pageURL = srv.URL + "/post"

			o := NewOEmbed(srv.Client(), time.Second, testLogger())
			md := o.Extract(context.Background(), pageURL)
			require.NotNil(t, md)
			assert.Equal(t, "Discovered", domain.Deref(md.Title))
			assert.Equal(t, "Blog", domain.Deref(md.SiteName))
		})
	}
}

func TestOEmbed_DiscoveredEndpointWithURLKept(t *testing.T) {
	var gotURL atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<link rel="alternate" type="application/json+oembed" href="/oembed?url=https%3A%2F%2Fcanonical.example%2Fpost">`)
	})
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		gotURL.Store(r.URL.Query().Get("url"))
		io.WriteString(w, `{"title":"T"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	md := NewOEmbed(srv.Client(), time.Second, testLogger()).Extract(context.Background(), srv.URL+"/post")
	require.NotNil(t, md)
	assert.Equal(t, "https://canonical.example/post", gotURL.Load())
}

func TestOEmbed_NoEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head><title>Plain</title></head></html>`)
	}))
	defer srv.Close()

	assert.Nil(t, NewOEmbed(srv.Client(), time.Second, testLogger()).Extract(context.Background(), srv.URL))
}

func TestOEmbed_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOEmbed(srv.Client(), time.Second, testLogger())
	o.Providers = []OEmbedProvider{{Name: "Vimeo", Pattern: regexp.MustCompile(`vimeo\.com/(\d+)`), Endpoint: srv.URL}}
	assert.Nil(t, o.Extract(context.Background(), "https://vimeo.com/1"))
}
