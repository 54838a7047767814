package extract

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
)

const articleHTML = `<!doctype html>
<html>
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="Open Graph Title">
  <meta name="description" content="Plain description">
  <meta property="og:image" content="/img/cover.png">
  <meta property="og:image:width" content="1200">
  <meta property="og:image:height" content="630">
  <meta name="author" content="Jane Doe">
  <meta property="article:published_time" content="2024-05-01T10:00:00Z">
  <meta property="og:site_name" content="Example Blog">
  <link rel="apple-touch-icon" href="/apple.png">
  <link rel="icon" href="/icon.ico">
  <script>var ignored = "lots of words that should not count";</script>
</head>
<body>
  <nav>Home About Contact</nav>
  <article>` + "%s" + `</article>
  <footer>Copyright words here</footer>
</body>
</html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func articleBody(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestScrapeDocument(t *testing.T) {
	html := strings.Replace(articleHTML, "%s", articleBody(450), 1)
	md := ScrapeDocument(parse(t, html), "https://blog.example.com/posts/1")

	assert.Equal(t, "Open Graph Title", domain.Deref(md.Title))
	assert.Equal(t, "Plain description", domain.Deref(md.Description))
	assert.Equal(t, "https://blog.example.com/img/cover.png", domain.Deref(md.ImageURL))
	assert.Equal(t, "Jane Doe", domain.Deref(md.Author))
	assert.Equal(t, "2024-05-01T10:00:00Z", domain.Deref(md.PublishedAt))
	assert.Equal(t, "Example Blog", domain.Deref(md.SiteName))
	assert.Equal(t, "https://blog.example.com/apple.png", domain.Deref(md.FaviconURL))
	require.NotNil(t, md.ImageWidth)
	assert.Equal(t, 1200, *md.ImageWidth)
	assert.Equal(t, 630, *md.ImageHeight)
	assert.Equal(t, 450, *md.WordCount)
	assert.Equal(t, 3, *md.ReadingTime)
}

func TestFavicon(t *testing.T) {
	page, _ := url.Parse("https://example.com/a/b")
	tests := []struct {
		name string
		head string
		want string
	}{
		{"png preferred", `<link rel="icon" href="/plain.ico"><link rel="icon" type="image/png" href="/p.png">`, "https://example.com/p.png"},
		{"svg", `<link rel="icon" type="image/svg+xml" href="s.svg">`, "https://example.com/s.svg"},
		{"shortcut", `<link rel="shortcut icon" href="https://cdn.example.com/f.ico">`, "https://cdn.example.com/f.ico"},
		{"none", ``, "https://example.com/favicon.ico"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, "<html><head>"+tt.head+"</head></html>")
			assert.Equal(t, tt.want, Favicon(doc, page))
		})
	}
}

func TestWordCount_FallsBackToBody(t *testing.T) {
	doc := parse(t, `<html><body><article>too short</article>
<p>one two three four</p></body></html>`)
	assert.Equal(t, 6, WordCount(doc))
}

func TestWordCount_LongestContentArea(t *testing.T) {
	body := `<main>` + articleBody(30) + `</main><div class="content">` + articleBody(50) + `</div><aside>` + articleBody(500) + `</aside>`
	doc := parse(t, `<html><body>`+body+`</body></html>`)
	assert.Equal(t, 50, WordCount(doc))
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 1, ReadingTime(0))
	assert.Equal(t, 1, ReadingTime(200))
	assert.Equal(t, 2, ReadingTime(201))
	assert.Equal(t, 10, ReadingTime(2000))
}

func TestImageDimensions(t *testing.T) {
	tests := []struct {
		name string
		head string
		w, h int
	}{
		{"og", `<meta property="og:image:width" content="800"><meta property="og:image:height" content="600">`, 800, 600},
		{"og invalid falls to twitter", `<meta property="og:image:width" content="0"><meta property="og:image:height" content="600"><meta name="twitter:image:width" content="400"><meta name="twitter:image:height" content="200">`, 400, 200},
		{"too large", `<meta property="og:image:width" content="9000"><meta property="og:image:height" content="600">`, 0, 0},
		{"missing height", `<meta property="og:image:width" content="800">`, 0, 0},
		{"garbage", `<meta property="og:image:width" content="wide"><meta property="og:image:height" content="tall">`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ImageDimensions(parse(t, "<html><head>"+tt.head+"</head></html>"))
			if tt.w == 0 {
				assert.Nil(t, w)
				assert.Nil(t, h)
				return
			}
			require.NotNil(t, w)
			require.NotNil(t, h)
			assert.Equal(t, tt.w, *w)
			assert.Equal(t, tt.h, *h)
		})
	}
}

func TestGeneric_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, BrowserUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "document", r.Header.Get("Sec-Fetch-Dest"))
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, strings.Replace(articleHTML, "%s", articleBody(120), 1))
	}))
	defer srv.Close()

	g := NewGeneric(NewHTTPFetcher(srv.Client(), time.Second), testLogger())

	md := g.Extract(context.Background(), srv.URL+"/post")
	assert.Equal(t, domain.SourceMetascraper, md.EnrichmentSource)
	assert.Equal(t, "Open Graph Title", domain.Deref(md.Title))
	assert.Equal(t, srv.URL+"/apple.png", domain.Deref(md.FaviconURL))

	md = g.Extract(context.Background(), srv.URL+"/missing")
	assert.Equal(t, domain.ExtractedMetadata{EnrichmentSource: domain.SourceMetascraper}, md)
}

func TestGeneric_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	g := NewGeneric(NewHTTPFetcher(srv.Client(), 50*time.Millisecond), testLogger())
	md := g.Extract(context.Background(), srv.URL)
	assert.Nil(t, md.Title)
	assert.Equal(t, domain.SourceMetascraper, md.EnrichmentSource)
}
