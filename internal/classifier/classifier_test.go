package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf/internal/domain"
)

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want domain.ContentType
	}{
		{"youtube", "https://youtube.com/watch?v=abc", domain.TypeVideo},
		{"youtu.be", "https://youtu.be/abc", domain.TypeVideo},
		{"vimeo", "https://vimeo.com/123", domain.TypeVideo},
		{"twitch", "https://twitch.tv/stream", domain.TypeVideo},
		{"upper case video", "https://YOUTUBE.COM/watch", domain.TypeVideo},
		{"video with query", "https://youtube.com/watch?v=abc&list=123&t=45", domain.TypeVideo},
		{"video with fragment", "https://vimeo.com/123#t=30s", domain.TypeVideo},
		{"video subdomain", "https://m.youtube.com/watch", domain.TypeVideo},
		{"twitter", "https://twitter.com/user/status/123", domain.TypePost},
		{"x", "https://x.com/user/status/123", domain.TypePost},
		{"twitter query", "https://twitter.com/user/status/123?ref=home", domain.TypePost},
		{"mixed case twitter", "https://Twitter.Com/user", domain.TypePost},
		{"mobile twitter", "https://mobile.twitter.com/user", domain.TypePost},
		{"spotify episode", "https://spotify.com/episode/abc", domain.TypePodcast},
		{"spotify episode upper", "https://SPOTIFY.COM/EPISODE/abc", domain.TypePodcast},
		{"spotify track", "https://spotify.com/track/abc", domain.TypeArticle},
		{"apple podcasts", "https://podcasts.apple.com/podcast/123", domain.TypePodcast},
		{"overcast", "https://overcast.fm/+abc", domain.TypePodcast},
		{"medium", "https://medium.com/article", domain.TypeArticle},
		{"plain", "https://example.com", domain.TypeArticle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyURL(tt.url))
		})
	}
}

// A platform domain anywhere in the URL wins, including in the path.
// This false positive is kept on purpose.
func TestClassifyURL_DomainInPathFalsePositive(t *testing.T) {
	assert.Equal(t, domain.TypeVideo, ClassifyURL("https://example.com/youtube.com/fake"))
	assert.Equal(t, domain.TypePost, ClassifyURL("https://blog.example.com/why-i-left-x.com"))
}

func TestParseInput_URL(t *testing.T) {
	got, err := ParseInput("http://example.com")
	require.NoError(t, err)
	assert.Equal(t, URLInput{Type: domain.TypeArticle, URL: "http://example.com"}, got)

	got, err = ParseInput("  https://youtube.com/watch?v=abc  ")
	require.NoError(t, err)
	assert.Equal(t, URLInput{Type: domain.TypeVideo, URL: "https://youtube.com/watch?v=abc"}, got)

	got, err = ParseInput("HTTPS://Example.com/x")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeArticle, got.ContentType())
}

func TestParseInput_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := ParseInput(in)
		assert.ErrorIs(t, err, ErrEmptyInput, "input %q", in)
	}
}

func TestParseInput_Book(t *testing.T) {
	tests := []struct {
		input  string
		title  string
		author string
	}{
		{"book The Great Gatsby", "The Great Gatsby", ""},
		{"The Great Gatsby book", "The Great Gatsby", ""},
		{"BOOK Dune", "Dune", ""},
		{"The Great Gatsby by F. Scott Fitzgerald", "The Great Gatsby", "F. Scott Fitzgerald"},
		{`"1984" by George Orwell`, "1984", "George Orwell"},
		{"“Dune” by Frank Herbert", "Dune", "Frank Herbert"},
		{"Stand on Zanzibar BY John Brunner", "Stand on Zanzibar", "John Brunner"},
		{"Dune, Frank Herbert", "Dune", "Frank Herbert"},
		{"Dune - Frank Herbert", "Dune", "Frank Herbert"},
		{"Emma - Austen", "Emma", "Austen"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInput(tt.input)
			require.NoError(t, err)
			book, ok := got.(BookInput)
			require.True(t, ok, "expected book, got %#v", got)
			assert.Equal(t, tt.title, book.Title)
			if tt.author == "" {
				assert.Nil(t, book.Author)
			} else {
				require.NotNil(t, book.Author)
				assert.Equal(t, tt.author, *book.Author)
			}
		})
	}
}

func TestParseInput_Note(t *testing.T) {
	tests := []string{
		"Remember to buy milk",
		"just some text, and more",
		"call mom - tomorrow",
		"meeting notes, see @alice",
		"a, b, c",
		"book",
		"x by y",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseInput("  " + in + "  ")
			require.NoError(t, err)
			assert.Equal(t, NoteInput{Text: in}, got)
		})
	}
}

// The comma form only checks that the second segment looks like a name;
// two plain words pass that check.
func TestParseInput_CommaWithTwoWords(t *testing.T) {
	got, err := ParseInput("just some text, no author")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeBook, got.ContentType())
}

func TestLooksLikeAuthorName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Frank Herbert", true},
		{"Tolkien", true},
		{"tolkien", false},
		{"the author", false},
		{"For Whom", false},
		{"path/to", false},
		{"C:\\dir", false},
		{"@handle", false},
		{"#tag", false},
		{"", false},
		{"anna karenina", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksLikeAuthorName(tt.in), "input %q", tt.in)
	}
}
