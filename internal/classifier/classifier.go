// Package classifier turns raw user input into a URL, book or note.
package classifier

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"shelf/internal/domain"
)

// ErrEmptyInput is returned by ParseInput for blank input.
var ErrEmptyInput = errors.New("input cannot be empty")

// Matching is substring-based against the whole URL, not the hostname, so a
// domain that shows up in a path also matches.
var (
	videoDomains    = []string{"youtube.com", "youtu.be", "vimeo.com", "twitch.tv"}
	socialDomains   = []string{"twitter.com", "x.com"}
	podcastPatterns = []string{"spotify.com/episode", "podcasts.apple.com", "overcast.fm", "pocketcasts.com"}
)

// ClassifiedInput is one of URLInput, BookInput or NoteInput.
type ClassifiedInput interface {
	ContentType() domain.ContentType
}

// URLInput is input that starts with http:// or https://.
type URLInput struct {
	Type domain.ContentType
	URL  string
}

// BookInput is a book reference. Title is never empty; Author is nil when unknown.
type BookInput struct {
	Title  string
	Author *string
}

// NoteInput is anything else, kept verbatim after trimming.
type NoteInput struct {
	Text string
}

func (u URLInput) ContentType() domain.ContentType  { return u.Type }
func (BookInput) ContentType() domain.ContentType { return domain.TypeBook }
func (NoteInput) ContentType() domain.ContentType { return domain.TypeNote }

// ClassifyURL guesses the content type of a URL.
// Order: video domains, social domains, podcast patterns, then article.
func ClassifyURL(rawURL string) domain.ContentType {
	lower := strings.ToLower(rawURL)

	switch {
	case containsAny(lower, videoDomains):
		return domain.TypeVideo
	case containsAny(lower, socialDomains):
		return domain.TypePost
	case containsAny(lower, podcastPatterns):
		return domain.TypePodcast
	}
	return domain.TypeArticle
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var urlPrefix = regexp.MustCompile(`(?i)^https?://`)

// ParseInput classifies raw text. Priority: URL, book pattern, note.
func ParseInput(text string) (ClassifiedInput, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	if urlPrefix.MatchString(trimmed) {
		return URLInput{Type: ClassifyURL(trimmed), URL: trimmed}, nil
	}

	if book, ok := parseBook(trimmed); ok {
		return book, nil
	}

	return NoteInput{Text: trimmed}, nil
}

var (
	bookPrefix = regexp.MustCompile(`(?i)^book\s+(.+)$`)
	bookSuffix = regexp.MustCompile(`(?i)^(.+)\s+book$`)
	quotedBy   = regexp.MustCompile(`(?i)^["“](.+?)["”]?\s+by\s+(.+)$`)
	plainBy    = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)
	dashed     = regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`)
	wordChar   = regexp.MustCompile(`\w`)
)

// parseBook tries, in order: the "book" keyword, "Title" by Author,
// Title by Author, Title, Author and Title - Author.
func parseBook(input string) (BookInput, bool) {
	var keyword string
	if m := bookPrefix.FindStringSubmatch(input); m != nil {
		keyword = m[1]
	} else if m := bookSuffix.FindStringSubmatch(input); m != nil {
		keyword = m[1]
	}
	if title := strings.TrimSpace(keyword); validBookPart(title) {
		return BookInput{Title: title}, true
	}

	for _, re := range []*regexp.Regexp{quotedBy, plainBy} {
		if m := re.FindStringSubmatch(input); m != nil {
			title, author := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if validBookPart(title) && validBookPart(author) {
				return BookInput{Title: title, Author: &author}, true
			}
		}
	}

	if parts := strings.Split(input, ","); len(parts) == 2 {
		title, author := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if validBookPart(title) && validBookPart(author) && LooksLikeAuthorName(author) {
			return BookInput{Title: title, Author: &author}, true
		}
	}

	if m := dashed.FindStringSubmatch(input); m != nil {
		title, author := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if validBookPart(title) && validBookPart(author) && LooksLikeAuthorName(author) {
			return BookInput{Title: title, Author: &author}, true
		}
	}

	return BookInput{}, false
}

func validBookPart(s string) bool {
	return utf8.RuneCountInString(s) >= 2 && wordChar.MatchString(s)
}

var (
	nameForbidden = regexp.MustCompile(`[/\\@#]`)
	leadingStop   = regexp.MustCompile(`(?i)^(the|a|an|and|or|but|in|on|at|to|for)\s`)
	upperStart    = regexp.MustCompile(`^[A-Z]`)
)

// LooksLikeAuthorName rejects path/handle characters and phrases that open
// with a stopword. It accepts two or more words, or one capitalized word.
func LooksLikeAuthorName(s string) bool {
	if nameForbidden.MatchString(s) || leadingStop.MatchString(s) {
		return false
	}

	words := strings.Fields(s)
	switch {
	case len(words) >= 2:
		return true
	case len(words) == 1:
		return upperStart.MatchString(words[0])
	}
	return false
}
