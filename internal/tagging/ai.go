package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-haiku-4-5-20251001"

	maxAITags       = 5
	maxRawInputLen  = 1000
	minSlugLen      = 2
	defaultMaxToken = 256
)

// ErrNoStructuredOutput is reported when the model answers without a tag list.
var ErrNoStructuredOutput = errors.New("No structured output generated")

// Input is what the AI tagger knows about an item.
type Input struct {
	Title       string             `json:"title,omitempty"`
	Author      string             `json:"author,omitempty"`
	Description string             `json:"description,omitempty"`
	SiteName    string             `json:"site_name,omitempty"`
	RawInput    string             `json:"raw_input,omitempty"`
	Type        domain.ContentType `json:"type"`
}

// Result is the outcome of one tagging call. Err is nil on success; a nil
// Err with no Tags means nothing to apply, whether or not tagging ran.
type Result struct {
	Tags []domain.Tag
	Err  error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Generator asks a model for candidate tag names.
type Generator interface {
	GenerateTagNames(ctx context.Context, systemPrompt, userPrompt string) ([]string, error)
}

// Tagger turns item descriptions into topical tags. A Tagger without a
// generator is a no-op.
type Tagger struct {
	gen    Generator
	logger logrus.FieldLogger
}

// NewTagger returns a Tagger. gen may be nil.
func NewTagger(gen Generator, logger logrus.FieldLogger) *Tagger {
	return &Tagger{gen: gen, logger: logger.WithField("component", "ai_tagger")}
}

// Generate asks the model for 2-5 tags for in, preferring names from
// existing. It never returns an error; failures are carried in the Result.
func (t *Tagger) Generate(ctx context.Context, in Input, existing []string) Result {
	if t.gen == nil {
		t.logger.Info("AI tagging skipped: no API key configured")
		return Result{}
	}

	names, err := t.gen.GenerateTagNames(ctx, SystemPrompt(existing), UserPrompt(in))
	if err != nil {
		t.logger.WithError(err).Warn("AI tag generation failed")
		return Result{Err: err}
	}
	if names == nil {
		return Result{Err: ErrNoStructuredOutput}
	}

	return Result{Tags: normalizeNames(names)}
}

func normalizeNames(names []string) []domain.Tag {
	var tags []domain.Tag
	seen := make(map[string]bool)
	for _, name := range names {
		slug := Slugify(name)
		if len(slug) < minSlugLen || seen[slug] {
			continue
		}
		seen[slug] = true
		tags = append(tags, domain.Tag{
			Name:  strings.TrimSpace(name),
			Slug:  slug,
			Color: domain.DefaultTagColor,
		})
		if len(tags) == maxAITags {
			break
		}
	}
	return tags
}

const systemPromptBase = `You assign topic tags to items in a personal reading list.

Rules:
- Return between 2 and 5 tags.
- Tags name subjects, fields or technologies, not formats or sources.
- Do not tag the content type (article, video, post, podcast, book, note).
- Do not tag the website or platform name.
- Keep each tag short: one to three words, in Title Case.
- Prefer well known, general terms over niche phrasing.

Examples:
- A tutorial on React hooks: "React", "Frontend", "JavaScript"
- A talk about the economics of climate policy: "Climate", "Economics", "Policy"
- A novel about a desert planet: "Science Fiction", "Fiction"`

// SystemPrompt builds the tagging instructions, listing existing tag names
// so the model reuses them instead of inventing synonyms.
func SystemPrompt(existing []string) string {
	if len(existing) == 0 {
		return systemPromptBase
	}
	var b strings.Builder
	b.WriteString(systemPromptBase)
	b.WriteString("\n\n<existing_tags>\n")
	b.WriteString(strings.Join(existing, ", "))
	b.WriteString("\n</existing_tags>\n")
	b.WriteString("Reuse an existing tag whenever one fits. Only create a new tag when none of them apply.")
	return b.String()
}

// UserPrompt describes the item using whichever fields are set.
func UserPrompt(in Input) string {
	var lines []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Title", in.Title)
	add("Author", in.Author)
	add("Description", in.Description)
	add("Site", in.SiteName)
	add("Content", truncateRunes(in.RawInput, maxRawInputLen))
	add("Type", string(in.Type))
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const tagSchema = `{
  "type": "object",
  "properties": {
    "tags": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 2,
      "maxItems": 5
    }
  },
  "required": ["tags"],
  "additionalProperties": false
}`

// AnthropicGenerator calls the Anthropic messages API with a JSON schema
// constrained response.
type AnthropicGenerator struct {
	apiKey string
	model  string
}

// NewAnthropicGenerator returns nil when apiKey is empty so callers can hand
// the result straight to NewTagger.
func NewAnthropicGenerator(apiKey, model string) Generator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicGenerator{apiKey: apiKey, model: model}
}

type tagResponse struct {
	Tags []string `json:"tags"`
}

// GenerateTagNames implements Generator.
func (g *AnthropicGenerator) GenerateTagNames(ctx context.Context, systemPrompt, userPrompt string) ([]string, error) {
	settings := types.RequestSettings{
		Model:       g.model,
		MaxTokens:   defaultMaxToken,
		Temperature: 0.2,
	}

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, tagSchema, g.apiKey, settings)
		if err != nil {
			done <- reply{err: err}
			return
		}
		if len(resp.Content) == 0 {
			done <- reply{}
			return
		}
		done <- reply{text: resp.Content[0].Text}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, fmt.Errorf("anthropic request: %w", r.err)
	}
	if strings.TrimSpace(r.text) == "" {
		return nil, nil
	}

	var out tagResponse
	if err := json.Unmarshal([]byte(r.text), &out); err != nil {
		return nil, fmt.Errorf("parse structured response: %w", err)
	}
	if out.Tags == nil {
		return nil, nil
	}
	return out.Tags, nil
}
