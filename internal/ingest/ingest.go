// Package ingest turns raw user input into a stored, enriched item.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shelf/internal/classifier"
	"shelf/internal/domain"
	"shelf/internal/tagging"
)

const (
	// MaxInputLength caps raw input, in characters.
	MaxInputLength = 2048
	noteTitleMax   = 200
)

// ErrInputTooLong is returned for input over MaxInputLength characters.
var ErrInputTooLong = fmt.Errorf("input must be less than %d characters", MaxInputLength)

// Store creates and reads items.
type Store interface {
	CreateItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
}

// Enricher runs the enrichment for each kind of input. *enrich.Enricher
// implements it.
type Enricher interface {
	EnrichItem(ctx context.Context, itemID, url string) (*tagging.Input, error)
	EnrichBook(ctx context.Context, itemID, title string, author *string) (*tagging.Input, error)
	EnrichNote(ctx context.Context, itemID, text string) (*tagging.Input, error)
}

// TagSubmitter hands an item to background AI tagging. *enrich.TagQueue
// implements it.
type TagSubmitter interface {
	Submit(ctx context.Context, itemID string, in tagging.Input) error
}

// Service ingests raw input.
type Service struct {
	store    Store
	enricher Enricher
	tags     TagSubmitter
	log      logrus.FieldLogger
	newID    func() string
}

// NewService wires a Service. tags may be nil to skip AI tagging.
func NewService(store Store, enricher Enricher, tags TagSubmitter, logger logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		enricher: enricher,
		tags:     tags,
		log:      logger.WithField("component", "ingest"),
		newID:    uuid.NewString,
	}
}

// Ingest classifies text, stores it as a pending item, enriches it and
// queues AI tagging. The returned item reflects the enrichment outcome;
// a failed enrichment still returns the item with status failed.
func (s *Service) Ingest(ctx context.Context, text string) (*domain.Item, error) {
	if utf8.RuneCountInString(text) > MaxInputLength {
		return nil, ErrInputTooLong
	}
	input, err := classifier.ParseInput(text)
	if err != nil {
		return nil, err
	}

	item := newItem(s.newID(), strings.TrimSpace(text), input)
	log := s.log.WithFields(logrus.Fields{"item_id": item.ID, "type": item.Type})

	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	log.Info("Item created")

	var tagInput *tagging.Input
	switch in := input.(type) {
	case classifier.URLInput:
		tagInput, err = s.enricher.EnrichItem(ctx, item.ID, in.URL)
	case classifier.BookInput:
		tagInput, err = s.enricher.EnrichBook(ctx, item.ID, in.Title, in.Author)
	case classifier.NoteInput:
		tagInput, err = s.enricher.EnrichNote(ctx, item.ID, in.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("enrich item %s: %w", item.ID, err)
	}

	if tagInput != nil && s.tags != nil {
		if err := s.tags.Submit(ctx, item.ID, *tagInput); err != nil {
			log.WithError(err).Warn("AI tagging not queued")
		}
	}

	stored, err := s.store.GetItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("reload item %s: %w", item.ID, err)
	}
	return stored, nil
}

func newItem(id, raw string, input classifier.ClassifiedInput) domain.Item {
	item := domain.Item{
		ID:             id,
		Type:           input.ContentType(),
		RawInput:       raw,
		MetadataStatus: domain.MetadataPending,
		Status:         domain.StatusInbox,
	}
	switch in := input.(type) {
	case classifier.URLInput:
		item.URL = in.URL
		item.Title = in.URL
	case classifier.BookInput:
		item.Title = in.Title
		item.Author = in.Author
	case classifier.NoteInput:
		item.Title = NoteTitle(in.Text)
	}
	return item
}

// NoteTitle is the first line of a note, cut to 200 characters.
func NoteTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= noteTitleMax {
		return line
	}
	return string([]rune(line)[:noteTitleMax-3]) + "..."
}

// IsInputError reports whether err came from bad user input rather than
// from the pipeline.
func IsInputError(err error) bool {
	return errors.Is(err, classifier.ErrEmptyInput) || errors.Is(err, ErrInputTooLong)
}
