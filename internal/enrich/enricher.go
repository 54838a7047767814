// Package enrich drives an item's metadata status from pending to completed
// or failed, and hands the result to background AI tagging.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shelf/internal/books"
	"shelf/internal/classifier"
	"shelf/internal/domain"
	"shelf/internal/metrics"
	"shelf/internal/storage"
	"shelf/internal/tagging"
)

// Item kinds used in logs and metrics.
const (
	KindURL  = "url"
	KindBook = "book"
	KindNote = "note"
)

// Store is the persistence the enricher needs. storage.Repository satisfies it.
type Store interface {
	UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error
	ListTagNames(ctx context.Context) ([]string, error)
	WithTx(ctx context.Context, fn func(storage.Writer) error) error
}

// MetadataExtractor never fails; an empty record means nothing was found.
type MetadataExtractor interface {
	Extract(ctx context.Context, url string) domain.ExtractedMetadata
}

// BookSearcher returns nil when no volume matches.
type BookSearcher interface {
	SearchBook(ctx context.Context, title string, author *string) *books.Metadata
}

// AITagger reports failures inside the Result.
type AITagger interface {
	Generate(ctx context.Context, in tagging.Input, existing []string) tagging.Result
}

// DefaultAITimeout bounds one background tagging run.
const DefaultAITimeout = 60 * time.Second

// Enricher is the only writer of Item.MetadataStatus.
type Enricher struct {
	store     Store
	extractor MetadataExtractor
	books     BookSearcher
	tagger    AITagger
	metrics   *metrics.Recorder
	log       logrus.FieldLogger
	aiTimeout time.Duration
}

// NewEnricher wires an Enricher. books, tagger and rec may be nil.
func NewEnricher(store Store, extractor MetadataExtractor, bookSearcher BookSearcher, tagger AITagger, rec *metrics.Recorder, logger logrus.FieldLogger) *Enricher {
	return &Enricher{
		store:     store,
		extractor: extractor,
		books:     bookSearcher,
		tagger:    tagger,
		metrics:   rec,
		log:       logger.WithField("component", "enricher"),
		aiTimeout: DefaultAITimeout,
	}
}

// SetAITimeout changes the deadline applied to each RunAITagging call.
// Non-positive values are ignored.
func (e *Enricher) SetAITimeout(d time.Duration) {
	if d > 0 {
		e.aiTimeout = d
	}
}

// EnrichItem extracts metadata for a URL item, stores it with the auto-tags
// and returns the input for AI tagging.
//
// On failure the item is marked failed and (nil, nil) is returned. An error
// is returned only when marking it failed fails too.
func (e *Enricher) EnrichItem(ctx context.Context, itemID, url string) (*tagging.Input, error) {
	log := e.log.WithFields(logrus.Fields{"item_id": itemID, "url": url})

	in, err := e.enrichURL(ctx, itemID, url)
	if err != nil {
		return nil, e.fail(ctx, log, itemID, KindURL, err)
	}
	e.metrics.Enrichment(KindURL, metrics.OutcomeCompleted)
	log.WithField("type", in.Type).Info("Item enriched")
	return in, nil
}

func (e *Enricher) enrichURL(ctx context.Context, itemID, url string) (*tagging.Input, error) {
	if err := e.store.UpdateItem(ctx, itemID, domain.StatusUpdate(domain.MetadataProcessing)); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	md, err := e.extract(ctx, url)
	if err != nil {
		return nil, err
	}

	autoTags := tagging.GenerateAutoTags(url, md)
	err = e.store.WithTx(ctx, func(w storage.Writer) error {
		if err := w.UpdateItem(ctx, itemID, metadataUpdate(md)); err != nil {
			return fmt.Errorf("store metadata: %w", err)
		}
		if err := w.UpsertTagsAndAssociate(ctx, itemID, autoTags); err != nil {
			return fmt.Errorf("store auto tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	typ := classifier.ClassifyURL(url)
	if md.TypeOverride != nil {
		typ = *md.TypeOverride
	}
	return &tagging.Input{
		Title:       domain.Deref(md.Title),
		Author:      domain.Deref(md.Author),
		Description: domain.Deref(md.Description),
		SiteName:    domain.Deref(md.SiteName),
		RawInput:    url,
		Type:        typ,
	}, nil
}

// extract turns an extractor panic into an error so the item still fails.
func (e *Enricher) extract(ctx context.Context, url string) (md domain.ExtractedMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract metadata: panic: %v", r)
		}
	}()
	return e.extractor.Extract(ctx, url), nil
}

// metadataUpdate maps extracted fields onto the item. The title is only
// replaced when one was found; the status becomes completed.
func metadataUpdate(md domain.ExtractedMetadata) domain.ItemUpdate {
	completed := domain.MetadataCompleted
	upd := domain.ItemUpdate{
		Description:    md.Description,
		ImageURL:       md.ImageURL,
		ImageWidth:     md.ImageWidth,
		ImageHeight:    md.ImageHeight,
		FaviconURL:     md.FaviconURL,
		SiteName:       md.SiteName,
		Author:         md.Author,
		PublishedAt:    domain.ParsePublished(md.PublishedAt),
		WordCount:      md.WordCount,
		ReadingTime:    md.ReadingTime,
		MetadataStatus: &completed,
		Type:           md.TypeOverride,
	}
	if md.Title != nil && *md.Title != "" {
		upd.Title = md.Title
	}
	if md.EnrichmentSource != "" {
		source := md.EnrichmentSource
		upd.EnrichmentSource = &source
	}
	return upd
}

// EnrichBook looks a book up and stores what was found. A book that is not
// found still completes; the item keeps its input-derived title.
func (e *Enricher) EnrichBook(ctx context.Context, itemID, title string, author *string) (*tagging.Input, error) {
	log := e.log.WithFields(logrus.Fields{"item_id": itemID, "title": title})

	in, err := e.enrichBook(ctx, itemID, title, author)
	if err != nil {
		return nil, e.fail(ctx, log, itemID, KindBook, err)
	}
	e.metrics.Enrichment(KindBook, metrics.OutcomeCompleted)
	log.Info("Book enriched")
	return in, nil
}

func (e *Enricher) enrichBook(ctx context.Context, itemID, title string, author *string) (*tagging.Input, error) {
	if err := e.store.UpdateItem(ctx, itemID, domain.StatusUpdate(domain.MetadataProcessing)); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	in := &tagging.Input{Title: title, Author: domain.Deref(author), RawInput: bookRawInput(title, author), Type: domain.TypeBook}
	completed := domain.MetadataCompleted
	upd := domain.ItemUpdate{MetadataStatus: &completed}

	var md *books.Metadata
	if e.books != nil {
		md = e.books.SearchBook(ctx, title, author)
	}
	if md != nil {
		source := domain.SourceGoogleBooks
		upd.Title = &md.Title
		upd.Author = md.Author
		upd.Description = md.Description
		upd.ImageURL = md.ImageURL
		upd.EnrichmentSource = &source

		in.Title = md.Title
		in.Author = domain.Deref(md.Author)
		in.Description = domain.Deref(md.Description)
	}

	if err := e.store.UpdateItem(ctx, itemID, upd); err != nil {
		return nil, fmt.Errorf("store book metadata: %w", err)
	}
	return in, nil
}

func bookRawInput(title string, author *string) string {
	if author == nil || *author == "" {
		return title
	}
	return strings.Join([]string{title, "by", *author}, " ")
}

// EnrichNote completes a note. There is nothing to extract.
func (e *Enricher) EnrichNote(ctx context.Context, itemID, text string) (*tagging.Input, error) {
	log := e.log.WithField("item_id", itemID)

	if err := e.store.UpdateItem(ctx, itemID, domain.StatusUpdate(domain.MetadataCompleted)); err != nil {
		return nil, e.fail(ctx, log, itemID, KindNote, fmt.Errorf("mark completed: %w", err))
	}
	e.metrics.Enrichment(KindNote, metrics.OutcomeCompleted)
	return &tagging.Input{RawInput: text, Type: domain.TypeNote}, nil
}

// fail marks the item failed. The write ignores cancellation of ctx so an
// aborted request cannot leave the item processing.
func (e *Enricher) fail(ctx context.Context, log logrus.FieldLogger, itemID, kind string, cause error) error {
	log.WithError(cause).Error("Enrichment failed")
	e.metrics.Enrichment(kind, metrics.OutcomeFailed)

	if err := e.store.UpdateItem(context.WithoutCancel(ctx), itemID, domain.StatusUpdate(domain.MetadataFailed)); err != nil {
		log.WithError(err).Error("Failed to mark item as failed")
		return errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	return nil
}

// RunAITagging generates AI tags for an item and stores them in one
// transaction. Every failure is logged and dropped.
func (e *Enricher) RunAITagging(ctx context.Context, itemID string, in tagging.Input) {
	log := e.log.WithFields(logrus.Fields{"item_id": itemID, "type": in.Type})
	if e.tagger == nil {
		e.metrics.AITagging(metrics.OutcomeEmpty)
		return
	}

	// Queue jobs run detached from the caller, so this is the only bound
	// on a stalled model call.
	ctx, cancel := context.WithTimeout(ctx, e.aiTimeout)
	defer cancel()

	existing, err := e.store.ListTagNames(ctx)
	if err != nil {
		log.WithError(err).Error("Background AI tagging failed")
		e.metrics.AITagging(metrics.OutcomeError)
		return
	}

	res := e.tagger.Generate(ctx, in, existing)
	if !res.OK() {
		log.WithError(res.Err).Error("Background AI tagging failed")
		e.metrics.AITagging(metrics.OutcomeError)
		return
	}
	if len(res.Tags) == 0 {
		e.metrics.AITagging(metrics.OutcomeEmpty)
		return
	}

	err = e.store.WithTx(ctx, func(w storage.Writer) error {
		return w.UpsertTagsAndAssociate(ctx, itemID, res.Tags)
	})
	if err != nil {
		log.WithError(err).Error("Background AI tagging failed")
		e.metrics.AITagging(metrics.OutcomeError)
		return
	}
	e.metrics.AITagging(metrics.OutcomeTagged)
	log.WithField("tag_count", len(res.Tags)).Info("AI tags applied")
}
