package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var itemColumns = []string{
	"id", "type", "title", "url", "raw_input",
	"author", "description", "image_url", "image_width", "image_height",
	"favicon_url", "site_name", "published_at", "word_count", "reading_time",
	"enrichment_source", "metadata_status", "status", "created_at", "updated_at",
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db  *sql.DB
	log logrus.FieldLogger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository connects to dsn and applies pending migrations.
func NewPostgresRepository(ctx context.Context, dsn string, logger logrus.FieldLogger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log := logger.WithField("component", "repository")
	if err := Migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("PostgreSQL connected")
	return &PostgresRepository{db: db, log: log}, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// CreateItem inserts a new item.
func (r *PostgresRepository) CreateItem(ctx context.Context, item domain.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if err := execBuilder(ctx, r.db, insertItemQuery(item)); err != nil {
		r.log.WithError(err).WithField("item_id", item.ID).Error("Failed to save item")
		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}
	return nil
}

// GetItem loads one item with its tags.
func (r *PostgresRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	query, args, err := selectItemsQuery().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item %s: %w", id, err)
	}

	tags, err := loadTags(ctx, r.db, []string{id})
	if err != nil {
		return nil, err
	}
	item.Tags = tags[id]
	return &item, nil
}

// UpdateItem applies upd outside any explicit transaction.
func (r *PostgresRepository) UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error {
	return (&pgWriter{q: r.db}).UpdateItem(ctx, id, upd)
}

// UpsertTagsAndAssociate writes tags and links in one transaction.
func (r *PostgresRepository) UpsertTagsAndAssociate(ctx context.Context, itemID string, tags []domain.Tag) error {
	return r.WithTx(ctx, func(w Writer) error {
		return w.UpsertTagsAndAssociate(ctx, itemID, tags)
	})
}

// WithTx runs fn in a database transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(Writer) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgWriter{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteItem removes an item. Links go with it through ON DELETE CASCADE.
func (r *PostgresRepository) DeleteItem(ctx context.Context, id string) error {
	query, args, err := psql.Delete("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItems returns one page of items newest first.
func (r *PostgresRepository) ListItems(ctx context.Context, filter ListFilter) ([]domain.Item, error) {
	query, args, err := listItemsQuery(filter).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var (
		items []domain.Item
		ids   []string
	)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	tags, err := loadTags(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Tags = tags[items[i].ID]
	}
	return items, nil
}

// ListTagNames returns all tag names sorted alphabetically.
func (r *PostgresRepository) ListTagNames(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("name").From("tags").OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// pgWriter runs writes against either the pool or an open transaction.
type pgWriter struct {
	q queryer
}

func (w *pgWriter) UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error {
	query, args, err := updateItemQuery(id, upd, time.Now().UTC()).ToSql()
	if err != nil {
		return err
	}
	res, err := w.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (w *pgWriter) UpsertTagsAndAssociate(ctx context.Context, itemID string, tags []domain.Tag) error {
	query, args, err := psql.Select("1").From("items").Where(sq.Eq{"id": itemID}).ToSql()
	if err != nil {
		return err
	}
	var one int
	if err := w.q.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check item %s: %w", itemID, err)
	}

	for _, tag := range tags {
		if err := execBuilder(ctx, w.q, upsertTagQuery(tag)); err != nil {
			return fmt.Errorf("failed to upsert tag %s: %w", tag.Slug, err)
		}
		if err := execBuilder(ctx, w.q, associateTagQuery(itemID, tag.Slug)); err != nil {
			return fmt.Errorf("failed to associate tag %s: %w", tag.Slug, err)
		}
	}
	return nil
}

func execBuilder(ctx context.Context, q queryer, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func insertItemQuery(item domain.Item) sq.InsertBuilder {
	return psql.Insert("items").SetMap(map[string]any{
		"id":                item.ID,
		"type":              string(item.Type),
		"title":             item.Title,
		"url":               nullString(item.URL),
		"raw_input":         item.RawInput,
		"author":            item.Author,
		"description":       item.Description,
		"image_url":         item.ImageURL,
		"image_width":       item.ImageWidth,
		"image_height":      item.ImageHeight,
		"favicon_url":       item.FaviconURL,
		"site_name":         item.SiteName,
		"published_at":      item.PublishedAt,
		"word_count":        item.WordCount,
		"reading_time":      item.ReadingTime,
		"enrichment_source": item.EnrichmentSource,
		"metadata_status":   string(item.MetadataStatus),
		"status":            string(item.Status),
		"created_at":        item.CreatedAt,
		"updated_at":        item.UpdatedAt,
	})
}

// updateItemQuery sets only the fields present in upd, plus updated_at.
func updateItemQuery(id string, upd domain.ItemUpdate, now time.Time) sq.UpdateBuilder {
	set := map[string]any{"updated_at": now}
	if upd.Type != nil {
		set["type"] = string(*upd.Type)
	}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Author != nil {
		set["author"] = *upd.Author
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.ImageURL != nil {
		set["image_url"] = *upd.ImageURL
	}
	if upd.ImageWidth != nil {
		set["image_width"] = *upd.ImageWidth
	}
	if upd.ImageHeight != nil {
		set["image_height"] = *upd.ImageHeight
	}
	if upd.FaviconURL != nil {
		set["favicon_url"] = *upd.FaviconURL
	}
	if upd.SiteName != nil {
		set["site_name"] = *upd.SiteName
	}
	if upd.PublishedAt != nil {
		set["published_at"] = *upd.PublishedAt
	}
	if upd.WordCount != nil {
		set["word_count"] = *upd.WordCount
	}
	if upd.ReadingTime != nil {
		set["reading_time"] = *upd.ReadingTime
	}
	if upd.EnrichmentSource != nil {
		set["enrichment_source"] = *upd.EnrichmentSource
	}
	if upd.MetadataStatus != nil {
		set["metadata_status"] = string(*upd.MetadataStatus)
	}
	if upd.Status != nil {
		set["status"] = string(*upd.Status)
	}
	return psql.Update("items").SetMap(set).Where(sq.Eq{"id": id})
}

func selectItemsQuery() sq.SelectBuilder {
	return psql.Select(itemColumns...).From("items")
}

func listItemsQuery(filter ListFilter) sq.SelectBuilder {
	filter = filter.Normalize()
	q := selectItemsQuery()
	if filter.Status != nil {
		q = q.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.Type != nil {
		q = q.Where(sq.Eq{"type": string(*filter.Type)})
	}
	return q.OrderBy("created_at DESC").Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset))
}

// upsertTagQuery keeps the first name and color written for a slug.
func upsertTagQuery(tag domain.Tag) sq.InsertBuilder {
	return psql.Insert("tags").
		Columns("slug", "name", "color").
		Values(tag.Slug, tag.Name, tag.Color).
		Suffix("ON CONFLICT (slug) DO NOTHING")
}

func associateTagQuery(itemID, slug string) sq.InsertBuilder {
	return psql.Insert("item_tags").
		Columns("item_id", "tag_slug").
		Values(itemID, slug).
		Suffix("ON CONFLICT (item_id, tag_slug) DO NOTHING")
}

func tagsForItemsQuery(ids []string) sq.SelectBuilder {
	return psql.Select("it.item_id", "t.slug", "t.name", "t.color").
		From("item_tags it").
		Join("tags t ON t.slug = it.tag_slug").
		Where("it.item_id = ANY(?)", pq.StringArray(ids)).
		OrderBy("it.item_id", "t.slug")
}

func loadTags(ctx context.Context, q queryer, ids []string) (map[string][]domain.Tag, error) {
	query, args, err := tagsForItemsQuery(ids).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Tag, len(ids))
	for rows.Next() {
		var (
			itemID string
			tag    domain.Tag
		)
		if err := rows.Scan(&itemID, &tag.Slug, &tag.Name, &tag.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out[itemID] = append(out[itemID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var item domain.Item
	var typ, metadataStatus, status string
	var url, author, description, imageURL, faviconURL, siteName, source sql.NullString
	var imageWidth, imageHeight, wordCount, readingTime sql.NullInt64
	var publishedAt sql.NullTime
	err := row.Scan(
		&item.ID, &typ, &item.Title, &url, &item.RawInput,
		&author, &description, &imageURL, &imageWidth, &imageHeight,
		&faviconURL, &siteName, &publishedAt, &wordCount, &readingTime,
		&source, &metadataStatus, &status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return item, err
	}

	item.Type = domain.ContentType(typ)
	item.MetadataStatus = domain.MetadataStatus(metadataStatus)
	item.Status = domain.ItemStatus(status)
	item.URL = url.String
	item.Author = stringPtr(author)
	item.Description = stringPtr(description)
	item.ImageURL = stringPtr(imageURL)
	item.FaviconURL = stringPtr(faviconURL)
	item.SiteName = stringPtr(siteName)
	item.EnrichmentSource = stringPtr(source)
	item.ImageWidth = intPtr(imageWidth)
	item.ImageHeight = intPtr(imageHeight)
	item.WordCount = intPtr(wordCount)
	item.ReadingTime = intPtr(readingTime)
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
