package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"shelf/internal/domain"
)

// BadgerRepository implements Repository on BadgerDB.
//
// Key layout:
//
//	item:{id}               JSON item without tags
//	tag:{slug}              JSON tag
//	itemtag:{itemID}:{slug} empty, one per association
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

var _ Repository = (*BadgerRepository)(nil)

const maxConflictRetries = 3

// NewBadgerRepository opens the database at dbPath.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.WithField("path", dbPath).Info("BadgerDB opened")

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// Close closes the BadgerDB database.
func (r *BadgerRepository) Close() error {
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed")
	return nil
}

func itemKey(id string) []byte { return []byte("item:" + id) }

func tagKey(slug string) []byte { return []byte("tag:" + slug) }

func itemTagPrefix(itemID string) []byte { return []byte("itemtag:" + itemID + ":") }

func itemTagKey(itemID, slug string) []byte { return append(itemTagPrefix(itemID), slug...) }

var (
	itemPrefix = []byte("item:")
	tagPrefix  = []byte("tag:")
)

// CreateItem stores a new item. CreatedAt and UpdatedAt default to now.
func (r *BadgerRepository) CreateItem(ctx context.Context, item domain.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	item.Tags = nil

	val, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	err = r.update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.ID), val)
	})
	if err != nil {
		r.log.WithError(err).WithField("item_id", item.ID).Error("Failed to save item")
		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}
	r.log.WithFields(logrus.Fields{"item_id": item.ID, "type": item.Type}).Debug("Item saved")
	return nil
}

// GetItem loads one item with its tags.
func (r *BadgerRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := r.db.View(func(txn *badger.Txn) error {
		loaded, err := getItem(txn, id)
		if err != nil {
			return err
		}
		if loaded.Tags, err = itemTags(txn, id); err != nil {
			return err
		}
		item = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem applies upd in its own transaction.
func (r *BadgerRepository) UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error {
	return r.update(func(txn *badger.Txn) error {
		return (&badgerTx{txn: txn}).UpdateItem(ctx, id, upd)
	})
}

// UpsertTagsAndAssociate writes tags and links in its own transaction.
func (r *BadgerRepository) UpsertTagsAndAssociate(ctx context.Context, itemID string, tags []domain.Tag) error {
	return r.update(func(txn *badger.Txn) error {
		return (&badgerTx{txn: txn}).UpsertTagsAndAssociate(ctx, itemID, tags)
	})
}

// WithTx runs fn inside one read-write transaction.
func (r *BadgerRepository) WithTx(ctx context.Context, fn func(Writer) error) error {
	return r.update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first.
func (r *BadgerRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		if err = r.db.Update(fn); !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.WithField("attempt", attempt).Debug("Transaction conflict, retrying")
	}
	return err
}

// DeleteItem removes the item and its tag links. Tags themselves stay.
func (r *BadgerRepository) DeleteItem(ctx context.Context, id string) error {
	err := r.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(itemKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		links, err := keysWithPrefix(txn, itemTagPrefix(id))
		if err != nil {
			return err
		}
		for _, k := range links {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(itemKey(id))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		r.log.WithError(err).WithField("item_id", id).Error("Failed to delete item")
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	r.log.WithField("item_id", id).Info("Item deleted")
	return nil
}

// ListItems scans every item, filters, sorts newest first and pages.
func (r *BadgerRepository) ListItems(ctx context.Context, filter ListFilter) ([]domain.Item, error) {
	filter = filter.Normalize()

	var items []domain.Item
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: itemPrefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var item domain.Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal item for key %s: %w", it.Item().Key(), err)
			}
			if filter.matches(item) {
				items = append(items, item)
			}
		}

		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
		items = page(items, filter.Offset, filter.Limit)

		for i := range items {
			tags, err := itemTags(txn, items[i].ID)
			if err != nil {
				return err
			}
			items[i].Tags = tags
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to list items")
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// ListTagNames returns all tag names sorted alphabetically.
func (r *BadgerRepository) ListTagNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: tagPrefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var tag domain.Tag
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &tag) }); err != nil {
				return err
			}
			names = append(names, tag.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// badgerTx is the Writer bound to one badger transaction.
type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error {
	item, err := getItem(t.txn, id)
	if err != nil {
		return err
	}
	upd.Apply(&item)
	item.UpdatedAt = time.Now().UTC()

	val, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	return t.txn.Set(itemKey(id), val)
}

func (t *badgerTx) UpsertTagsAndAssociate(ctx context.Context, itemID string, tags []domain.Tag) error {
	if _, err := getItem(t.txn, itemID); err != nil {
		return err
	}
	for _, tag := range tags {
		_, err := t.txn.Get(tagKey(tag.Slug))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			val, err := json.Marshal(tag)
			if err != nil {
				return fmt.Errorf("failed to marshal tag: %w", err)
			}
			if err := t.txn.Set(tagKey(tag.Slug), val); err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if err := t.txn.Set(itemTagKey(itemID, tag.Slug), nil); err != nil {
			return err
		}
	}
	return nil
}

func getItem(txn *badger.Txn, id string) (domain.Item, error) {
	var item domain.Item
	entry, err := txn.Get(itemKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return item, ErrNotFound
	}
	if err != nil {
		return item, err
	}
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	})
	if err != nil {
		return item, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}
	return item, nil
}

// itemTags resolves the tag links of one item, ordered by slug.
func itemTags(txn *badger.Txn, itemID string) ([]domain.Tag, error) {
	prefix := itemTagPrefix(itemID)
	links, err := keysWithPrefix(txn, prefix)
	if err != nil {
		return nil, err
	}
	var tags []domain.Tag
	for _, k := range links {
		slug := string(bytes.TrimPrefix(k, prefix))
		entry, err := txn.Get(tagKey(slug))
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var tag domain.Tag
		if err := entry.Value(func(val []byte) error { return json.Unmarshal(val, &tag) }); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func keysWithPrefix(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func page(items []domain.Item, offset, limit int) []domain.Item {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
