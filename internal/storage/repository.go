package storage

import (
	"context"
	"errors"

	"shelf/internal/domain"
)

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = errors.New("item not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListFilter narrows ListItems. Nil fields match everything.
type ListFilter struct {
	Status *domain.ItemStatus
	Type   *domain.ContentType
	Limit  int
	Offset int
}

// Normalize clamps Limit to 1..MaxListLimit (0 means DefaultListLimit) and
// Offset to a non-negative value.
func (f ListFilter) Normalize() ListFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f ListFilter) matches(item domain.Item) bool {
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	if f.Type != nil && item.Type != *f.Type {
		return false
	}
	return true
}

// Writer is the set of writes that can be grouped in one transaction.
type Writer interface {
	// UpdateItem applies a partial update. Returns ErrNotFound for unknown ids.
	UpdateItem(ctx context.Context, id string, upd domain.ItemUpdate) error

	// UpsertTagsAndAssociate creates missing tags by slug and links them to
	// the item. Existing tags and links are left as they are.
	UpsertTagsAndAssociate(ctx context.Context, itemID string, tags []domain.Tag) error
}

// Repository is the item and tag store used by the pipeline. Badger and
// PostgreSQL implementations are interchangeable.
type Repository interface {
	Writer

	CreateItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error

	// ListItems returns matching items newest first, tags included.
	ListItems(ctx context.Context, filter ListFilter) ([]domain.Item, error)

	// ListTagNames returns every known tag name, sorted.
	ListTagNames(ctx context.Context) ([]string, error)

	// WithTx runs fn in a single transaction. Any error rolls back every
	// write made through the Writer.
	WithTx(ctx context.Context, fn func(Writer) error) error

	// Close gracefully shuts down the repository connection.
	Close() error
}
