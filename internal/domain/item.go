package domain

import "time"

// ContentType is the kind of thing an item points at.
type ContentType string

const (
	TypeArticle ContentType = "article"
	TypeVideo   ContentType = "video"
	TypePost    ContentType = "post"
	TypePodcast ContentType = "podcast"
	TypeBook    ContentType = "book"
	TypeNote    ContentType = "note"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case TypeArticle, TypeVideo, TypePost, TypePodcast, TypeBook, TypeNote:
		return true
	}
	return false
}

// MetadataStatus is the externally visible state of an item's enrichment.
// Only the enrichment orchestrator writes it.
type MetadataStatus string

const (
	MetadataPending    MetadataStatus = "pending"
	MetadataProcessing MetadataStatus = "processing"
	MetadataCompleted  MetadataStatus = "completed"
	MetadataFailed     MetadataStatus = "failed"
)

// ItemStatus is the user's reading state for an item.
type ItemStatus string

const (
	StatusInbox    ItemStatus = "inbox"
	StatusQueued   ItemStatus = "queued"
	StatusReading  ItemStatus = "reading"
	StatusDone     ItemStatus = "done"
	StatusArchived ItemStatus = "archived"
)

// Valid reports whether s is one of the known reading states.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusInbox, StatusQueued, StatusReading, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Item is a saved piece of content.
type Item struct {
	// ID is a random UUID assigned at creation.
	ID string `json:"id" yaml:"id"`

	Type  ContentType `json:"type" yaml:"type"`
	Title string      `json:"title" yaml:"title"`

	// URL is empty for books and notes.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// RawInput is the trimmed text the user submitted.
	RawInput string `json:"raw_input" yaml:"raw_input"`

	Author           *string    `json:"author,omitempty" yaml:"author,omitempty"`
	Description      *string    `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL         *string    `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	ImageWidth       *int       `json:"image_width,omitempty" yaml:"image_width,omitempty"`
	ImageHeight      *int       `json:"image_height,omitempty" yaml:"image_height,omitempty"`
	FaviconURL       *string    `json:"favicon_url,omitempty" yaml:"favicon_url,omitempty"`
	SiteName         *string    `json:"site_name,omitempty" yaml:"site_name,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	WordCount        *int       `json:"word_count,omitempty" yaml:"word_count,omitempty"`
	ReadingTime      *int       `json:"reading_time,omitempty" yaml:"reading_time,omitempty"`
	EnrichmentSource *string    `json:"enrichment_source,omitempty" yaml:"enrichment_source,omitempty"`

	MetadataStatus MetadataStatus `json:"metadata_status" yaml:"metadata_status"`
	Status         ItemStatus     `json:"status" yaml:"status"`

	// Tags is populated on reads; writes go through tag association.
	Tags []Tag `json:"tags,omitempty" yaml:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ItemUpdate is a partial update. Nil fields are left untouched.
type ItemUpdate struct {
	Type             *ContentType
	Title            *string
	Author           *string
	Description      *string
	ImageURL         *string
	ImageWidth       *int
	ImageHeight      *int
	FaviconURL       *string
	SiteName         *string
	PublishedAt      *time.Time
	WordCount        *int
	ReadingTime      *int
	EnrichmentSource *string
	MetadataStatus   *MetadataStatus
	Status           *ItemStatus
}

// Apply copies every set field of u onto item.
func (u ItemUpdate) Apply(item *Item) {
	if u.Type != nil {
		item.Type = *u.Type
	}
	if u.Title != nil {
		item.Title = *u.Title
	}
	if u.Author != nil {
		item.Author = u.Author
	}
	if u.Description != nil {
		item.Description = u.Description
	}
	if u.ImageURL != nil {
		item.ImageURL = u.ImageURL
	}
	if u.ImageWidth != nil {
		item.ImageWidth = u.ImageWidth
	}
	if u.ImageHeight != nil {
		item.ImageHeight = u.ImageHeight
	}
	if u.FaviconURL != nil {
		item.FaviconURL = u.FaviconURL
	}
	if u.SiteName != nil {
		item.SiteName = u.SiteName
	}
	if u.PublishedAt != nil {
		item.PublishedAt = u.PublishedAt
	}
	if u.WordCount != nil {
		item.WordCount = u.WordCount
	}
	if u.ReadingTime != nil {
		item.ReadingTime = u.ReadingTime
	}
	if u.EnrichmentSource != nil {
		item.EnrichmentSource = u.EnrichmentSource
	}
	if u.MetadataStatus != nil {
		item.MetadataStatus = *u.MetadataStatus
	}
	if u.Status != nil {
		item.Status = *u.Status
	}
}

// StatusUpdate builds an update that only moves the metadata status.
func StatusUpdate(s MetadataStatus) ItemUpdate {
	return ItemUpdate{MetadataStatus: &s}
}
