package domain

// Tag labels an item. Slug is the stable identity; tags are unique by slug.
type Tag struct {
	Name  string `json:"name" yaml:"name"`
	Slug  string `json:"slug" yaml:"slug"`
	Color string `json:"color" yaml:"color"`
}

// DefaultTagColor is used for tags without a palette entry.
const DefaultTagColor = "#6B7280"
