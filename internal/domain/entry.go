package domain

import (
	"time"
)

// DefaultCategory is assigned when an entry is created without a category.
const DefaultCategory = "general"

// Entry represents a knowledge base entry. The knowledge store is the sole
// owner of these values; other components treat them as read-only snapshots.
type Entry struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntry creates an Entry with defaults applied.
func NewEntry(id int, title, content, category string, tags []string, source string, now time.Time) *Entry {
	if category == "" {
		category = DefaultCategory
	}
	if tags == nil {
		tags = []string{}
	}
	return &Entry{
		ID:        id,
		Title:     title,
		Content:   content,
		Category:  category,
		Tags:      tags,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

// ValidateEntry validates an Entry instance.
func ValidateEntry(e *Entry) error {
	if e == nil {
		return ErrMissingRequiredField
	}

	if e.ID <= 0 {
		return NewDomainError(ErrCodeValidation, "entry ID must be positive")
	}

	if e.Title == "" {
		return NewDomainError(ErrCodeValidation, "entry Title is required")
	}

	if e.Content == "" {
		return NewDomainError(ErrCodeValidation, "entry Content is required")
	}

	if e.UpdatedAt.Before(e.CreatedAt) {
		return NewDomainError(ErrCodeValidation, "entry UpdatedAt must not precede CreatedAt")
	}

	return nil
}
