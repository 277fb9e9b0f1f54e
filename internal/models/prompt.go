package models

import (
	"time"

	"github.com/google/uuid"
)

// Template lifecycle states.
const (
	TemplateStatusActive   = "active"
	TemplateStatusArchived = "archived"
)

type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Tag struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type PromptTemplate struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty" db:"category_id"`
	Tags        []Tag      `json:"tags,omitempty"`
	Status      string     `json:"status" db:"status"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// PromptVersion is immutable once inserted. Version numbers form a dense
// sequence starting at 1 per template. The current version is the one with
// the highest number; no "latest" pointer is stored on the template.
type PromptVersion struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TemplateID    uuid.UUID  `json:"template_id" db:"template_id"`
	VersionNumber int        `json:"version_number" db:"version_number"`
	Body          string     `json:"body" db:"body"`
	Variables     []string   `json:"variables" db:"variables"`
	ChangeNote    string     `json:"change_note,omitempty" db:"change_note"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// PromptVariant is an alternate body under a single version, for A/B testing.
type PromptVariant struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	VersionID uuid.UUID  `json:"version_id" db:"version_id"`
	Name      string     `json:"name" db:"name"`
	Body      string     `json:"body" db:"body"`
	Variables []string   `json:"variables" db:"variables"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
