package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptdeck/promptdeck/internal/cache"
	"github.com/promptdeck/promptdeck/internal/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrVersionNotFound  = errors.New("version not found")
	ErrNoVersions       = errors.New("template has no versions")
	ErrVariantNotFound  = errors.New("variant not found")
)

const templateCacheTTL = 5 * time.Minute

// Service owns template, version and variant storage.
type Service struct {
	db    *pgxpool.Pool
	cache *cache.Cache
}

// NewService wires the store. cache may be nil to disable read-through
// caching.
func NewService(db *pgxpool.Pool, c *cache.Cache) *Service {
	return &Service{db: db, cache: c}
}

type CreateRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	CategoryID  *uuid.UUID  `json:"category_id,omitempty"`
	TagIDs      []uuid.UUID `json:"tag_ids,omitempty"`
	Body        string      `json:"body,omitempty"`
	Variables   []string    `json:"variables,omitempty"`
	ChangeNote  string      `json:"change_note,omitempty"`
	Actor       *uuid.UUID  `json:"-"`
}

// Create inserts a template and, when a body is supplied, its version 1.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.PromptTemplate, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var t models.PromptTemplate
	err = tx.QueryRow(ctx,
		`INSERT INTO prompt_templates (title, description, category_id, status, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, title, description, category_id, status, created_by, created_at, updated_at`,
		req.Title, req.Description, req.CategoryID, models.TemplateStatusActive, req.Actor,
	).Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}

	for _, tagID := range req.TagIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO template_tags (template_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			t.ID, tagID,
		); err != nil {
			return nil, fmt.Errorf("attach tag: %w", err)
		}
	}

	if req.Body != "" {
		vars := req.Variables
		if len(vars) == 0 {
			vars = ExtractVariables(req.Body)
		}
		varsJSON, _ := json.Marshal(vars)
		if _, err := tx.Exec(ctx,
			`INSERT INTO prompt_versions (template_id, version_number, body, variables, change_note, created_by)
			 VALUES ($1, 1, $2, $3, $4, $5)`,
			t.ID, req.Body, varsJSON, req.ChangeNote, req.Actor,
		); err != nil {
			return nil, fmt.Errorf("insert initial version: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &t, nil
}

type ListFilter struct {
	Status     string
	CategoryID *uuid.UUID
	Search     string
	Limit      int
	Offset     int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.PromptTemplate, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	query := `SELECT id, title, description, category_id, status, created_by, created_at, updated_at
			  FROM prompt_templates WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.CategoryID != nil {
		query += fmt.Sprintf(" AND category_id = $%d", argIdx)
		args = append(args, *f.CategoryID)
		argIdx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+f.Search+"%")
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []models.PromptTemplate
	for rows.Next() {
		var t models.PromptTemplate
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

type templateDetail struct {
	Template models.PromptTemplate  `json:"template"`
	Versions []models.PromptVersion `json:"versions"`
}

// GetByID returns the template with its versions, newest version first.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, []models.PromptVersion, error) {
	cacheKey := "template:" + id.String()
	if s.cache != nil {
		var detail templateDetail
		if err := s.cache.Get(ctx, cacheKey, &detail); err == nil {
			return &detail.Template, detail.Versions, nil
		}
	}

	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, template_id, version_number, body, variables, change_note, created_by, created_at
		 FROM prompt_versions WHERE template_id = $1 ORDER BY version_number DESC`,
		id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("get versions: %w", err)
	}
	defer rows.Close()

	var versions []models.PromptVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, nil, err
		}
		versions = append(versions, *v)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, templateDetail{Template: *t, Versions: versions}, templateCacheTTL)
	}

	return t, versions, nil
}

// GetTemplate returns just the template row with tags.
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	err := s.db.QueryRow(ctx,
		`SELECT id, title, description, category_id, status, created_by, created_at, updated_at
		 FROM prompt_templates WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT tg.id, tg.name, tg.created_at
		 FROM tags tg JOIN template_tags tt ON tt.tag_id = tg.id
		 WHERE tt.template_id = $1 ORDER BY tg.name`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.Tags = append(t.Tags, tag)
	}

	return &t, nil
}

// SetStatus archives or activates a template.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.PromptTemplate, error) {
	if status != models.TemplateStatusActive && status != models.TemplateStatusArchived {
		return nil, fmt.Errorf("invalid template status %q", status)
	}

	var t models.PromptTemplate
	err := s.db.QueryRow(ctx,
		`UPDATE prompt_templates SET status = $1, updated_at = now() WHERE id = $2
		 RETURNING id, title, description, category_id, status, created_by, created_at, updated_at`,
		status, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.CategoryID, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update template status: %w", err)
	}

	s.invalidate(ctx, id)
	return &t, nil
}

type NewVersionRequest struct {
	Body       string     `json:"body"`
	Variables  []string   `json:"variables,omitempty"`
	ChangeNote string     `json:"change_note,omitempty"`
	Actor      *uuid.UUID `json:"-"`
}

// CreateVersion appends the next version for a template. The template row is
// locked so concurrent appends still produce a dense number sequence.
func (s *Service) CreateVersion(ctx context.Context, templateID uuid.UUID, req NewVersionRequest) (*models.PromptVersion, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM prompt_templates WHERE id = $1 FOR UPDATE`, templateID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock template: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM prompt_versions WHERE template_id = $1`,
		templateID,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	vars := req.Variables
	if len(vars) == 0 {
		vars = ExtractVariables(req.Body)
	}
	varsJSON, _ := json.Marshal(vars)

	var v models.PromptVersion
	var rawVars []byte
	err = tx.QueryRow(ctx,
		`INSERT INTO prompt_versions (template_id, version_number, body, variables, change_note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, template_id, version_number, body, variables, change_note, created_by, created_at`,
		templateID, next, req.Body, varsJSON, req.ChangeNote, req.Actor,
	).Scan(&v.ID, &v.TemplateID, &v.VersionNumber, &v.Body, &rawVars, &v.ChangeNote, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := json.Unmarshal(rawVars, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.invalidate(ctx, templateID)
	return &v, nil
}

// GetVersion fetches one version by template and number.
func (s *Service) GetVersion(ctx context.Context, templateID uuid.UUID, number int) (*models.PromptVersion, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, template_id, version_number, body, variables, change_note, created_by, created_at
		 FROM prompt_versions WHERE template_id = $1 AND version_number = $2`,
		templateID, number,
	)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	return v, err
}

// CurrentVersion resolves the highest-numbered version of a template.
func (s *Service) CurrentVersion(ctx context.Context, templateID uuid.UUID) (*models.PromptVersion, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, template_id, version_number, body, variables, change_note, created_by, created_at
		 FROM prompt_versions WHERE template_id = $1
		 ORDER BY version_number DESC LIMIT 1`,
		templateID,
	)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoVersions
	}
	return v, err
}

type NewVariantRequest struct {
	Name      string     `json:"name"`
	Body      string     `json:"body"`
	Variables []string   `json:"variables,omitempty"`
	Actor     *uuid.UUID `json:"-"`
}

// CreateVariant attaches an A/B variant to a version.
func (s *Service) CreateVariant(ctx context.Context, versionID uuid.UUID, req NewVariantRequest) (*models.PromptVariant, error) {
	vars := req.Variables
	if len(vars) == 0 {
		vars = ExtractVariables(req.Body)
	}
	varsJSON, _ := json.Marshal(vars)

	var v models.PromptVariant
	var rawVars []byte
	err := s.db.QueryRow(ctx,
		`INSERT INTO prompt_variants (version_id, name, body, variables, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, version_id, name, body, variables, created_by, created_at`,
		versionID, req.Name, req.Body, varsJSON, req.Actor,
	).Scan(&v.ID, &v.VersionID, &v.Name, &v.Body, &rawVars, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert variant: %w", err)
	}
	if err := json.Unmarshal(rawVars, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return &v, nil
}

// GetVariant fetches one variant by id.
func (s *Service) GetVariant(ctx context.Context, id uuid.UUID) (*models.PromptVariant, error) {
	var v models.PromptVariant
	var rawVars []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, version_id, name, body, variables, created_by, created_at
		 FROM prompt_variants WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.VersionID, &v.Name, &v.Body, &rawVars, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get variant: %w", err)
	}
	if err := json.Unmarshal(rawVars, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return &v, nil
}

// ListVariants returns the variants of a version.
func (s *Service) ListVariants(ctx context.Context, versionID uuid.UUID) ([]models.PromptVariant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, version_id, name, body, variables, created_by, created_at
		 FROM prompt_variants WHERE version_id = $1 ORDER BY created_at`,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []models.PromptVariant
	for rows.Next() {
		var v models.PromptVariant
		var rawVars []byte
		if err := rows.Scan(&v.ID, &v.VersionID, &v.Name, &v.Body, &rawVars, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if err := json.Unmarshal(rawVars, &v.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func (s *Service) invalidate(ctx context.Context, templateID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "template:"+templateID.String())
	}
}

func scanVersion(row pgx.Row) (*models.PromptVersion, error) {
	var v models.PromptVersion
	var rawVars []byte
	err := row.Scan(&v.ID, &v.TemplateID, &v.VersionNumber, &v.Body, &rawVars, &v.ChangeNote, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawVars, &v.Variables); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return &v, nil
}
