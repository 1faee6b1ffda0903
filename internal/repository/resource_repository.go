package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundeport/academy-api/internal/models"
)

// ResourceRepository manages persistence for session resources.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs a new resource repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// ListBySession returns a session's resources grouped by phase order.
func (r *ResourceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Resource, error) {
	const query = `SELECT id, session_id, title, description, url, file_type, phase, created_at FROM resources WHERE session_id = $1
        ORDER BY CASE phase WHEN 'BEFORE' THEN 0 WHEN 'DURING' THEN 1 ELSE 2 END, created_at ASC`
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query, sessionID); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// FindByID returns a resource record by ID.
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, session_id, title, description, url, file_type, phase, created_at FROM resources WHERE id = $1`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// Create persists a resource record.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO resources (id, session_id, title, description, url, file_type, phase, created_at)
        VALUES (:id, :session_id, :title, :description, :url, :file_type, :phase, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// Delete removes a resource record.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
