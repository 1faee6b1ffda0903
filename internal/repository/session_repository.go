package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundeport/academy-api/internal/models"
)

// SessionRepository reads and annotates generated sessions. Bulk creation and
// deletion happen inside SectionRepository transactions; individual sessions
// only ever change their informational fields here.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, section_id, topic, description, outcome, date, start_time, end_time, created_at`

// ListBySection returns a section's sessions in calendar order, optionally
// restricted to a date range.
func (r *SessionRepository) ListBySection(ctx context.Context, sectionID string, from, to *time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE section_id = $1`, sessionColumns)
	args := []interface{}{sectionID}
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}
	query += " ORDER BY date ASC, start_time ASC"

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindByID returns a session record by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateInfo saves the annotated fields of a session. Dates and times stay
// untouched: the calendar is owned by the schedule, not by manual edits.
func (r *SessionRepository) UpdateInfo(ctx context.Context, session *models.Session) error {
	const query = `UPDATE sessions SET topic = :topic, description = :description, outcome = :outcome WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("update session info: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session info: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountBySection returns how many sessions a section's calendar holds.
func (r *SessionRepository) CountBySection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE section_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}
