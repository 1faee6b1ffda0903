package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fundeport/academy-api/internal/models"
)

// ScheduleRepository provides read access to weekly schedule blocks. Blocks
// are written only through SectionRepository, which owns them together with
// their section.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListBySection returns a section's blocks ordered by day and start time.
func (r *ScheduleRepository) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleBlock, error) {
	const query = `SELECT id, section_id, day_of_week, start_time, end_time FROM schedule_blocks WHERE section_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, sectionID); err != nil {
		return nil, fmt.Errorf("list schedule blocks: %w", err)
	}
	return blocks, nil
}

// ListBySections loads blocks for many sections at once, keyed by section id.
func (r *ScheduleRepository) ListBySections(ctx context.Context, sectionIDs []string) (map[string][]models.ScheduleBlock, error) {
	result := make(map[string][]models.ScheduleBlock, len(sectionIDs))
	if len(sectionIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT id, section_id, day_of_week, start_time, end_time FROM schedule_blocks WHERE section_id IN (?) ORDER BY day_of_week ASC, start_time ASC`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build block query: %w", err)
	}
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list schedule blocks: %w", err)
	}
	for _, b := range blocks {
		result[b.SectionID] = append(result[b.SectionID], b)
	}
	return result, nil
}

// TeacherConflicts returns blocks of other ACTIVE sections taught by the
// teacher that overlap the proposed block. The overlap predicate is pushed to
// storage: zero-padded "HH:MM" strings compare chronologically.
func (r *ScheduleRepository) TeacherConflicts(ctx context.Context, teacherID string, block models.ScheduleBlock, excludeSectionID string) ([]models.ScheduleConflict, error) {
	query := `SELECT b.section_id, s.code AS section_code, b.day_of_week, b.start_time, b.end_time
        FROM schedule_blocks b
        JOIN sections s ON s.id = b.section_id
        WHERE s.teacher_id = $1 AND s.active = TRUE
          AND b.day_of_week = $2 AND b.start_time < $3 AND b.end_time > $4`
	args := []interface{}{teacherID, block.DayOfWeek, block.EndTime, block.StartTime}
	if excludeSectionID != "" {
		query += fmt.Sprintf(" AND s.id <> $%d", len(args)+1)
		args = append(args, excludeSectionID)
	}
	query += " ORDER BY b.start_time ASC"

	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, args...); err != nil {
		return nil, fmt.Errorf("find teacher schedule conflicts: %w", err)
	}
	return conflicts, nil
}

// StudentConflicts returns blocks of sections in which the student holds an
// ACTIVE enrollment that overlap the proposed block.
func (r *ScheduleRepository) StudentConflicts(ctx context.Context, studentID string, block models.ScheduleBlock) ([]models.ScheduleConflict, error) {
	const query = `SELECT b.section_id, s.code AS section_code, b.day_of_week, b.start_time, b.end_time
        FROM schedule_blocks b
        JOIN sections s ON s.id = b.section_id
        JOIN enrollments e ON e.section_id = b.section_id
        WHERE e.student_id = $1 AND e.status = $2
          AND b.day_of_week = $3 AND b.start_time < $4 AND b.end_time > $5
        ORDER BY b.start_time ASC`
	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, studentID, models.EnrollmentStatusActive, block.DayOfWeek, block.EndTime, block.StartTime); err != nil {
		return nil, fmt.Errorf("find student schedule conflicts: %w", err)
	}
	return conflicts, nil
}
