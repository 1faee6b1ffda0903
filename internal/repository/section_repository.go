package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fundeport/academy-api/internal/models"
)

// Sentinel errors surfaced by the transactional guards. The service layer
// maps them to typed HTTP errors.
var (
	// ErrCapacityBelowEnrollment is returned when an update would shrink a
	// section's capacity below its current ACTIVE enrollment count.
	ErrCapacityBelowEnrollment = errors.New("capacity below active enrollment count")
	// ErrSectionHasEnrollments blocks deletion of a section that any
	// enrollment (of any status) references.
	ErrSectionHasEnrollments = errors.New("section has enrollment records")
	// ErrDuplicateEnrollment is returned when the (student, section) unique
	// constraint rejects an insert.
	ErrDuplicateEnrollment = errors.New("enrollment already exists for student and section")
	// ErrSectionAtCapacity is returned when the in-transaction recount finds
	// the section full.
	ErrSectionAtCapacity = errors.New("section is at capacity")
)

// SectionRepository manages persistence for sections and owns their schedule
// blocks and generated sessions: both are written and deleted only inside the
// section transactions below, so a committed section is always consistent
// with its calendar.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs a new section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `s.id, s.code, s.name, s.academic_level, s.grade, s.classroom, s.capacity, s.start_date, s.end_date, s.active, s.course_id, s.teacher_id, s.created_at, s.updated_at`

// List returns section details matching filter criteria, with the ACTIVE
// enrollment count computed per row.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.teacher_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.AcademicLevel != "" {
		conditions = append(conditions, fmt.Sprintf("s.academic_level = $%d", len(args)+1))
		args = append(args, filter.AcademicLevel)
	}
	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("s.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.WithCapacity {
		conditions = append(conditions, "(SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ACTIVE') < s.capacity")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"code":       "s.code",
		"name":       "s.name",
		"start_date": "s.start_date",
		"created_at": "s.created_at",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "s.created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, c.title AS course_title, (u.first_name || ' ' || u.last_name) AS teacher_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ACTIVE') AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, sectionColumns, base, sortCol, order, size, offset)
	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section record by ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections s WHERE s.id = $1`, sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with joined display fields and the ACTIVE
// enrollment count.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	query := fmt.Sprintf(`SELECT %s, c.title AS course_title, (u.first_name || ' ' || u.last_name) AS teacher_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ACTIVE') AS enrolled_count
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN users u ON u.id = s.teacher_id
        WHERE s.id = $1`, sectionColumns)
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateWithSchedule persists a section with its blocks and generated
// sessions in one transaction. The teacher's existing ACTIVE block rows are
// locked and the overlap predicate re-checked under the lock, so two
// concurrent creates for the same teacher cannot both commit colliding
// blocks.
func (r *SectionRepository) CreateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create section: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = lockTeacherBlocks(ctx, tx, section.TeacherID); err != nil {
		return err
	}
	if err = recheckTeacherConflicts(ctx, tx, section.TeacherID, blocks, ""); err != nil {
		return err
	}

	const insertSection = `INSERT INTO sections (id, code, name, academic_level, grade, classroom, capacity, start_date, end_date, active, course_id, teacher_id, created_at, updated_at)
        VALUES (:id, :code, :name, :academic_level, :grade, :classroom, :capacity, :start_date, :end_date, :active, :course_id, :teacher_id, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertSection, section); err != nil {
		err = fmt.Errorf("insert section: %w", err)
		return err
	}

	if err = insertBlocks(ctx, tx, section.ID, blocks); err != nil {
		return err
	}
	if err = insertSessions(ctx, tx, sessions); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create section: %w", err)
	}
	return nil
}

// UpdateWithSchedule replaces a section's fields, blocks, and sessions in one
// transaction. All existing sessions are deleted and the regenerated calendar
// inserted in their place. The update is refused when capacity would drop
// below the ACTIVE enrollment count, re-checked under the section row lock.
func (r *SectionRepository) UpdateWithSchedule(ctx context.Context, section *models.Section, blocks []models.ScheduleBlock, sessions []models.Session) error {
	section.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update section: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM sections WHERE id = $1 FOR UPDATE`, section.ID); err != nil {
		return err
	}

	var activeCount int
	if err = tx.GetContext(ctx, &activeCount, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`, section.ID, models.EnrollmentStatusActive); err != nil {
		err = fmt.Errorf("count active enrollments: %w", err)
		return err
	}
	if section.Capacity < activeCount {
		err = ErrCapacityBelowEnrollment
		return err
	}

	if err = lockTeacherBlocks(ctx, tx, section.TeacherID); err != nil {
		return err
	}
	if err = recheckTeacherConflicts(ctx, tx, section.TeacherID, blocks, section.ID); err != nil {
		return err
	}

	const updateSection = `UPDATE sections SET name = :name, academic_level = :academic_level, grade = :grade, classroom = :classroom, capacity = :capacity, start_date = :start_date, end_date = :end_date, course_id = :course_id, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateSection, section); err != nil {
		err = fmt.Errorf("update section: %w", err)
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_blocks WHERE section_id = $1`, section.ID); err != nil {
		err = fmt.Errorf("delete schedule blocks: %w", err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE section_id = $1`, section.ID); err != nil {
		err = fmt.Errorf("delete sessions: %w", err)
		return err
	}

	if err = insertBlocks(ctx, tx, section.ID, blocks); err != nil {
		return err
	}
	if err = insertSessions(ctx, tx, sessions); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update section: %w", err)
	}
	return nil
}

// SetActive flips the section's active flag without touching its schedule.
func (r *SectionRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sections SET active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set section active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set section active: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a section with its blocks and sessions, refusing when any
// enrollment references it regardless of status.
func (r *SectionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete section: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM sections WHERE id = $1 FOR UPDATE`, id); err != nil {
		return err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1`, id); err != nil {
		err = fmt.Errorf("count enrollments: %w", err)
		return err
	}
	if count > 0 {
		err = ErrSectionHasEnrollments
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_blocks WHERE section_id = $1`, id); err != nil {
		err = fmt.Errorf("delete schedule blocks: %w", err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE section_id = $1`, id); err != nil {
		err = fmt.Errorf("delete sessions: %w", err)
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id); err != nil {
		err = fmt.Errorf("delete section: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete section: %w", err)
	}
	return nil
}

// lockTeacherBlocks takes row locks on all block rows of the teacher's ACTIVE
// sections, serializing concurrent schedule writes per teacher.
func lockTeacherBlocks(ctx context.Context, tx *sqlx.Tx, teacherID string) error {
	var ids []string
	const query = `SELECT b.id FROM schedule_blocks b JOIN sections s ON s.id = b.section_id WHERE s.teacher_id = $1 AND s.active = TRUE FOR UPDATE OF b`
	if err := tx.SelectContext(ctx, &ids, query, teacherID); err != nil {
		return fmt.Errorf("lock teacher blocks: %w", err)
	}
	return nil
}

// recheckTeacherConflicts re-runs the overlap predicate inside the
// transaction, after locks are held. A hit is returned as a
// ScheduleConflictError so callers can surface the colliding slot.
func recheckTeacherConflicts(ctx context.Context, tx *sqlx.Tx, teacherID string, blocks []models.ScheduleBlock, excludeSectionID string) error {
	for _, b := range blocks {
		query := `SELECT b.section_id, s.code AS section_code, b.day_of_week, b.start_time, b.end_time
            FROM schedule_blocks b
            JOIN sections s ON s.id = b.section_id
            WHERE s.teacher_id = $1 AND s.active = TRUE
              AND b.day_of_week = $2 AND b.start_time < $3 AND b.end_time > $4`
		args := []interface{}{teacherID, b.DayOfWeek, b.EndTime, b.StartTime}
		if excludeSectionID != "" {
			query += fmt.Sprintf(" AND s.id <> $%d", len(args)+1)
			args = append(args, excludeSectionID)
		}

		var conflict models.ScheduleConflict
		err := tx.GetContext(ctx, &conflict, query+" LIMIT 1", args...)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("recheck teacher conflicts: %w", err)
		}
		conflict.Dimension = "TEACHER"
		return &models.ScheduleConflictError{
			Type:     "TEACHER_SCHEDULE_CONFLICT",
			Message:  fmt.Sprintf("teacher already teaches section %s at %s", conflict.SectionCode, conflict.Describe()),
			Conflict: conflict,
		}
	}
	return nil
}

func insertBlocks(ctx context.Context, tx *sqlx.Tx, sectionID string, blocks []models.ScheduleBlock) error {
	const query = `INSERT INTO schedule_blocks (id, section_id, day_of_week, start_time, end_time) VALUES (:id, :section_id, :day_of_week, :start_time, :end_time)`
	for i := range blocks {
		blocks[i].SectionID = sectionID
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, query, blocks[i]); err != nil {
			return fmt.Errorf("insert schedule block: %w", err)
		}
	}
	return nil
}

func insertSessions(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error {
	const query = `INSERT INTO sessions (id, section_id, topic, description, outcome, date, start_time, end_time, created_at) VALUES (:id, :section_id, :topic, :description, :outcome, :date, :start_time, :end_time, :created_at)`
	now := time.Now().UTC()
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
		if sessions[i].CreatedAt.IsZero() {
			sessions[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, sessions[i]); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether the error is a Postgres 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
