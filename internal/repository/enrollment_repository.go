package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundeport/academy-api/internal/models"
)

// EnrollmentRepository manages persistence for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new enrollment repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `e.id, e.student_id, e.section_id, e.status, e.enrolled_at, e.withdrawn_at, e.final_grade, e.notes,
        (st.first_name || ' ' || st.last_name) AS student_name,
        sp.student_code,
        s.code AS section_code, s.name AS section_name,
        c.title AS course_title,
        (t.first_name || ' ' || t.last_name) AS teacher_name`

const enrollmentDetailJoins = `FROM enrollments e
        JOIN users st ON st.id = e.student_id
        LEFT JOIN student_profiles sp ON sp.user_id = e.student_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        JOIN users t ON t.id = s.teacher_id`

// List returns enrollment details matching filter criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := enrollmentDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"status":       "e.status",
		"student_name": "st.last_name",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "e.enrolled_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailColumns, base, sortCol, order, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment record by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, withdrawn_at, final_grade, notes FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with joined display fields.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByStudentAndSection returns the enrollment linking a student to a
// section, if any.
func (r *EnrollmentRepository) FindByStudentAndSection(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, enrolled_at, withdrawn_at, final_grade, notes FROM enrollments WHERE student_id = $1 AND section_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists reports whether any enrollment links the student to the section,
// regardless of status.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return true, nil
}

// ExistsActiveInCourse reports whether the student holds an ACTIVE enrollment
// in any section of the course.
func (r *EnrollmentRepository) ExistsActiveInCourse(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments e JOIN sections s ON s.id = e.section_id WHERE e.student_id = $1 AND s.course_id = $2 AND e.status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active course enrollment: %w", err)
	}
	return true, nil
}

// CountActiveBySection returns how many ACTIVE enrollments the section holds.
func (r *EnrollmentRepository) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ListActiveBySection returns the section roster ordered by student surname.
func (r *EnrollmentRepository) ListActiveBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.section_id = $1 AND e.status = $2 ORDER BY st.last_name ASC, st.first_name ASC", enrollmentDetailColumns, enrollmentDetailJoins)
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, sectionID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list section roster: %w", err)
	}
	return roster, nil
}

// ListByStudent returns a student's enrollments newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.student_id = $1 ORDER BY e.enrolled_at DESC", enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Create inserts an ACTIVE enrollment under the section row lock. The
// capacity limit, the active count and the student's schedule overlap are all
// read inside the transaction, so concurrent enrollments or capacity changes
// cannot oversubscribe a section or hand a student two colliding sections. A
// duplicate (student, section) pair is rejected by the unique constraint and
// mapped to ErrDuplicateEnrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusActive

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create enrollment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	if err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM sections WHERE id = $1 FOR UPDATE`, enrollment.SectionID); err != nil {
		return err
	}

	var activeCount int
	if err = tx.GetContext(ctx, &activeCount, `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`, enrollment.SectionID, models.EnrollmentStatusActive); err != nil {
		err = fmt.Errorf("count active enrollments: %w", err)
		return err
	}
	if activeCount >= capacity {
		err = ErrSectionAtCapacity
		return err
	}

	if err = recheckStudentConflicts(ctx, tx, enrollment.StudentID, enrollment.SectionID); err != nil {
		return err
	}

	const insert = `INSERT INTO enrollments (id, student_id, section_id, status, enrolled_at, withdrawn_at, final_grade, notes)
        VALUES (:id, :student_id, :section_id, :status, :enrolled_at, :withdrawn_at, :final_grade, :notes)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateEnrollment
			return err
		}
		err = fmt.Errorf("insert enrollment: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus transitions an enrollment to a new status, stamping
// withdrawn_at when provided.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, withdrawnAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $1, withdrawn_at = $2 WHERE id = $3`, status, withdrawnAt, id)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateFinalGrade records the final grade and the resulting terminal status.
func (r *EnrollmentRepository) UpdateFinalGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET final_grade = $1, status = $2 WHERE id = $3`, grade, status, id)
	if err != nil {
		return fmt.Errorf("update final grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update final grade: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// recheckStudentConflicts re-runs the student overlap predicate under the
// enrollment transaction: any block of the target section colliding with a
// block of a section the student is ACTIVE in fails the insert.
func recheckStudentConflicts(ctx context.Context, tx *sqlx.Tx, studentID, sectionID string) error {
	const query = `SELECT b2.section_id, s2.code AS section_code, b2.day_of_week, b2.start_time, b2.end_time
        FROM schedule_blocks b
        JOIN schedule_blocks b2 ON b2.day_of_week = b.day_of_week AND b2.start_time < b.end_time AND b2.end_time > b.start_time
        JOIN enrollments e2 ON e2.section_id = b2.section_id AND e2.student_id = $2 AND e2.status = $3
        JOIN sections s2 ON s2.id = b2.section_id
        WHERE b.section_id = $1
        LIMIT 1`
	var conflict models.ScheduleConflict
	err := tx.GetContext(ctx, &conflict, query, sectionID, studentID, models.EnrollmentStatusActive)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recheck student conflicts: %w", err)
	}
	conflict.Dimension = "STUDENT"
	return &models.ScheduleConflictError{
		Type:     "STUDENT_SCHEDULE_CONFLICT",
		Message:  fmt.Sprintf("student is already enrolled in section %s at %s", conflict.SectionCode, conflict.Describe()),
		Conflict: conflict,
	}
}
