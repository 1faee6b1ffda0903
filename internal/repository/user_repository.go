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

// UserRepository manages persistence for users and their role profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, active, last_login, created_at, updated_at`

// List returns users matching filter criteria.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := "FROM users WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"first_name": true,
		"last_name":  true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, base, sortBy, order, size, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// FindByID returns a user record by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user record by email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1)`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindDetailByID loads a user with the profile variant matching its role. The
// role switch is exhaustive: an unknown role is a data error, not a silent
// admin.
func (r *UserRepository) FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.UserDetail{User: *user}
	switch user.Role {
	case models.RoleStudent:
		profile, err := r.FindStudentProfile(ctx, id)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		detail.Profile = models.Profile{Kind: models.ProfileKindStudent, Student: profile}
	case models.RoleTeacher:
		profile, err := r.FindTeacherProfile(ctx, id)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		detail.Profile = models.Profile{Kind: models.ProfileKindTeacher, Teacher: profile}
	case models.RoleAdmin:
		detail.Profile = models.Profile{Kind: models.ProfileKindAdmin}
	default:
		return nil, fmt.Errorf("user %s has unknown role %q", id, user.Role)
	}
	return detail, nil
}

// FindStudentProfile returns the student profile for a user.
func (r *UserRepository) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT user_id, academic_level, grade, student_code, national_id FROM student_profiles WHERE user_id = $1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindTeacherProfile returns the teacher profile for a user.
func (r *UserRepository) FindTeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	const query = `SELECT user_id, national_id, specialty FROM teacher_profiles WHERE user_id = $1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindTeacherByNationalID resolves a teacher user through its profile's
// national identity document.
func (r *UserRepository) FindTeacherByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	const query = `SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role, u.active, u.last_login, u.created_at, u.updated_at
        FROM users u
        JOIN teacher_profiles tp ON tp.user_id = u.id
        WHERE tp.national_id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, nationalID); err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByEmail checks whether another user already owns the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM users WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check user email: %w", err)
	}
	return true, nil
}

// Create persists a user with its role profile in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, profile models.Profile) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertUser = `INSERT INTO users (id, email, password_hash, first_name, last_name, role, active, last_login, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :first_name, :last_name, :role, :active, :last_login, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertUser, user); err != nil {
		err = fmt.Errorf("insert user: %w", err)
		return err
	}

	switch profile.Kind {
	case models.ProfileKindStudent:
		if profile.Student == nil {
			err = fmt.Errorf("student profile payload missing")
			return err
		}
		profile.Student.UserID = user.ID
		const insert = `INSERT INTO student_profiles (user_id, academic_level, grade, student_code, national_id)
            VALUES (:user_id, :academic_level, :grade, :student_code, :national_id)`
		if _, err = tx.NamedExecContext(ctx, insert, profile.Student); err != nil {
			err = fmt.Errorf("insert student profile: %w", err)
			return err
		}
	case models.ProfileKindTeacher:
		if profile.Teacher == nil {
			err = fmt.Errorf("teacher profile payload missing")
			return err
		}
		profile.Teacher.UserID = user.ID
		const insert = `INSERT INTO teacher_profiles (user_id, national_id, specialty)
            VALUES (:user_id, :national_id, :specialty)`
		if _, err = tx.NamedExecContext(ctx, insert, profile.Teacher); err != nil {
			err = fmt.Errorf("insert teacher profile: %w", err)
			return err
		}
	case models.ProfileKindAdmin:
		// No extra payload.
	default:
		err = fmt.Errorf("unknown profile kind %q", profile.Kind)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// Update modifies a user's account fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET email = :email, first_name = :first_name, last_name = :last_name, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertStudentProfile saves the student profile for a user.
func (r *UserRepository) UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	const query = `INSERT INTO student_profiles (user_id, academic_level, grade, student_code, national_id)
        VALUES (:user_id, :academic_level, :grade, :student_code, :national_id)
        ON CONFLICT (user_id) DO UPDATE SET academic_level = EXCLUDED.academic_level, grade = EXCLUDED.grade, student_code = EXCLUDED.student_code, national_id = EXCLUDED.national_id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert student profile: %w", err)
	}
	return nil
}

// UpsertTeacherProfile saves the teacher profile for a user.
func (r *UserRepository) UpsertTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error {
	const query = `INSERT INTO teacher_profiles (user_id, national_id, specialty)
        VALUES (:user_id, :national_id, :specialty)
        ON CONFLICT (user_id) DO UPDATE SET national_id = EXCLUDED.national_id, specialty = EXCLUDED.specialty`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert teacher profile: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the login time after a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive flips the user's active flag.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
