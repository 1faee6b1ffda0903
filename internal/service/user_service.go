package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fundeport/academy-api/internal/models"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindDetailByID(ctx context.Context, id string) (*models.UserDetail, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User, profile models.Profile) error
	Update(ctx context.Context, user *models.User) error
	UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error
	UpsertTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error
	SetActive(ctx context.Context, id string, active bool) error
}

// StudentProfilePayload carries student placement fields on account payloads.
type StudentProfilePayload struct {
	AcademicLevel string `json:"academic_level" validate:"required,oneof=INITIAL PRIMARY SECONDARY"`
	Grade         string `json:"grade" validate:"required"`
	StudentCode   string `json:"student_code" validate:"required"`
	NationalID    string `json:"national_id" validate:"required"`
}

// TeacherProfilePayload carries teacher identification fields.
type TeacherProfilePayload struct {
	NationalID string `json:"national_id" validate:"required"`
	Specialty  string `json:"specialty"`
}

// CreateUserRequest describes the account creation payload. Exactly the
// profile matching the role must be present.
type CreateUserRequest struct {
	Email     string                 `json:"email" validate:"required,email"`
	Password  string                 `json:"password" validate:"required,min=8"`
	FirstName string                 `json:"first_name" validate:"required"`
	LastName  string                 `json:"last_name" validate:"required"`
	Role      string                 `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Student   *StudentProfilePayload `json:"student_profile"`
	Teacher   *TeacherProfilePayload `json:"teacher_profile"`
}

// UpdateUserRequest describes the account update payload.
type UpdateUserRequest struct {
	Email     string                 `json:"email" validate:"required,email"`
	FirstName string                 `json:"first_name" validate:"required"`
	LastName  string                 `json:"last_name" validate:"required"`
	Student   *StudentProfilePayload `json:"student_profile"`
	Teacher   *TeacherProfilePayload `json:"teacher_profile"`
}

// UserService manages accounts and their role profiles.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a user with its role profile.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return detail, nil
}

// Create registers an account with the profile required by its role.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	profile, err := s.resolveProfile(models.UserRole(req.Role), req.Student, req.Teacher)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.UserRole(req.Role),
		Active:       true,
	}
	if err := s.repo.Create(ctx, user, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.Get(ctx, user.ID)
}

// Update modifies an account and its role profile. The role itself is
// immutable; the payload's profile variant must match the stored role.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.UserDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	profile, err := s.resolveProfile(user.Role, req.Student, req.Teacher)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
	}

	user.Email = req.Email
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	switch profile.Kind {
	case models.ProfileKindStudent:
		profile.Student.UserID = id
		if err := s.repo.UpsertStudentProfile(ctx, profile.Student); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student profile")
		}
	case models.ProfileKindTeacher:
		profile.Teacher.UserID = id
		if err := s.repo.UpsertTeacherProfile(ctx, profile.Teacher); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save teacher profile")
		}
	case models.ProfileKindAdmin:
		// Nothing beyond the account row.
	}

	return s.Get(ctx, id)
}

// SetActive flips the account's active flag.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*models.UserDetail, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user state")
	}
	return s.Get(ctx, id)
}

// resolveProfile maps a role to its tagged profile variant, rejecting
// payloads whose profile does not match the role.
func (s *UserService) resolveProfile(role models.UserRole, student *StudentProfilePayload, teacher *TeacherProfilePayload) (models.Profile, error) {
	switch role {
	case models.RoleStudent:
		if student == nil {
			return models.Profile{}, appErrors.Clone(appErrors.ErrValidation, "student_profile is required for role STUDENT")
		}
		if err := s.validator.Struct(student); err != nil {
			return models.Profile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student profile")
		}
		return models.Profile{Kind: models.ProfileKindStudent, Student: &models.StudentProfile{
			AcademicLevel: models.AcademicLevel(student.AcademicLevel),
			Grade:         student.Grade,
			StudentCode:   student.StudentCode,
			NationalID:    student.NationalID,
		}}, nil
	case models.RoleTeacher:
		if teacher == nil {
			return models.Profile{}, appErrors.Clone(appErrors.ErrValidation, "teacher_profile is required for role TEACHER")
		}
		if err := s.validator.Struct(teacher); err != nil {
			return models.Profile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher profile")
		}
		return models.Profile{Kind: models.ProfileKindTeacher, Teacher: &models.TeacherProfile{
			NationalID: teacher.NationalID,
			Specialty:  teacher.Specialty,
		}}, nil
	case models.RoleAdmin:
		if student != nil || teacher != nil {
			return models.Profile{}, appErrors.Clone(appErrors.ErrValidation, "admins carry no role profile")
		}
		return models.Profile{Kind: models.ProfileKindAdmin}, nil
	default:
		return models.Profile{}, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
}
