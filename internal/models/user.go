package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ProfileKind discriminates the role-specific profile attached to a user.
type ProfileKind string

const (
	ProfileKindStudent ProfileKind = "STUDENT"
	ProfileKindTeacher ProfileKind = "TEACHER"
	ProfileKindAdmin   ProfileKind = "ADMIN"
)

// StudentProfile carries the academic placement of a student.
type StudentProfile struct {
	UserID        string        `db:"user_id" json:"user_id"`
	AcademicLevel AcademicLevel `db:"academic_level" json:"academic_level"`
	Grade         string        `db:"grade" json:"grade"`
	StudentCode   string        `db:"student_code" json:"student_code"`
	NationalID    string        `db:"national_id" json:"national_id"`
}

// TeacherProfile carries teacher identification data.
type TeacherProfile struct {
	UserID     string `db:"user_id" json:"user_id"`
	NationalID string `db:"national_id" json:"national_id"`
	Specialty  string `db:"specialty" json:"specialty"`
}

// Profile is the tagged variant holding at most one role-specific profile.
// Admins carry no extra payload.
type Profile struct {
	Kind    ProfileKind     `json:"kind"`
	Student *StudentProfile `json:"student,omitempty"`
	Teacher *TeacherProfile `json:"teacher,omitempty"`
}

// UserDetail bundles a user with its role profile for responses.
type UserDetail struct {
	User
	Profile Profile `json:"profile"`
}

// FullName renders "FirstName LastName" for display fields.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RosterName renders "LastName, FirstName" used by section rosters.
func (u *User) RosterName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.LastName + ", " + u.FirstName
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// JWTClaims is the decoded access-token payload attached to each request.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest is the credentials payload for /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token alongside the authenticated user.
type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        UserDetail `json:"user"`
}
