package models

import "time"

// AcademicLevel is the school stage a course or section targets.
type AcademicLevel string

const (
	LevelInitial   AcademicLevel = "INITIAL"
	LevelPrimary   AcademicLevel = "PRIMARY"
	LevelSecondary AcademicLevel = "SECONDARY"
)

// Course is an offering that sections are scheduled against.
type Course struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	TargetLevel AcademicLevel `db:"target_level" json:"target_level"`
	Active      bool          `db:"active" json:"active"`
	CreatedBy   string        `db:"created_by" json:"created_by"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	TargetLevel AcademicLevel
	Active      *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
