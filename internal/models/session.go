package models

import "time"

// Session is one concrete dated occurrence of a section's class. Sessions are
// created and destroyed in bulk by the calendar generator; users only edit
// topic, description and outcome afterwards.
type Session struct {
	ID          string    `db:"id" json:"id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	Topic       *string   `db:"topic" json:"topic"`
	Description string    `db:"description" json:"description"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Date        time.Time `db:"date" json:"date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ResourcePhase classifies when in the class flow a resource applies.
type ResourcePhase string

const (
	PhaseBefore ResourcePhase = "BEFORE"
	PhaseDuring ResourcePhase = "DURING"
	PhaseAfter  ResourcePhase = "AFTER"
)

// Resource is a URL record attached to a session. File contents live behind
// the upload boundary; only the link is stored here.
type Resource struct {
	ID          string        `db:"id" json:"id"`
	SessionID   string        `db:"session_id" json:"session_id"`
	Title       string        `db:"title" json:"title"`
	Description string        `db:"description" json:"description"`
	URL         string        `db:"url" json:"url"`
	FileType    string        `db:"file_type" json:"file_type"`
	Phase       ResourcePhase `db:"phase" json:"phase"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
