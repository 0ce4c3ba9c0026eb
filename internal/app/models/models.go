package models

// Table names used by the backend and its change feed.
const (
	TableCourses       = "courses"
	TableRegistrations = "registrations"
)

// ChangeType is the kind of row operation reported by the change feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent signals that a row in Table changed. The core only cares which table.
type ChangeEvent struct {
	Table string     `json:"table"`
	Type  ChangeType `json:"type"`
}

// ChangeHandler receives one signal per row change on a watched table.
type ChangeHandler func(ChangeEvent)

// DefaultMaxCourses is the per-student cap on concurrently registered courses.
const DefaultMaxCourses = 8
