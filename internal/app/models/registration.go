package models

import "time"

// Registration records that a student has claimed a seat in a course.
// (StudentID, CourseID) is unique.
type Registration struct {
	ID        string    `json:"id" db:"id"`
	StudentID string    `json:"student_id" db:"student_id"`
	CourseID  string    `json:"course_id" db:"course_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RegisteredCourse is a registration row joined to its course.
type RegisteredCourse struct {
	Registration
	Course Course `json:"courses"`
}

// CoursesOf projects joined rows to their courses, preserving order.
func CoursesOf(rows []RegisteredCourse) []Course {
	courses := make([]Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.Course)
	}
	return courses
}
