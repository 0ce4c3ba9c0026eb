package dto

import (
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/app/services"
)

// RegisterCourseRequest is the body of POST /registrations.
type RegisterCourseRequest struct {
	CourseID string `json:"courseId" binding:"required,max=32"`
}

// CourseResponse is a course as shown to the student.
type CourseResponse struct {
	models.Course
	Full           bool `json:"full"`
	RemainingSeats int  `json:"remainingSeats"`
	Registered     bool `json:"registered"`
}

// RegistrationsResponse lists the student's registered courses.
type RegistrationsResponse struct {
	Courses      []models.Course `json:"courses"`
	TotalCredits int             `json:"totalCredits"`
	MaxCourses   int             `json:"maxCourses"`
}

// StateResponse is the full reconciled view for one student.
type StateResponse struct {
	Version      uint64           `json:"version"`
	StudentID    string           `json:"studentId"`
	Available    []CourseResponse `json:"availableCourses"`
	Registered   []models.Course  `json:"registeredCourses"`
	TotalCredits int              `json:"totalCredits"`
	MaxCourses   int              `json:"maxCourses"`
	Remaining    int              `json:"remainingSlots"`
	Loading      bool             `json:"loading"`
}

// RegisterCourseResponse is returned after a successful registration.
type RegisterCourseResponse struct {
	Course models.Course `json:"course"`
	State  StateResponse `json:"state"`
}

// NewCourseResponses decorates available courses with per-student flags.
func NewCourseResponses(available, registered []models.Course) []CourseResponse {
	out := make([]CourseResponse, 0, len(available))
	for _, c := range available {
		out = append(out, CourseResponse{
			Course:         c,
			Full:           c.IsFull(),
			RemainingSeats: c.RemainingSeats(),
			Registered:     models.IndexOfCourse(registered, c.ID) >= 0,
		})
	}
	return out
}

// NewStateResponse converts a session snapshot to its API form.
func NewStateResponse(snap services.Snapshot) StateResponse {
	return StateResponse{
		Version:      snap.Version,
		StudentID:    snap.StudentID,
		Available:    NewCourseResponses(snap.Available, snap.Registered),
		Registered:   snap.Registered,
		TotalCredits: snap.TotalCredits,
		MaxCourses:   snap.MaxCourses,
		Remaining:    snap.RemainingSlots(),
		Loading:      snap.Loading,
	}
}
