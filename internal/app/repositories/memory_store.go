package repositories

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// MemoryStore is an in-process RegistrationStore. Subscribers are notified
// synchronously after the store lock is released.
type MemoryStore struct {
	mu            sync.RWMutex
	courses       []models.Course
	registrations []models.Registration
	feed          *changeFanout
	now           func() time.Time
}

// NewMemoryStore creates a store holding a copy of courses.
func NewMemoryStore(courses []models.Course) *MemoryStore {
	return &MemoryStore{
		courses:       slices.Clone(courses),
		registrations: []models.Registration{},
		feed:          newChangeFanout(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NewCatalogMemoryStore creates a store seeded with DefaultCatalog.
func NewCatalogMemoryStore() *MemoryStore {
	return NewMemoryStore(DefaultCatalog())
}

// ListCourses returns every course in catalog order.
func (s *MemoryStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.courses), nil
}

// ListRegisteredCourses returns the student's registrations joined to their
// courses, oldest first. Registrations whose course vanished are skipped.
func (s *MemoryStore) ListRegisteredCourses(ctx context.Context, studentID string) ([]models.RegisteredCourse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := []models.RegisteredCourse{}
	for _, reg := range s.registrations {
		if reg.StudentID != studentID {
			continue
		}
		i := models.IndexOfCourse(s.courses, reg.CourseID)
		if i < 0 {
			continue
		}
		rows = append(rows, models.RegisteredCourse{Registration: reg, Course: s.courses[i]})
	}
	return rows, nil
}

// CreateRegistration stores reg. The course must exist and the
// (student, course) pair must be new.
func (s *MemoryStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if models.IndexOfCourse(s.courses, reg.CourseID) < 0 {
		s.mu.Unlock()
		return apperrors.ErrCourseNotFound
	}
	if s.indexOfRegistrationLocked(reg.StudentID, reg.CourseID) >= 0 {
		s.mu.Unlock()
		return apperrors.ErrAlreadyRegistered
	}
	stored := *reg
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.registrations = append(s.registrations, stored)
	s.mu.Unlock()

	s.feed.dispatch(models.ChangeEvent{Table: models.TableRegistrations, Type: models.ChangeInsert})
	return nil
}

// DeleteRegistration removes the student's registration for courseID.
func (s *MemoryStore) DeleteRegistration(ctx context.Context, studentID, courseID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	i := s.indexOfRegistrationLocked(studentID, courseID)
	if i < 0 {
		s.mu.Unlock()
		return apperrors.ErrRegistrationNotFound
	}
	s.registrations = slices.Delete(s.registrations, i, i+1)
	s.mu.Unlock()

	s.feed.dispatch(models.ChangeEvent{Table: models.TableRegistrations, Type: models.ChangeDelete})
	return nil
}

// UpdateEnrolled overwrites the enrolled counter of courseID.
func (s *MemoryStore) UpdateEnrolled(ctx context.Context, courseID string, enrolled int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	i := models.IndexOfCourse(s.courses, courseID)
	if i < 0 {
		s.mu.Unlock()
		return apperrors.ErrCourseNotFound
	}
	s.courses[i].Enrolled = enrolled
	s.mu.Unlock()

	s.feed.dispatch(models.ChangeEvent{Table: models.TableCourses, Type: models.ChangeUpdate})
	return nil
}

// Subscribe registers handler for all table changes.
func (s *MemoryStore) Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.feed.add(handler), nil
}

// Course returns the stored copy of a course.
func (s *MemoryStore) Course(id string) (models.Course, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := models.IndexOfCourse(s.courses, id); i >= 0 {
		return s.courses[i], true
	}
	return models.Course{}, false
}

// Subscribers returns the number of live subscriptions.
func (s *MemoryStore) Subscribers() int {
	return s.feed.len()
}

func (s *MemoryStore) indexOfRegistrationLocked(studentID, courseID string) int {
	for i, reg := range s.registrations {
		if reg.StudentID == studentID && reg.CourseID == courseID {
			return i
		}
	}
	return -1
}
