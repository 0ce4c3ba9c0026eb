package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/db"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// PostgresStore is a RegistrationStore backed by PostgreSQL, with the change
// feed delivered over LISTEN/NOTIFY. It also enrolls atomically.
type PostgresStore struct {
	db            *db.PostgresDB
	courses       *CourseRepository
	registrations *RegistrationRepository
	listener      *ChangeListener
}

// NewPostgresStore creates a store over database.
func NewPostgresStore(database *db.PostgresDB, logger zerolog.Logger) *PostgresStore {
	repos := NewRepositories(database.Pool)
	return &PostgresStore{
		db:            database,
		courses:       repos.CourseRepository,
		registrations: repos.RegistrationRepository,
		listener:      NewChangeListener(database.Pool, logger),
	}
}

// ListCourses returns every course ordered by id.
func (s *PostgresStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	courses, err := s.courses.GetAllCourses(ctx)
	if err != nil {
		return nil, apperrors.NewRemoteError("list courses", err)
	}
	return courses, nil
}

// ListRegisteredCourses returns the student's registrations joined to courses.
func (s *PostgresStore) ListRegisteredCourses(ctx context.Context, studentID string) ([]models.RegisteredCourse, error) {
	rows, err := s.registrations.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.NewRemoteError("list registrations", err)
	}
	return rows, nil
}

// CreateRegistration inserts reg.
func (s *PostgresStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	return mapWriteError("create registration", s.registrations.Create(ctx, reg))
}

// DeleteRegistration removes the student's registration for courseID.
func (s *PostgresStore) DeleteRegistration(ctx context.Context, studentID, courseID string) error {
	err := s.registrations.Delete(ctx, studentID, courseID)
	if errors.Is(err, ErrNotFound) {
		return apperrors.ErrRegistrationNotFound
	}
	return mapWriteError("delete registration", err)
}

// UpdateEnrolled overwrites the enrolled counter of courseID.
func (s *PostgresStore) UpdateEnrolled(ctx context.Context, courseID string, enrolled int) error {
	err := s.courses.UpdateEnrolled(ctx, courseID, enrolled)
	if errors.Is(err, ErrNotFound) {
		return apperrors.ErrCourseNotFound
	}
	return mapWriteError("update enrolled", err)
}

// Subscribe registers handler on the LISTEN/NOTIFY feed.
func (s *PostgresStore) Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error) {
	unsubscribe, err := s.listener.Subscribe(ctx, handler)
	if err != nil {
		return nil, apperrors.NewRemoteError("subscribe", err)
	}
	return unsubscribe, nil
}

// Enroll inserts reg and takes a seat in one transaction. The seat is only
// taken while enrolled < capacity, so concurrent clients cannot overfill.
func (s *PostgresStore) Enroll(ctx context.Context, reg *models.Registration) (models.Course, error) {
	var course models.Course
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.registrations.create(ctx, tx, reg); err != nil {
			return err
		}
		c, err := s.courses.IncrementEnrolled(ctx, tx, reg.CourseID)
		if errors.Is(err, ErrNotFound) {
			return apperrors.ErrCourseFull
		}
		if err != nil {
			return err
		}
		course = *c
		return nil
	})
	if err != nil {
		return models.Course{}, mapWriteError("enroll", err)
	}
	return course, nil
}

// Withdraw deletes the registration and releases its seat in one transaction.
func (s *PostgresStore) Withdraw(ctx context.Context, studentID, courseID string) (models.Course, error) {
	var course models.Course
	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.registrations.delete(ctx, tx, studentID, courseID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperrors.ErrRegistrationNotFound
			}
			return err
		}
		c, err := s.courses.DecrementEnrolled(ctx, tx, courseID)
		if errors.Is(err, ErrNotFound) {
			return apperrors.ErrCourseNotFound
		}
		if err != nil {
			return err
		}
		course = *c
		return nil
	})
	if err != nil {
		return models.Course{}, mapWriteError("withdraw", err)
	}
	return course, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close stops the change listener. The pool is owned by the caller.
func (s *PostgresStore) Close() {
	s.listener.Close()
}

// mapWriteError translates repository errors into application errors. Anything
// not recognized is a remote failure.
func mapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRegistrationExists):
		return apperrors.ErrAlreadyRegistered
	case errors.Is(err, ErrUnknownCourse):
		return apperrors.ErrCourseNotFound
	case apperrors.Is(err, apperrors.ErrResourceNotFound, apperrors.ErrConflict):
		return err
	default:
		return apperrors.NewRemoteError(op, err)
	}
}
