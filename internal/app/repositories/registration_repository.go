package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/dberrors"
	"github.com/yigit/coursereg/internal/pkg/logger"
)

// Registration error types
var (
	// ErrRegistrationExists is returned when the (student, course) pair is already stored.
	ErrRegistrationExists = errors.New("registration for this student and course already exists")
	// ErrUnknownCourse is returned when a registration references a missing course.
	ErrUnknownCourse = errors.New("registration references an unknown course")
)

// registrationPairConstraint is the UNIQUE (student_id, course_id) constraint
// created by the 001_init migration.
const registrationPairConstraint = "registrations_student_course_key"

// RegistrationRepository handles registration database operations
type RegistrationRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewRegistrationRepository creates a new RegistrationRepository
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// listByStudentSQL joins registrations to courses, oldest registration first.
func (r *RegistrationRepository) listByStudentSQL(studentID string) (string, []interface{}, error) {
	return r.sb.Select(
		"r.id", "r.student_id", "r.course_id", "r.created_at",
		"c.id", "c.name", "c.professor", "c.credits", `c."time"`, "c.capacity", "c.enrolled",
	).
		From("registrations r").
		Join("courses c ON c.id = r.course_id").
		Where(squirrel.Eq{"r.student_id": studentID}).
		OrderBy("r.created_at ASC", "r.id ASC").
		ToSql()
}

// ListByStudent retrieves a student's registrations joined to their courses
func (r *RegistrationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.RegisteredCourse, error) {
	sql, args, err := r.listByStudentSQL(studentID)
	if err != nil {
		logger.Error().Err(err).Msg("Error building list registrations SQL")
		return nil, fmt.Errorf("failed to build list registrations query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Str("studentID", studentID).Msg("Error executing list registrations query")
		return nil, fmt.Errorf("error listing registrations: %w", err)
	}
	defer rows.Close()

	result := []models.RegisteredCourse{}
	for rows.Next() {
		var rc models.RegisteredCourse
		c := &rc.Course
		if err := rows.Scan(
			&rc.ID, &rc.StudentID, &rc.CourseID, &rc.CreatedAt,
			&c.ID, &c.Name, &c.Professor, &c.Credits, &c.Time, &c.Capacity, &c.Enrolled,
		); err != nil {
			logger.Error().Err(err).Msg("Error scanning registration row")
			return nil, fmt.Errorf("error scanning registration: %w", err)
		}
		result = append(result, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}
	return result, nil
}

// Create inserts a registration
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	return r.create(ctx, r.db, reg)
}

func (r *RegistrationRepository) create(ctx context.Context, q querier, reg *models.Registration) error {
	sql, args, err := r.sb.Insert(models.TableRegistrations).
		Columns("id", "student_id", "course_id", "created_at").
		Values(reg.ID, reg.StudentID, reg.CourseID, reg.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build create registration query: %w", err)
	}

	if _, err := q.Exec(ctx, sql, args...); err != nil {
		switch {
		case dberrors.IsDuplicateConstraintError(err, registrationPairConstraint):
			return ErrRegistrationExists
		case dberrors.IsForeignKeyViolation(err):
			return ErrUnknownCourse
		}
		logger.Error().Err(err).Str("courseID", reg.CourseID).Msg("Error executing create registration query")
		return fmt.Errorf("error creating registration: %w", err)
	}
	return nil
}

// Delete removes the registration of studentID for courseID
func (r *RegistrationRepository) Delete(ctx context.Context, studentID, courseID string) error {
	return r.delete(ctx, r.db, studentID, courseID)
}

func (r *RegistrationRepository) delete(ctx context.Context, q querier, studentID, courseID string) error {
	sql, args, err := r.sb.Delete(models.TableRegistrations).
		Where(squirrel.Eq{"student_id": studentID, "course_id": courseID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete registration query: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Str("courseID", courseID).Msg("Error executing delete registration query")
		return fmt.Errorf("error deleting registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
