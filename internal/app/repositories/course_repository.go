package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/dberrors"
	"github.com/yigit/coursereg/internal/pkg/logger"
)

// ErrCourseAlreadyExists is returned when inserting a course id that is taken.
var ErrCourseAlreadyExists = errors.New("course with this id already exists")

// courseColumns lists the courses table columns in scan order. "time" is
// quoted because it is a type name in PostgreSQL.
var courseColumns = []string{"id", "name", "professor", "credits", `"time"`, "capacity", "enrolled"}

// CourseRepository handles course database operations
type CourseRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewCourseRepository creates a new CourseRepository
func NewCourseRepository(db *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func scanCourse(row pgx.Row, c *models.Course) error {
	return row.Scan(&c.ID, &c.Name, &c.Professor, &c.Credits, &c.Time, &c.Capacity, &c.Enrolled)
}

// GetAllCourses retrieves all courses ordered by id
func (r *CourseRepository) GetAllCourses(ctx context.Context) ([]models.Course, error) {
	sql, args, err := r.sb.Select(courseColumns...).
		From(models.TableCourses).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		logger.Error().Err(err).Msg("Error building get all courses SQL")
		return nil, fmt.Errorf("failed to build get all courses query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Msg("Error executing get all courses query")
		return nil, fmt.Errorf("error getting courses: %w", err)
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		var c models.Course
		if err := scanCourse(rows, &c); err != nil {
			logger.Error().Err(err).Msg("Error scanning course row")
			return nil, fmt.Errorf("error scanning course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating courses: %w", err)
	}
	return courses, nil
}

// CreateCourse inserts a course
func (r *CourseRepository) CreateCourse(ctx context.Context, c *models.Course) error {
	sql, args, err := r.sb.Insert(models.TableCourses).
		Columns(courseColumns...).
		Values(c.ID, c.Name, c.Professor, c.Credits, c.Time, c.Capacity, c.Enrolled).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build create course query: %w", err)
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		if dberrors.IsUniqueViolation(err) {
			return ErrCourseAlreadyExists
		}
		logger.Error().Err(err).Str("courseID", c.ID).Msg("Error executing create course query")
		return fmt.Errorf("error creating course: %w", err)
	}
	return nil
}

// UpdateEnrolled overwrites the enrolled counter of a course
func (r *CourseRepository) UpdateEnrolled(ctx context.Context, id string, enrolled int) error {
	sql, args, err := r.sb.Update(models.TableCourses).
		Set("enrolled", enrolled).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update enrolled query: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		logger.Error().Err(err).Str("courseID", id).Msg("Error executing update enrolled query")
		return fmt.Errorf("error updating enrolled count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// incrementEnrolledSQL builds the capacity-guarded increment used by enrollment.
func (r *CourseRepository) incrementEnrolledSQL(id string) (string, []interface{}, error) {
	return r.sb.Update(models.TableCourses).
		Set("enrolled", squirrel.Expr("enrolled + 1")).
		Where(squirrel.Eq{"id": id}).
		Where("enrolled < capacity").
		Suffix("RETURNING " + strings.Join(courseColumns, ", ")).
		ToSql()
}

// decrementEnrolledSQL builds the floor-guarded decrement used by withdrawal.
func (r *CourseRepository) decrementEnrolledSQL(id string) (string, []interface{}, error) {
	return r.sb.Update(models.TableCourses).
		Set("enrolled", squirrel.Expr("GREATEST(enrolled - 1, 0)")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(courseColumns, ", ")).
		ToSql()
}

// IncrementEnrolled adds one seat while the course has room, returning the
// updated course. ErrNotFound means the course is full or does not exist.
func (r *CourseRepository) IncrementEnrolled(ctx context.Context, q querier, id string) (*models.Course, error) {
	sql, args, err := r.incrementEnrolledSQL(id)
	if err != nil {
		return nil, fmt.Errorf("failed to build increment enrolled query: %w", err)
	}
	var c models.Course
	if err := scanCourse(q.QueryRow(ctx, sql, args...), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error incrementing enrolled count: %w", err)
	}
	return &c, nil
}

// DecrementEnrolled releases one seat, returning the updated course.
func (r *CourseRepository) DecrementEnrolled(ctx context.Context, q querier, id string) (*models.Course, error) {
	sql, args, err := r.decrementEnrolledSQL(id)
	if err != nil {
		return nil, fmt.Errorf("failed to build decrement enrolled query: %w", err)
	}
	var c models.Course
	if err := scanCourse(q.QueryRow(ctx, sql, args...), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error decrementing enrolled count: %w", err)
	}
	return &c, nil
}
