package seed

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	appModels "github.com/yigit/coursereg/internal/app/models"
	appRepos "github.com/yigit/coursereg/internal/app/repositories"
)

// CreateDefaultData inserts the catalog courses that do not exist yet.
// Existing rows are left untouched so live enrollment counts survive reseeding.
func CreateDefaultData(ctx context.Context, dbPool *pgxpool.Pool, lgr zerolog.Logger) error {
	return CreateCourses(ctx, appRepos.NewCourseRepository(dbPool), appRepos.DefaultCatalog(), lgr)
}

// courseCreator is the part of the course repository the seeder needs.
type courseCreator interface {
	CreateCourse(ctx context.Context, c *appModels.Course) error
}

// CreateCourses inserts courses, skipping ids that already exist.
func CreateCourses(ctx context.Context, repo courseCreator, courses []appModels.Course, lgr zerolog.Logger) error {
	lgr.Info().Int("count", len(courses)).Msg("Checking/Creating default courses...")
	var finalErr error // To collect potential errors without stopping the process

	created := 0
	for i := range courses {
		err := repo.CreateCourse(ctx, &courses[i])
		switch {
		case err == nil:
			created++
		case errors.Is(err, appRepos.ErrCourseAlreadyExists):
		default:
			lgr.Error().Err(err).Str("courseID", courses[i].ID).Msg("Error creating course")
			finalErr = errors.Join(finalErr, err)
		}
	}

	lgr.Info().Int("created", created).Msg("Default course check/creation finished")
	return finalErr
}
