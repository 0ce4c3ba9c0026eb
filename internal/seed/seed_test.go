package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appModels "github.com/yigit/coursereg/internal/app/models"
	appRepos "github.com/yigit/coursereg/internal/app/repositories"
)

type fakeCourseRepo struct {
	existing map[string]bool
	failing  map[string]error
	created  []string
}

func (f *fakeCourseRepo) CreateCourse(ctx context.Context, c *appModels.Course) error {
	if err := f.failing[c.ID]; err != nil {
		return err
	}
	if f.existing[c.ID] {
		return appRepos.ErrCourseAlreadyExists
	}
	f.created = append(f.created, c.ID)
	return nil
}

func TestCreateCoursesSkipsExisting(t *testing.T) {
	repo := &fakeCourseRepo{existing: map[string]bool{"CS101": true, "CS201": true}}

	err := CreateCourses(context.Background(), repo, appRepos.DefaultCatalog(), zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, repo.created, 8)
	assert.NotContains(t, repo.created, "CS101")
}

func TestCreateCoursesCollectsErrors(t *testing.T) {
	boom := errors.New("insert failed")
	repo := &fakeCourseRepo{failing: map[string]error{"MATH101": boom}}

	err := CreateCourses(context.Background(), repo, appRepos.DefaultCatalog(), zerolog.Nop())
	require.ErrorIs(t, err, boom)
	assert.Len(t, repo.created, 9, "other courses are still created")
}
