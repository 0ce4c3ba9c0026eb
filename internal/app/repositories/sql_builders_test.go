package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementEnrolledIsCapacityGuarded(t *testing.T) {
	repo := NewCourseRepository(nil)

	sql, args, err := repo.incrementEnrolledSQL("CS101")
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE courses SET enrolled = enrolled + 1 WHERE id = $1 AND enrolled < capacity RETURNING id, name, professor, credits, "time", capacity, enrolled`,
		sql)
	assert.Equal(t, []interface{}{"CS101"}, args)
}

func TestDecrementEnrolledNeverGoesNegative(t *testing.T) {
	repo := NewCourseRepository(nil)

	sql, args, err := repo.decrementEnrolledSQL("CS101")
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0) WHERE id = $1 RETURNING id, name, professor, credits, "time", capacity, enrolled`,
		sql)
	assert.Equal(t, []interface{}{"CS101"}, args)
}

func TestListByStudentJoinsCourses(t *testing.T) {
	repo := NewRegistrationRepository(nil)

	sql, args, err := repo.listByStudentSQL("student123")
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT r.id, r.student_id, r.course_id, r.created_at, c.id, c.name, c.professor, c.credits, c."time", c.capacity, c.enrolled `+
			`FROM registrations r JOIN courses c ON c.id = r.course_id WHERE r.student_id = $1 ORDER BY r.created_at ASC, r.id ASC`,
		sql)
	assert.Equal(t, []interface{}{"student123"}, args)
}
