package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

func TestMapWriteError(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"duplicate registration", fmt.Errorf("tx: %w", ErrRegistrationExists), apperrors.ErrAlreadyRegistered},
		{"unknown course", ErrUnknownCourse, apperrors.ErrCourseNotFound},
		{"full course", apperrors.ErrCourseFull, apperrors.ErrCourseFull},
		{"missing registration", apperrors.ErrRegistrationNotFound, apperrors.ErrRegistrationNotFound},
		{"driver failure", boom, apperrors.ErrRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapWriteError("enroll", tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.ErrorIs(t, mapWriteError("enroll", boom), boom)
	assert.False(t, apperrors.IsRejection(mapWriteError("enroll", boom)))
}
