package validation

import (
	"fmt"
	"regexp"

	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

// Validation rule patterns
var (
	// Course codes such as CS101 or MATH101
	CourseIDPattern = `^[A-Za-z0-9_-]{1,32}$`

	// Student identifiers come from the identity provider; keep them printable and short
	StudentIDPattern = `^[A-Za-z0-9._@-]{1,64}$`
)

// CompiledPatterns caches compiled regex patterns for better performance
var CompiledPatterns = struct {
	CourseID  *regexp.Regexp
	StudentID *regexp.Regexp
}{
	CourseID:  regexp.MustCompile(CourseIDPattern),
	StudentID: regexp.MustCompile(StudentIDPattern),
}

// ValidateCourseID checks a course identity coming from a request.
func ValidateCourseID(id string) error {
	if !CompiledPatterns.CourseID.MatchString(id) {
		return fmt.Errorf("%w: invalid course id %q", apperrors.ErrValidationFailed, id)
	}
	return nil
}

// ValidateStudentID checks a student identity coming from a token or flag.
func ValidateStudentID(id string) error {
	if !CompiledPatterns.StudentID.MatchString(id) {
		return fmt.Errorf("%w: invalid student id %q", apperrors.ErrValidationFailed, id)
	}
	return nil
}
