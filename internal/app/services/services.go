package services

import (
	"context"

	"github.com/yigit/coursereg/internal/app/models"
)

// Services defined in this package:
// - Session: the reconciled registration view of one student
// - RegistrationService: owns one Session per student for the HTTP front-end

// RegistrationStore is the remote data collaborator a Session reconciles against.
// It is the source of truth; implementations must be safe for concurrent use.
type RegistrationStore interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListRegisteredCourses(ctx context.Context, studentID string) ([]models.RegisteredCourse, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	DeleteRegistration(ctx context.Context, studentID, courseID string) error
	UpdateEnrolled(ctx context.Context, courseID string, enrolled int) error

	// Subscribe registers handler for changes on the courses and registrations
	// tables. The returned func cancels the subscription.
	Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error)
}

// AtomicEnroller is implemented by stores that can insert a registration and
// adjust the enrolled counter in one transaction, enforcing capacity remotely.
// Sessions prefer it over the two-step insert + update when available.
type AtomicEnroller interface {
	Enroll(ctx context.Context, reg *models.Registration) (models.Course, error)
	Withdraw(ctx context.Context, studentID, courseID string) (models.Course, error)
}
