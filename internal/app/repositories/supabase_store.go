package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/supabase-community/postgrest-go"
	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
	"github.com/yigit/coursereg/internal/pkg/supabase"
)

// RealtimeTopic is the channel the store joins for table changes.
const RealtimeTopic = "realtime:course-changes"

// SupabaseStore is a RegistrationStore on a hosted Supabase project. The
// counter update is a separate write from the registration insert.
type SupabaseStore struct {
	client   *supabase.Client
	realtime *supabase.Realtime
	logger   zerolog.Logger
	feed     *changeFanout

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupabaseStore creates a store for the project at rawURL.
func NewSupabaseStore(rawURL, key string, logger zerolog.Logger) (*SupabaseStore, error) {
	client, err := supabase.NewClient(rawURL, key)
	if err != nil {
		return nil, err
	}
	return NewSupabaseStoreWithClient(client, logger), nil
}

// NewSupabaseStoreWithClient creates a store around an existing client.
func NewSupabaseStoreWithClient(client *supabase.Client, logger zerolog.Logger) *SupabaseStore {
	return &SupabaseStore{
		client:   client,
		realtime: client.Realtime(logger),
		logger:   logger.With().Str("component", "supabase_store").Logger(),
		feed:     newChangeFanout(),
	}
}

// registrationColumns is the projection of registration reads. The row id
// and timestamp are left to the backend, whose column types may differ.
const registrationColumns = "student_id,course_id,courses(*)"

// ListCourses returns every course ordered by id.
func (s *SupabaseStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	courses := []models.Course{}
	err := supabase.Exec(ctx, func() error {
		_, err := s.client.From(models.TableCourses).
			Select("*", "", false).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&courses)
		return err
	})
	if err != nil {
		return nil, apperrors.NewRemoteError("list courses", err)
	}
	return courses, nil
}

// ListRegisteredCourses returns the student's registrations with the joined
// course embedded, in the order the backend returns them. Rows whose course
// is gone are skipped.
func (s *SupabaseStore) ListRegisteredCourses(ctx context.Context, studentID string) ([]models.RegisteredCourse, error) {
	var rows []models.RegisteredCourse
	err := supabase.Exec(ctx, func() error {
		_, err := s.client.From(models.TableRegistrations).
			Select(registrationColumns, "", false).
			Eq("student_id", studentID).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, apperrors.NewRemoteError("list registrations", err)
	}

	result := make([]models.RegisteredCourse, 0, len(rows))
	for _, r := range rows {
		if r.Course.ID == "" {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// CreateRegistration inserts the (student, course) pair of reg. The backend
// assigns the row id and creation time.
func (s *SupabaseStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	row := map[string]string{
		"student_id": reg.StudentID,
		"course_id":  reg.CourseID,
	}
	err := supabase.Exec(ctx, func() error {
		_, _, err := s.client.From(models.TableRegistrations).
			Insert(row, false, "", "minimal", "").
			Execute()
		return err
	})
	switch {
	case err == nil:
		return nil
	case supabase.HasCode(err, supabase.CodeUniqueViolation):
		return apperrors.ErrAlreadyRegistered
	case supabase.HasCode(err, supabase.CodeForeignKeyViolation):
		return apperrors.ErrCourseNotFound
	default:
		return apperrors.NewRemoteError("create registration", err)
	}
}

// DeleteRegistration removes the student's registration for courseID.
func (s *SupabaseStore) DeleteRegistration(ctx context.Context, studentID, courseID string) error {
	var deleted []json.RawMessage
	err := supabase.Exec(ctx, func() error {
		_, err := s.client.From(models.TableRegistrations).
			Delete("representation", "").
			Eq("student_id", studentID).
			Eq("course_id", courseID).
			ExecuteTo(&deleted)
		return err
	})
	if err != nil {
		return apperrors.NewRemoteError("delete registration", err)
	}
	if len(deleted) == 0 {
		return apperrors.ErrRegistrationNotFound
	}
	return nil
}

// UpdateEnrolled overwrites the enrolled counter of courseID.
func (s *SupabaseStore) UpdateEnrolled(ctx context.Context, courseID string, enrolled int) error {
	var updated []json.RawMessage
	err := supabase.Exec(ctx, func() error {
		_, err := s.client.From(models.TableCourses).
			Update(map[string]int{"enrolled": enrolled}, "representation", "").
			Eq("id", courseID).
			ExecuteTo(&updated)
		return err
	})
	if err != nil {
		return apperrors.NewRemoteError("update enrolled", err)
	}
	if len(updated) == 0 {
		return apperrors.ErrCourseNotFound
	}
	return nil
}

// Subscribe registers handler, joining the realtime channel on first use.
func (s *SupabaseStore) Subscribe(ctx context.Context, handler models.ChangeHandler) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.ensureRunning()
	return s.feed.add(handler), nil
}

func (s *SupabaseStore) ensureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	filters := []supabase.ChangeFilter{
		{Event: "*", Schema: "public", Table: models.TableCourses},
		{Event: "*", Schema: "public", Table: models.TableRegistrations},
	}
	joined := 0
	go func() {
		defer close(s.done)
		s.realtime.Run(ctx, RealtimeTopic, filters, s.onChange, func() {
			joined++
			if joined > 1 {
				// Changes made while the socket was down were never delivered.
				s.feed.dispatchResync()
			}
		})
	}()
}

func (s *SupabaseStore) onChange(c supabase.Change) {
	switch c.Table {
	case models.TableCourses, models.TableRegistrations:
	default:
		return
	}
	s.feed.dispatch(models.ChangeEvent{Table: c.Table, Type: models.ChangeType(strings.ToUpper(c.Type))})
}

// Close leaves the realtime channel.
func (s *SupabaseStore) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
