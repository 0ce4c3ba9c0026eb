package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
	"github.com/yigit/coursereg/internal/pkg/logger"
	"github.com/yigit/coursereg/internal/pkg/metrics"
)

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	Version      uint64
	StudentID    string
	Available    []models.Course
	Registered   []models.Course
	Loading      bool
	TotalCredits int
	MaxCourses   int
}

// RemainingSlots is how many more courses the student may register.
func (s Snapshot) RemainingSlots() int {
	if n := s.MaxCourses - len(s.Registered); n > 0 {
		return n
	}
	return 0
}

// Observer is called with a fresh snapshot after every state change. It runs on
// the goroutine that changed the state and must not block.
type Observer func(Snapshot)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMaxCourses overrides the registered-course cap.
func WithMaxCourses(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxCourses = n
		}
	}
}

// WithObserver installs a state-change observer.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithIDGenerator replaces the registration id generator.
func WithIDGenerator(gen func() string) SessionOption {
	return func(s *Session) { s.newID = gen }
}

// Session is the locally cached registration view of one student, kept
// consistent with a RegistrationStore. The cap, duplicate and capacity checks
// it applies are advisory: other clients act on the same store concurrently.
type Session struct {
	store      RegistrationStore
	studentID  string
	maxCourses int
	logger     zerolog.Logger
	observer   Observer
	newID      func() string

	mu         sync.Mutex
	available  []models.Course
	registered []models.Course
	loading    bool
	inFlight   bool
	epoch      uint64 // bumped whenever an action commits local state
	version    uint64
	pending    map[string]bool

	notifyMu sync.Mutex
	notified uint64

	coursesKick       chan struct{}
	registrationsKick chan struct{}
	running           atomic.Bool
	started           bool
	closed            bool
	unsubscribe       func()
	cancel            context.CancelFunc
	done              chan struct{}
}

// NewSession creates a session for studentID. It starts in the loading state
// and holds no data until loaded.
func NewSession(store RegistrationStore, studentID string, opts ...SessionOption) *Session {
	s := &Session{
		store:             store,
		studentID:         studentID,
		maxCourses:        models.DefaultMaxCourses,
		logger:            zerolog.Nop(),
		newID:             uuid.NewString,
		available:         []models.Course{},
		registered:        []models.Course{},
		loading:           true,
		pending:           make(map[string]bool),
		coursesKick:       make(chan struct{}, 1),
		registrationsKick: make(chan struct{}, 1),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.WithStudent(s.logger, studentID)
	return s
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Version:      s.version,
		StudentID:    s.studentID,
		Available:    slices.Clone(s.available),
		Registered:   slices.Clone(s.registered),
		Loading:      s.loading,
		TotalCredits: models.TotalCredits(s.registered),
		MaxCourses:   s.maxCourses,
	}
}

// changedLocked records a state change and returns the snapshot to publish.
func (s *Session) changedLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

// notify delivers snap unless a newer snapshot was already delivered.
// Concurrent loads may finish out of order.
func (s *Session) notify(snap Snapshot) {
	if s.observer == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Version <= s.notified {
		return
	}
	s.notified = snap.Version
	s.observer(snap)
}

// Start subscribes to the store's change feed and performs the initial load.
// Load failures are logged and leave the session with stale (empty) data; only
// a failed subscription is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	// Subscribe before loading so a change between the two is not missed.
	unsubscribe, err := s.store.Subscribe(ctx, s.onChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.cancel = cancel
	s.mu.Unlock()

	s.running.Store(true)
	go s.run(loopCtx)

	if err := s.Load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Initial load failed, keeping stale state")
	}
	return nil
}

// Close cancels the change subscription and stops the reload loop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe, cancel := s.unsubscribe, s.cancel
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
		<-s.done
	}
	s.running.Store(false)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.coursesKick:
			_ = s.LoadCourses(ctx)
		case <-s.registrationsKick:
			_ = s.LoadRegistrations(ctx)
		}
	}
}

func (s *Session) onChange(ev models.ChangeEvent) {
	metrics.RecordChangeEvent(ev.Table)
	s.logger.Debug().Str("table", ev.Table).Str("type", string(ev.Type)).Msg("Change notification received")
	s.requestReload(ev.Table)
}

// requestReload queues a reload of table on the session loop. Repeated
// requests before the loop picks one up collapse into one.
func (s *Session) requestReload(table string) {
	var ch chan struct{}
	switch table {
	case models.TableCourses:
		ch = s.coursesKick
	case models.TableRegistrations:
		ch = s.registrationsKick
	default:
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// beginReload returns the epoch a reload starts at, or false when an action is
// in flight and the reload has been deferred until it finishes.
func (s *Session) beginReload(table string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		s.pending[table] = true
		return 0, false
	}
	return s.epoch, true
}

// staleLocked reports whether a reload started at epoch must be discarded.
// Discarded reloads are re-queued so the store's state still wins eventually.
func (s *Session) staleLocked(table string, epoch uint64) bool {
	if s.inFlight || s.epoch != epoch {
		s.pending[table] = true
		return true
	}
	return false
}

// Load runs both collection loads concurrently.
func (s *Session) Load(ctx context.Context) error {
	var coursesErr, registrationsErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		coursesErr = s.LoadCourses(gctx)
		return nil
	})
	g.Go(func() error {
		registrationsErr = s.LoadRegistrations(gctx)
		return nil
	})
	_ = g.Wait()
	err := errors.Join(coursesErr, registrationsErr)
	if err == nil {
		s.flushPending(ctx)
	}
	return err
}

// LoadCourses replaces the available courses with the store's courses table.
// On failure the previous list is kept.
func (s *Session) LoadCourses(ctx context.Context) error {
	epoch, ok := s.beginReload(models.TableCourses)
	if !ok {
		return nil
	}

	courses, err := s.store.ListCourses(ctx)
	metrics.RecordReload(models.TableCourses, err == nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load courses")
		return fmt.Errorf("failed to load courses: %w", err)
	}

	s.mu.Lock()
	if s.staleLocked(models.TableCourses, epoch) {
		s.mu.Unlock()
		s.flushPending(ctx)
		return nil
	}
	if courses == nil {
		courses = []models.Course{}
	}
	s.available = courses
	snap := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// LoadRegistrations replaces the registered courses with the student's
// registrations joined to their courses. It always leaves the loading state,
// whether or not the fetch succeeded.
func (s *Session) LoadRegistrations(ctx context.Context) error {
	epoch, ok := s.beginReload(models.TableRegistrations)
	if !ok {
		return nil
	}

	rows, err := s.store.ListRegisteredCourses(ctx, s.studentID)
	metrics.RecordReload(models.TableRegistrations, err == nil)

	s.mu.Lock()
	changed, stale := false, false
	if err == nil {
		if stale = s.staleLocked(models.TableRegistrations, epoch); !stale {
			s.registered = models.CoursesOf(rows)
			changed = true
		}
	}
	if s.loading && !s.inFlight {
		s.loading = false
		changed = true
	}
	var snap Snapshot
	if changed {
		snap = s.changedLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	if stale {
		s.flushPending(ctx)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load registrations")
		return fmt.Errorf("failed to load registrations: %w", err)
	}
	return nil
}

// Register adds courseID to the student's registered courses.
//
// Local checks run first, in order: action in progress, unknown course, cap
// reached, duplicate, full. Any rejection happens before a remote call. On a
// remote failure local state is left as it was before the call.
func (s *Session) Register(ctx context.Context, courseID string) (models.Course, error) {
	s.mu.Lock()
	course, err := s.checkRegisterLocked(courseID)
	if err != nil {
		s.mu.Unlock()
		metrics.RecordAction("register", outcomeFor(err))
		s.logger.Info().Err(err).Str("courseID", courseID).Msg("Registration rejected")
		return models.Course{}, err
	}
	s.loading, s.inFlight = true, true
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	committed, err := s.enroll(ctx, course)

	s.mu.Lock()
	if err == nil {
		s.registered = append(s.registered, committed)
		if i := models.IndexOfCourse(s.available, course.ID); i >= 0 {
			s.available[i] = committed
		}
		s.epoch++
	}
	s.loading, s.inFlight = false, false
	snap = s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	s.flushPending(ctx)

	if err != nil {
		metrics.RecordAction("register", outcomeFor(err))
		s.logger.Error().Err(err).Str("courseID", courseID).Msg("Registration failed")
		return models.Course{}, err
	}

	metrics.RecordAction("register", "success")
	s.logger.Info().Str("courseID", courseID).Int("enrolled", committed.Enrolled).Msg("Course registered")
	return committed, nil
}

func (s *Session) checkRegisterLocked(courseID string) (models.Course, error) {
	if s.loading {
		return models.Course{}, apperrors.ErrActionInProgress
	}
	i := models.IndexOfCourse(s.available, courseID)
	if i < 0 {
		return models.Course{}, apperrors.ErrCourseNotFound
	}
	course := s.available[i]
	if len(s.registered) >= s.maxCourses {
		return models.Course{}, apperrors.ErrMaxCoursesReached
	}
	if models.IndexOfCourse(s.registered, courseID) >= 0 {
		return models.Course{}, apperrors.ErrAlreadyRegistered
	}
	if course.IsFull() {
		return models.Course{}, apperrors.ErrCourseFull
	}
	return course, nil
}

// enroll claims a seat in course and returns the course as committed.
func (s *Session) enroll(ctx context.Context, course models.Course) (models.Course, error) {
	reg := &models.Registration{
		ID:        s.newID(),
		StudentID: s.studentID,
		CourseID:  course.ID,
		CreatedAt: time.Now().UTC(),
	}

	if enroller, ok := s.store.(AtomicEnroller); ok {
		committed, err := enroller.Enroll(ctx, reg)
		if err != nil {
			return models.Course{}, fmt.Errorf("failed to enroll: %w", err)
		}
		return committed, nil
	}

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return models.Course{}, fmt.Errorf("failed to insert registration: %w", err)
	}
	// Read-modify-write of the shared counter. Two clients reading the same
	// value can both succeed and push enrolled past capacity.
	course.Enrolled++
	if err := s.store.UpdateEnrolled(ctx, course.ID, course.Enrolled); err != nil {
		return models.Course{}, fmt.Errorf("failed to increment enrolled count: %w", err)
	}
	return course, nil
}

// Cancel removes courseID from the student's registered courses. Local state
// changes only after the remote delete (and counter update) succeed.
func (s *Session) Cancel(ctx context.Context, courseID string) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		metrics.RecordAction("cancel", outcomeFor(apperrors.ErrActionInProgress))
		return apperrors.ErrActionInProgress
	}
	if models.IndexOfCourse(s.registered, courseID) < 0 {
		s.mu.Unlock()
		metrics.RecordAction("cancel", outcomeFor(apperrors.ErrNotRegistered))
		return apperrors.ErrNotRegistered
	}
	s.loading, s.inFlight = true, true
	snap := s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)

	released, err := s.withdraw(ctx, courseID)

	s.mu.Lock()
	if err == nil {
		if i := models.IndexOfCourse(s.registered, courseID); i >= 0 {
			s.registered = slices.Delete(s.registered, i, i+1)
		}
		if i := models.IndexOfCourse(s.available, courseID); i >= 0 && released != nil {
			s.available[i] = *released
		}
		s.epoch++
	}
	s.loading, s.inFlight = false, false
	snap = s.changedLocked()
	s.mu.Unlock()
	s.notify(snap)
	s.flushPending(ctx)

	if err != nil {
		metrics.RecordAction("cancel", outcomeFor(err))
		s.logger.Error().Err(err).Str("courseID", courseID).Msg("Cancellation failed")
		return err
	}

	metrics.RecordAction("cancel", "success")
	s.logger.Info().Str("courseID", courseID).Msg("Course cancelled")
	return nil
}

// withdraw gives up the seat in courseID. The returned course carries the
// released counter, or is nil when the course is not in the catalog.
func (s *Session) withdraw(ctx context.Context, courseID string) (*models.Course, error) {
	if enroller, ok := s.store.(AtomicEnroller); ok {
		released, err := enroller.Withdraw(ctx, s.studentID, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to withdraw: %w", err)
		}
		return &released, nil
	}

	if err := s.store.DeleteRegistration(ctx, s.studentID, courseID); err != nil {
		return nil, fmt.Errorf("failed to delete registration: %w", err)
	}

	// Reloads are deferred while the action is in flight, so this is the
	// value the student saw when cancelling.
	s.mu.Lock()
	i := models.IndexOfCourse(s.available, courseID)
	var course models.Course
	if i >= 0 {
		course = s.available[i]
	}
	s.mu.Unlock()

	if i < 0 {
		return nil, nil
	}
	course.Enrolled--
	if err := s.store.UpdateEnrolled(ctx, courseID, course.Enrolled); err != nil {
		return nil, fmt.Errorf("failed to decrement enrolled count: %w", err)
	}
	return &course, nil
}

// flushPending re-runs reloads deferred while an action was in flight: on the
// session loop when started, inline otherwise.
func (s *Session) flushPending(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	tables := make([]string, 0, len(s.pending))
	for t := range s.pending {
		tables = append(tables, t)
	}
	clear(s.pending)
	s.mu.Unlock()

	for _, t := range tables {
		if s.running.Load() {
			s.requestReload(t)
			continue
		}
		switch t {
		case models.TableCourses:
			_ = s.LoadCourses(ctx)
		case models.TableRegistrations:
			_ = s.LoadRegistrations(ctx)
		}
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrMaxCoursesReached):
		return "rejected_cap"
	case errors.Is(err, apperrors.ErrAlreadyRegistered):
		return "rejected_duplicate"
	case errors.Is(err, apperrors.ErrCourseFull):
		return "rejected_full"
	case errors.Is(err, apperrors.ErrNotRegistered):
		return "rejected_not_registered"
	case errors.Is(err, apperrors.ErrActionInProgress):
		return "rejected_busy"
	case errors.Is(err, apperrors.ErrCourseNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
