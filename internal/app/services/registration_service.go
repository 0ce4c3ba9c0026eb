package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/metrics"
	"github.com/yigit/coursereg/internal/pkg/validation"
)

// ErrServiceClosed is returned once the registration service has shut down.
var ErrServiceClosed = errors.New("registration service closed")

// RegistrationService defines the per-student registration operations used by
// the HTTP front-end.
type RegistrationService interface {
	State(ctx context.Context, studentID string) (Snapshot, error)
	Register(ctx context.Context, studentID, courseID string) (models.Course, Snapshot, error)
	Cancel(ctx context.Context, studentID, courseID string) (Snapshot, error)
	Refresh(ctx context.Context, studentID string) (Snapshot, error)

	// Watch returns a channel receiving the current snapshot and every later
	// one. Slow readers only see the latest. The func stops the watch and
	// closes the channel.
	Watch(ctx context.Context, studentID string) (<-chan Snapshot, func(), error)

	// Sweep closes sessions idle since before now minus the idle timeout and
	// returns how many were closed.
	Sweep(now time.Time) int
	ActiveSessions() int
	Close()
}

// RegistrationServiceConfig tunes the session manager.
type RegistrationServiceConfig struct {
	MaxCourses  int
	IdleTimeout time.Duration
	// SweepInterval enables the background janitor when positive.
	SweepInterval time.Duration
}

// registrationServiceImpl implements the RegistrationService interface
type registrationServiceImpl struct {
	store  RegistrationStore
	cfg    RegistrationServiceConfig
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*managedSession
	closed   bool

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// managedSession is a Session plus its websocket watchers.
type managedSession struct {
	session  *Session
	ready    chan struct{}
	startErr error
	lastUsed time.Time // guarded by registrationServiceImpl.mu

	mu          sync.Mutex
	nextWatcher int
	watchers    map[int]chan Snapshot
}

// NewRegistrationService creates a new registration service instance
func NewRegistrationService(store RegistrationStore, cfg RegistrationServiceConfig, logger zerolog.Logger) RegistrationService {
	if cfg.MaxCourses <= 0 {
		cfg.MaxCourses = models.DefaultMaxCourses
	}
	s := &registrationServiceImpl{
		store:    store,
		cfg:      cfg,
		logger:   logger.With().Str("component", "registration_service").Logger(),
		now:      time.Now,
		sessions: make(map[string]*managedSession),
	}
	if cfg.SweepInterval > 0 && cfg.IdleTimeout > 0 {
		s.stopJanitor = make(chan struct{})
		s.janitorDone = make(chan struct{})
		go s.janitor(cfg.SweepInterval)
	}
	return s
}

func (s *registrationServiceImpl) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopJanitor:
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug().Int("closed", n).Msg("Idle sessions swept")
			}
		}
	}
}

// session returns the started session of studentID, creating it on first use.
func (s *registrationServiceImpl) session(ctx context.Context, studentID string) (*managedSession, error) {
	if err := validation.ValidateStudentID(studentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	m, ok := s.sessions[studentID]
	if ok {
		m.lastUsed = s.now()
		s.mu.Unlock()
	} else {
		m = &managedSession{
			ready:    make(chan struct{}),
			lastUsed: s.now(),
			watchers: make(map[int]chan Snapshot),
		}
		m.session = NewSession(s.store, studentID,
			WithMaxCourses(s.cfg.MaxCourses),
			WithLogger(s.logger),
			WithObserver(m.publish),
		)
		s.sessions[studentID] = m
		metrics.SetActiveSessions(len(s.sessions))
		s.mu.Unlock()

		m.startErr = m.session.Start(ctx)
		close(m.ready)
		if m.startErr != nil {
			s.logger.Error().Err(m.startErr).Str("studentID", studentID).Msg("Failed to start session")
			s.drop(studentID, m)
			return nil, m.startErr
		}
		s.logger.Info().Str("studentID", studentID).Msg("Session started")
	}

	select {
	case <-m.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m, nil
}

// drop removes m from the map if it is still the session of studentID.
func (s *registrationServiceImpl) drop(studentID string, m *managedSession) {
	s.mu.Lock()
	if s.sessions[studentID] == m {
		delete(s.sessions, studentID)
		metrics.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()
}

func (s *registrationServiceImpl) touch(m *managedSession) {
	s.mu.Lock()
	m.lastUsed = s.now()
	s.mu.Unlock()
}

// State returns the student's current snapshot.
func (s *registrationServiceImpl) State(ctx context.Context, studentID string) (Snapshot, error) {
	m, err := s.session(ctx, studentID)
	if err != nil {
		return Snapshot{}, err
	}
	return m.session.Snapshot(), nil
}

// Register registers courseID for the student.
func (s *registrationServiceImpl) Register(ctx context.Context, studentID, courseID string) (models.Course, Snapshot, error) {
	if err := validation.ValidateCourseID(courseID); err != nil {
		return models.Course{}, Snapshot{}, err
	}
	m, err := s.session(ctx, studentID)
	if err != nil {
		return models.Course{}, Snapshot{}, err
	}
	course, err := m.session.Register(ctx, courseID)
	return course, m.session.Snapshot(), err
}

// Cancel drops courseID for the student.
func (s *registrationServiceImpl) Cancel(ctx context.Context, studentID, courseID string) (Snapshot, error) {
	if err := validation.ValidateCourseID(courseID); err != nil {
		return Snapshot{}, err
	}
	m, err := s.session(ctx, studentID)
	if err != nil {
		return Snapshot{}, err
	}
	err = m.session.Cancel(ctx, courseID)
	return m.session.Snapshot(), err
}

// Refresh reloads both collections from the store.
func (s *registrationServiceImpl) Refresh(ctx context.Context, studentID string) (Snapshot, error) {
	m, err := s.session(ctx, studentID)
	if err != nil {
		return Snapshot{}, err
	}
	err = m.session.Load(ctx)
	return m.session.Snapshot(), err
}

// Watch subscribes to the student's snapshots.
func (s *registrationServiceImpl) Watch(ctx context.Context, studentID string) (<-chan Snapshot, func(), error) {
	m, err := s.session(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Snapshot, 1)
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.session.Snapshot()
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.removeWatcher(id)
			s.touch(m)
		})
	}
	return ch, stop, nil
}

func (m *managedSession) removeWatcher(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.watchers[id]; ok {
		delete(m.watchers, id)
		close(ch)
	}
}

func (m *managedSession) watcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// publish hands snap to every watcher, replacing an unread older snapshot.
func (m *managedSession) publish(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *managedSession) closeWatchers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
}

// Sweep closes idle sessions without watchers.
func (s *registrationServiceImpl) Sweep(now time.Time) int {
	if s.cfg.IdleTimeout <= 0 {
		return 0
	}

	var idle []*managedSession
	s.mu.Lock()
	for id, m := range s.sessions {
		select {
		case <-m.ready:
		default:
			continue
		}
		if now.Sub(m.lastUsed) < s.cfg.IdleTimeout || m.watcherCount() > 0 {
			continue
		}
		delete(s.sessions, id)
		idle = append(idle, m)
	}
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, m := range idle {
		m.session.Close()
	}
	return len(idle)
}

// ActiveSessions returns the number of open sessions.
func (s *registrationServiceImpl) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the janitor and closes every session and watch.
func (s *registrationServiceImpl) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*managedSession)
	metrics.SetActiveSessions(0)
	s.mu.Unlock()

	if s.stopJanitor != nil {
		close(s.stopJanitor)
		<-s.janitorDone
	}
	for _, m := range sessions {
		<-m.ready
		m.closeWatchers()
		m.session.Close()
	}
	s.logger.Info().Int("sessions", len(sessions)).Msg("Registration service closed")
}
