package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

func newTestService(t *testing.T, store RegistrationStore, cfg RegistrationServiceConfig) *registrationServiceImpl {
	t.Helper()
	svc := NewRegistrationService(store, cfg, zerolog.Nop()).(*registrationServiceImpl)
	t.Cleanup(svc.Close)
	return svc
}

func TestRegistrationServiceSessionPerStudent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testCatalog()...)
	svc := newTestService(t, store, RegistrationServiceConfig{})

	course, snap, err := svc.Register(ctx, "student123", "CS101")
	require.NoError(t, err)
	assert.Equal(t, 36, course.Enrolled)
	assert.Equal(t, []string{"CS101"}, courseIDs(snap.Registered))

	other, err := svc.State(ctx, "student456")
	require.NoError(t, err)
	assert.Empty(t, other.Registered)
	assert.Equal(t, 2, svc.ActiveSessions())

	// student456 sees the new count through the change feed.
	assert.Eventually(t, func() bool {
		snap, err := svc.State(ctx, "student456")
		if err != nil {
			return false
		}
		i := models.IndexOfCourse(snap.Available, "CS101")
		return i >= 0 && snap.Available[i].Enrolled == 36
	}, time.Second, 5*time.Millisecond)

	snap, err = svc.Cancel(ctx, "student123", "CS101")
	require.NoError(t, err)
	assert.Empty(t, snap.Registered)
}

func TestRegistrationServiceRejectionsReturnState(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeStore(testCatalog()...), RegistrationServiceConfig{MaxCourses: 1})

	_, _, err := svc.Register(ctx, "student123", "CS101")
	require.NoError(t, err)

	_, snap, err := svc.Register(ctx, "student123", "CS201")
	assert.ErrorIs(t, err, apperrors.ErrMaxCoursesReached)
	assert.Equal(t, 1, snap.MaxCourses)
	assert.Len(t, snap.Registered, 1)

	_, err = svc.Cancel(ctx, "student123", "CS201")
	assert.ErrorIs(t, err, apperrors.ErrNotRegistered)
}

func TestRegistrationServiceValidatesIdentifiers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeStore(testCatalog()...), RegistrationServiceConfig{})

	_, err := svc.State(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, _, err = svc.Register(ctx, "student123", "CS 101; DROP")
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestRegistrationServiceStartFailureIsNotCached(t *testing.T) {
	store := newFakeStore(testCatalog()...)
	store.subscribeErr = assert.AnError
	svc := newTestService(t, store, RegistrationServiceConfig{})

	_, err := svc.State(context.Background(), "student123")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, svc.ActiveSessions())

	store.mu.Lock()
	store.subscribeErr = nil
	store.mu.Unlock()

	_, err = svc.State(context.Background(), "student123")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ActiveSessions())
}

func TestRegistrationServiceWatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeStore(testCatalog()...), RegistrationServiceConfig{})

	updates, stop, err := svc.Watch(ctx, "student123")
	require.NoError(t, err)

	first := <-updates
	assert.Len(t, first.Available, 10)

	_, _, err = svc.Register(ctx, "student123", "CS101")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case snap := <-updates:
			return len(snap.Registered) == 1 && !snap.Loading
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	stop()
	stop()
	for range updates {
		// drain until the watch closes the channel
	}
}

func TestRegistrationServiceSweep(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testCatalog()...)
	svc := newTestService(t, store, RegistrationServiceConfig{IdleTimeout: time.Minute})

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	_, err := svc.State(ctx, "idle")
	require.NoError(t, err)
	_, stop, err := svc.Watch(ctx, "watched")
	require.NoError(t, err)
	require.Equal(t, 2, svc.ActiveSessions())

	assert.Equal(t, 0, svc.Sweep(base.Add(30*time.Second)))
	assert.Equal(t, 1, svc.Sweep(base.Add(2*time.Minute)))
	assert.Equal(t, 1, svc.ActiveSessions())
	assert.Equal(t, 1, store.subscribers())

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	stop()
	assert.Equal(t, 0, svc.Sweep(base.Add(2*time.Minute+30*time.Second)))
	assert.Equal(t, 1, svc.Sweep(base.Add(4*time.Minute)))
	assert.Equal(t, 0, svc.ActiveSessions())
	assert.Equal(t, 0, store.subscribers())
}

func TestRegistrationServiceJanitor(t *testing.T) {
	store := newFakeStore(testCatalog()...)
	svc := newTestService(t, store, RegistrationServiceConfig{
		IdleTimeout:   time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})

	_, err := svc.State(context.Background(), "student123")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return svc.ActiveSessions() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRegistrationServiceClose(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(testCatalog()...)
	svc := NewRegistrationService(store, RegistrationServiceConfig{}, zerolog.Nop())

	updates, _, err := svc.Watch(ctx, "student123")
	require.NoError(t, err)
	<-updates

	svc.Close()
	svc.Close()

	for range updates {
	}
	assert.Equal(t, 0, store.subscribers())

	_, err = svc.State(ctx, "student123")
	assert.ErrorIs(t, err, ErrServiceClosed)
}
