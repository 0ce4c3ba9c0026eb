package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/pkg/apperrors"
)

type fakeActions struct {
	registered []string
	cancelled  []string
	loads      int
	err        error
}

func (f *fakeActions) Register(ctx context.Context, courseID string) (models.Course, error) {
	f.registered = append(f.registered, courseID)
	if f.err != nil {
		return models.Course{}, f.err
	}
	return models.Course{ID: courseID, Name: "Introduction to Programming"}, nil
}

func (f *fakeActions) Cancel(ctx context.Context, courseID string) error {
	f.cancelled = append(f.cancelled, courseID)
	return f.err
}

func (f *fakeActions) Load(ctx context.Context) error {
	f.loads++
	return f.err
}

func testSnapshot() services.Snapshot {
	cs101 := models.Course{ID: "CS101", Name: "Introduction to Programming", Professor: "Prof. Kim", Credits: 3, Capacity: 50, Enrolled: 36}
	cs201 := models.Course{ID: "CS201", Name: "Data Structures", Professor: "Prof. Lee", Credits: 3, Capacity: 40, Enrolled: 28}
	return services.Snapshot{
		Version:      3,
		StudentID:    "student123",
		Available:    []models.Course{cs101, cs201},
		Registered:   []models.Course{cs101},
		TotalCredits: 3,
		MaxCourses:   8,
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends msg and returns the updated model.
func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestTabSwitchesPane(t *testing.T) {
	m := New(context.Background(), &fakeActions{}, testSnapshot())
	assert.Equal(t, PaneAvailable, m.Focus())

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneRegistered, m.Focus())

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneAvailable, m.Focus())
}

func TestRegisterSelectedCourse(t *testing.T) {
	actions := &fakeActions{}
	m := New(context.Background(), actions, testSnapshot())

	m, cmd := press(t, m, key("r"))
	require.NotNil(t, cmd)

	_, again := press(t, m, key("r"))
	assert.Nil(t, again, "no second action while one is running")

	m, _ = press(t, m, cmd())
	assert.Equal(t, []string{"CS101"}, actions.registered)
	notice, isErr := m.Notice()
	assert.Equal(t, "Registered CS101 Introduction to Programming", notice)
	assert.False(t, isErr)
}

func TestCancelOnlyFromRegisteredPane(t *testing.T) {
	actions := &fakeActions{}
	m := New(context.Background(), actions, testSnapshot())

	_, cmd := press(t, m, key("d"))
	assert.Nil(t, cmd)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	_, cmd = press(t, m, key("r"))
	assert.Nil(t, cmd, "register needs the available pane")

	m, cmd = press(t, m, key("x"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	assert.Equal(t, []string{"CS101"}, actions.cancelled)
	notice, _ := m.Notice()
	assert.Equal(t, "Cancelled CS101", notice)
}

func TestRejectionShownAsNotice(t *testing.T) {
	actions := &fakeActions{err: apperrors.ErrAlreadyRegistered}
	m := New(context.Background(), actions, testSnapshot())

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())

	notice, isErr := m.Notice()
	assert.True(t, isErr)
	assert.Contains(t, notice, "course already registered")
	assert.Contains(t, m.View(), notice)
}

func TestRefresh(t *testing.T) {
	actions := &fakeActions{err: errors.New("backend down")}
	m := New(context.Background(), actions, testSnapshot())

	m, cmd := press(t, m, key("R"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	assert.Equal(t, 1, actions.loads)
	notice, isErr := m.Notice()
	assert.Equal(t, "refresh failed: backend down", notice)
	assert.True(t, isErr)
}

func TestSnapshotMsgUpdatesView(t *testing.T) {
	m := New(context.Background(), &fakeActions{}, services.Snapshot{StudentID: "student123", MaxCourses: 8, Loading: true})
	assert.Contains(t, m.View(), "(working...)")

	m, _ = press(t, m, SnapshotMsg(testSnapshot()))
	assert.Equal(t, uint64(3), m.Snapshot().Version)

	view := m.View()
	assert.Contains(t, view, "Credits: 3  Remaining slots: 7")
	assert.Contains(t, view, "Registered (1/8)")
	assert.Contains(t, view, "36/50")
	assert.False(t, strings.Contains(view, "(working...)"))
}

func TestQuit(t *testing.T) {
	m := New(context.Background(), &fakeActions{}, testSnapshot())

	_, cmd := press(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
