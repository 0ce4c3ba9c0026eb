// Package tui is the interactive terminal view of a registration session.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/app/services"
)

const actionTimeout = 15 * time.Second

// Actions is what the view asks of a session. *services.Session implements it.
type Actions interface {
	Register(ctx context.Context, courseID string) (models.Course, error)
	Cancel(ctx context.Context, courseID string) error
	Load(ctx context.Context) error
}

// Pane identifies the focused table.
type Pane int

const (
	PaneAvailable Pane = iota
	PaneRegistered
)

// SnapshotMsg carries a new session state into the program.
type SnapshotMsg services.Snapshot

// actionDoneMsg reports the outcome of a register, cancel or refresh.
type actionDoneMsg struct {
	action   string
	courseID string
	course   models.Course
	err      error
}

// Model is the bubbletea model of the registration view.
type Model struct {
	actions Actions
	ctx     context.Context

	snap       services.Snapshot
	available  table.Model
	registered table.Model
	focus      Pane

	notice    string
	noticeErr bool
	busy      bool

	styles Styles
}

// New creates the view for a session. ctx bounds the actions it issues.
func New(ctx context.Context, actions Actions, initial services.Snapshot) Model {
	m := Model{
		actions: actions,
		ctx:     ctx,
		styles:  DefaultStyles(),
		available: table.New(
			table.WithColumns(availableColumns()),
			table.WithFocused(true),
			table.WithHeight(12),
			table.WithStyles(tableStyles()),
		),
		registered: table.New(
			table.WithColumns(registeredColumns()),
			table.WithHeight(8),
			table.WithStyles(tableStyles()),
		),
	}
	m.apply(initial)
	return m
}

func availableColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Name", Width: 28},
		{Title: "Professor", Width: 12},
		{Title: "Cr", Width: 3},
		{Title: "Time", Width: 20},
		{Title: "Seats", Width: 7},
	}
}

func registeredColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Name", Width: 28},
		{Title: "Professor", Width: 12},
		{Title: "Cr", Width: 3},
		{Title: "Time", Width: 20},
	}
}

// Focus returns the focused pane.
func (m Model) Focus() Pane {
	return m.focus
}

// Notice returns the last notice and whether it reports a failure.
func (m Model) Notice() (string, bool) {
	return m.notice, m.noticeErr
}

// Snapshot returns the state the view currently shows.
func (m Model) Snapshot() services.Snapshot {
	return m.snap
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.apply(services.Snapshot(msg))
		return m, nil

	case actionDoneMsg:
		m.busy = false
		m.setNotice(msg)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.toggleFocus()
			return m, nil
		case "enter", "r":
			if m.focus != PaneAvailable {
				return m, nil
			}
			return m.startAction("register", selectedID(m.available))
		case "d", "x":
			if m.focus != PaneRegistered {
				return m, nil
			}
			return m.startAction("cancel", selectedID(m.registered))
		case "R":
			return m.startAction("refresh", "")
		}
	}

	var cmd tea.Cmd
	if m.focus == PaneAvailable {
		m.available, cmd = m.available.Update(msg)
	} else {
		m.registered, cmd = m.registered.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == PaneAvailable {
		m.focus = PaneRegistered
		m.available.Blur()
		m.registered.Focus()
		return
	}
	m.focus = PaneAvailable
	m.registered.Blur()
	m.available.Focus()
}

func (m Model) startAction(action, courseID string) (tea.Model, tea.Cmd) {
	if m.busy || (action != "refresh" && courseID == "") {
		return m, nil
	}
	m.busy = true
	m.notice, m.noticeErr = "", false
	return m, m.run(action, courseID)
}

// run issues the action off the update loop; the session pushes the new
// state through SnapshotMsg on its own.
func (m Model) run(action, courseID string) tea.Cmd {
	actions, parent := m.actions, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()

		done := actionDoneMsg{action: action, courseID: courseID}
		switch action {
		case "register":
			done.course, done.err = actions.Register(ctx, courseID)
		case "cancel":
			done.err = actions.Cancel(ctx, courseID)
		case "refresh":
			done.err = actions.Load(ctx)
		}
		return done
	}
}

func (m *Model) setNotice(msg actionDoneMsg) {
	if msg.err != nil {
		m.notice, m.noticeErr = fmt.Sprintf("%s %s failed: %v", msg.action, msg.courseID, msg.err), true
		if msg.action == "refresh" {
			m.notice = fmt.Sprintf("refresh failed: %v", msg.err)
		}
		return
	}
	m.noticeErr = false
	switch msg.action {
	case "register":
		m.notice = fmt.Sprintf("Registered %s %s", msg.course.ID, msg.course.Name)
	case "cancel":
		m.notice = fmt.Sprintf("Cancelled %s", msg.courseID)
	case "refresh":
		m.notice = "Refreshed"
	}
}

func (m *Model) apply(snap services.Snapshot) {
	m.snap = snap

	rows := make([]table.Row, 0, len(snap.Available))
	for _, c := range snap.Available {
		rows = append(rows, table.Row{
			c.ID, c.Name, c.Professor, strconv.Itoa(c.Credits), c.Time,
			fmt.Sprintf("%d/%d", c.Enrolled, c.Capacity),
		})
	}
	m.available.SetRows(rows)

	rows = make([]table.Row, 0, len(snap.Registered))
	for _, c := range snap.Registered {
		rows = append(rows, table.Row{c.ID, c.Name, c.Professor, strconv.Itoa(c.Credits), c.Time})
	}
	m.registered.SetRows(rows)
}

func selectedID(t table.Model) string {
	row := t.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Course Registration · " + m.snap.StudentID))
	b.WriteString("\n")

	availPane, regPane := m.styles.FocusedPane, m.styles.Pane
	if m.focus == PaneRegistered {
		availPane, regPane = m.styles.Pane, m.styles.FocusedPane
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left,
		availPane.Render("Available courses\n"+m.available.View()),
		regPane.Render(fmt.Sprintf("Registered (%d/%d)\n", len(m.snap.Registered), m.snap.MaxCourses)+m.registered.View()),
	))
	b.WriteString("\n")

	status := fmt.Sprintf("Credits: %d  Remaining slots: %d", m.snap.TotalCredits, m.snap.RemainingSlots())
	if m.snap.Loading || m.busy {
		status += "  (working...)"
	}
	b.WriteString(m.styles.Status.Render(status))
	b.WriteString("\n")

	if m.notice != "" {
		style := m.styles.Notice
		if m.noticeErr {
			style = m.styles.Error
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("tab switch · enter/r register · d/x cancel · R refresh · q quit"))
	return b.String()
}
