// Package tui renders a viewer's notification center and reminder popup in
// the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/charlesng35/learnhub/internal/notifycenter"
	"github.com/charlesng35/learnhub/internal/reminders"
)

// SnapshotMsg carries a fresh notification center snapshot.
type SnapshotMsg notifycenter.Snapshot

// PopupOpenedMsg reports the outcome of the session's reminder popup.
type PopupOpenedMsg struct {
	Visible bool
}

// Updates buffers center snapshots for the UI. Only the newest snapshot is
// kept; older unread ones are replaced.
type Updates struct {
	mu sync.Mutex
	ch chan notifycenter.Snapshot
}

// NewUpdates constructs an empty buffer.
func NewUpdates() *Updates {
	return &Updates{ch: make(chan notifycenter.Snapshot, 1)}
}

// Push stores snap. It never blocks and is meant for notifycenter.WithOnChange.
func (u *Updates) Push(snap notifycenter.Snapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	select {
	case <-u.ch:
	default:
	}
	u.ch <- snap
}

func (u *Updates) wait() tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg(<-u.ch)
	}
}

// Model is the root bubbletea model.
type Model struct {
	ctx     context.Context
	center  *notifycenter.Center
	popup   *reminders.Popup
	viewer  reminders.Viewer
	updates *Updates
	keys    KeyMap
	help    help.Model

	snap   notifycenter.Snapshot
	cursor int
	status string
	width  int
}

// New constructs the model. updates may be nil when the center has no
// change callback; the view is then refreshed after each local action only.
func New(ctx context.Context, center *notifycenter.Center, popup *reminders.Popup, viewer reminders.Viewer, updates *Updates) Model {
	return Model{
		ctx:     ctx,
		center:  center,
		popup:   popup,
		viewer:  viewer,
		updates: updates,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		snap:    center.Snapshot(),
	}
}

// Init opens the reminder popup and starts listening for center updates.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.openPopup()}
	if m.updates != nil {
		cmds = append(cmds, m.updates.wait())
	}
	return tea.Batch(cmds...)
}

func (m Model) openPopup() tea.Cmd {
	ctx, popup, viewer := m.ctx, m.popup, m.viewer
	return func() tea.Msg {
		return PopupOpenedMsg{Visible: popup.Open(ctx, viewer)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.setSnapshot(notifycenter.Snapshot(msg))
		var cmd tea.Cmd
		if m.updates != nil {
			cmd = m.updates.wait()
		}
		return m, cmd

	case PopupOpenedMsg:
		if msg.Visible && m.popup.Fallback() {
			m.status = "showing demonstration reminders"
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.popup.Visible() {
			return m.handlePopupKeys(msg)
		}
		return m.handleListKeys(msg)
	}
	return m, nil
}

func (m Model) handlePopupKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Previous):
		m.popup.Previous(m.ctx)
	case key.Matches(msg, m.keys.Next):
		m.popup.Next(m.ctx)
	case key.Matches(msg, m.keys.Dismiss):
		current, ok := m.popup.Current()
		if !ok {
			break
		}
		if !m.popup.Dismiss(m.ctx, current.ID) {
			m.status = "this reminder cannot be dismissed"
		} else {
			m.status = ""
		}
	case key.Matches(msg, m.keys.CloseAll):
		m.popup.CloseAll()
		m.status = ""
	}
	return m, nil
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Items)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.ReadAll):
		m.center.MarkAllAsRead()
		m.status = "all notifications marked read"
	case key.Matches(msg, m.keys.Read):
		if id, ok := m.selectedID(); ok {
			m.center.MarkAsRead(id)
		}
	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.selectedID(); ok {
			m.center.Delete(id)
			m.status = "notification deleted"
		}
	case key.Matches(msg, m.keys.Select):
		if id, ok := m.selectedID(); ok {
			if url := m.center.Select(id); url != "" {
				m.status = "open " + url
			} else {
				m.status = ""
			}
		}
	default:
		return m, nil
	}
	m.setSnapshot(m.center.Snapshot())
	return m, nil
}

func (m *Model) setSnapshot(snap notifycenter.Snapshot) {
	m.snap = snap
	if m.cursor >= len(snap.Items) {
		m.cursor = max(len(snap.Items)-1, 0)
	}
}

func (m Model) selectedID() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Items) {
		return "", false
	}
	return m.snap.Items[m.cursor].ID, true
}

// View renders the popup above the notification list.
func (m Model) View() string {
	var b strings.Builder

	if m.popup.Visible() {
		b.WriteString(m.viewPopup())
		b.WriteString("\n\n")
	}
	b.WriteString(m.viewList())

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
	}

	b.WriteString("\n")
	if m.popup.Visible() {
		b.WriteString(m.help.View(popupHelp{m.keys}))
	} else {
		b.WriteString(m.help.View(listHelp{m.keys}))
	}
	return b.String()
}

func (m Model) viewPopup() string {
	snap := m.popup.Snapshot()
	if !snap.Visible || snap.Index >= len(snap.Items) {
		return ""
	}
	item := snap.Items[snap.Index]

	header := fmt.Sprintf("Reminder %d/%d", snap.Index+1, len(snap.Items))
	if snap.Fallback {
		header += " (demo)"
	}

	lines := []string{
		mutedStyle.Render(header),
		popupTitleStyle.Render(item.Title) + "  " + reminderPriorityStyle(item.Priority).Render(item.Priority),
		"",
		item.Message,
	}
	if item.CreatorName != "" {
		lines = append(lines, "", mutedStyle.Render("from "+item.CreatorName))
	}
	if item.ExpiresAt != nil {
		lines = append(lines, mutedStyle.Render("until "+item.ExpiresAt.Local().Format("Jan 2 15:04")))
	}
	if !item.IsDismissible {
		lines = append(lines, mutedStyle.Render("cannot be dismissed"))
	}

	style := popupStyle
	if m.width > 8 {
		style = style.Width(min(m.width-4, 72))
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) viewList() string {
	var b strings.Builder

	title := fmt.Sprintf("Notifications · %d unread", m.snap.Unread)
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	if m.snap.Fallback {
		b.WriteString(bannerStyle.Render("server unavailable, showing demonstration notifications"))
		b.WriteString("\n")
	}
	b.WriteString(dividerStyle.Render(strings.Repeat("─", max(min(m.width, 60), 20))))
	b.WriteString("\n")

	if m.snap.State == notifycenter.Loading {
		b.WriteString(mutedStyle.Render("loading…"))
		return b.String()
	}
	if len(m.snap.Items) == 0 {
		b.WriteString(mutedStyle.Render("no notifications"))
		return b.String()
	}

	for i, n := range m.snap.Items {
		marker := "●"
		if n.IsRead {
			marker = " "
		}
		line := fmt.Sprintf("%s %s  %s", notificationTypeStyle(n.Type).Render(marker), n.Title, mutedStyle.Render(n.CreatedAt.Local().Format("Jan 2 15:04")))
		if n.IsRead {
			line = readStyle.Render(line)
		}

		if i == m.cursor {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
