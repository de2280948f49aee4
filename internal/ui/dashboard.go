// Package ui renders the read-only terminal dashboard. It only ever
// sees committed snapshots: it loads the state document from disk and
// reloads when the file changes. It never writes state.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"

	"github.com/planvane/planvane/models"
)

const discussionTail = 8

// StateLoader re-reads the committed state snapshot.
type StateLoader func() (*models.ProjectState, error)

type reloadMsg struct{}

type loadedMsg struct {
	state *models.ProjectState
	err   error
}

// DashboardModel is the bubbletea model for the dashboard.
type DashboardModel struct {
	load     StateLoader
	watcher  *fsnotify.Watcher
	state    *models.ProjectState
	err      error
	viewport viewport.Model
	width    int
	height   int
}

// NewDashboard creates a dashboard over the given loader, watching
// statePath for committed snapshots. With an empty statePath no watcher
// is started and the view only refreshes on keypress.
func NewDashboard(load StateLoader, statePath string) (*DashboardModel, error) {
	var watcher *fsnotify.Watcher
	if statePath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create fsnotify watcher: %w", err)
		}
		// Watch the directory: saves go through rename, which replaces
		// the watched inode when watching the file itself.
		dir := filepath.Dir(statePath)
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		watcher = w
	}
	return &DashboardModel{
		load:     load,
		watcher:  watcher,
		viewport: viewport.New(80, 20),
	}, nil
}

// Init loads the first snapshot and starts the watch loop.
func (m *DashboardModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.reload()}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForChange())
	}
	return tea.Batch(cmds...)
}

func (m *DashboardModel) reload() tea.Cmd {
	return func() tea.Msg {
		state, err := m.load()
		return loadedMsg{state: state, err: err}
	}
}

func (m *DashboardModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					return reloadMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// Update handles messages.
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.watcher != nil {
				_ = m.watcher.Close()
			}
			return m, tea.Quit
		case "r":
			return m, m.reload()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 2
	case reloadMsg:
		return m, tea.Batch(m.reload(), m.waitForChange())
	case loadedMsg:
		m.state = msg.state
		m.err = msg.err
		m.viewport.SetContent(m.renderContent())
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the dashboard.
func (m *DashboardModel) View() string {
	header := StyleHeader.Render("planvane") + StyleSubtle.Render("  q quit · r refresh")
	return header + "\n" + m.viewport.View()
}

func (m *DashboardModel) renderContent() string {
	if m.err != nil {
		return StyleError.Render("error: " + m.err.Error())
	}
	if m.state == nil {
		return StyleSubtle.Render("no project yet — run: planvane new \"<goal>\"")
	}

	var b strings.Builder
	s := m.state

	fmt.Fprintf(&b, "%s %s  %s v%d\n",
		StyleTitle.Render(s.ProjectID),
		PhaseStyle(string(s.Phase)).Render(string(s.Phase)),
		StyleSubtle.Render("version"), s.Version)
	if s.Goal != "" {
		fmt.Fprintf(&b, "%s %s\n", StyleSubtle.Render("goal:"), s.Goal)
	}
	b.WriteString("\n")

	b.WriteString(StyleSectionTitle.Render("Tasks") + "\n")
	if len(s.PendingTasks) == 0 {
		b.WriteString(StyleSubtle.Render("  (none)") + "\n")
	}
	for _, t := range s.PendingTasks {
		style := StyleSubtle
		switch t.Status {
		case models.StatusCompleted:
			style = StyleSuccess
		case models.StatusFailed:
			style = StyleError
		case models.StatusInProgress:
			style = StyleWarning
		}
		title, _ := t.Input["title"].(string)
		fmt.Fprintf(&b, "  %s %-11s %-9s %s\n", style.Render("●"), t.Status, t.Type, title)
	}
	b.WriteString("\n")

	if len(s.Approvals) > 0 {
		b.WriteString(StyleSectionTitle.Render("Pending approvals") + "\n")
		for _, a := range s.Approvals {
			fmt.Fprintf(&b, "  %s %s %s\n", StyleWarning.Render("▲"), a.Type, StyleSubtle.Render(a.ID))
		}
		b.WriteString("\n")
	}

	if s.Execution != nil {
		sum := s.Execution.Summary
		b.WriteString(StyleSectionTitle.Render("Execution") + "\n")
		fmt.Fprintf(&b, "  total %d · completed %d · failed %d · in progress %d\n",
			sum.Total, sum.Completed, sum.Failed, sum.InProgress)
		for _, f := range s.Execution.Failures {
			fmt.Fprintf(&b, "  %s %s: %s\n", StyleError.Render("✗"), f.TaskID, f.Reason)
		}
		b.WriteString("\n")
	}

	if len(s.Discussion) > 0 {
		b.WriteString(StyleSectionTitle.Render("Discussion") + "\n")
		start := len(s.Discussion) - discussionTail
		if start < 0 {
			start = 0
		}
		for _, d := range s.Discussion[start:] {
			fmt.Fprintf(&b, "  %s %s\n", StyleSubtle.Render("["+string(d.Type)+"]"), d.Message)
		}
	}

	return StylePanel.Render(b.String())
}
