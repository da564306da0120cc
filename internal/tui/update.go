package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/store"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If popup is active, handle popup keys first.
		if m.popup != popupNone {
			return m.handlePopupKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setStatus("Failed to load board: "+msg.err.Error(), true)
			return m, nil
		}
		m.board = msg.board
		m.loaded = true
		if m.pendingFollow != "" {
			m.follow(m.pendingFollow)
			m.pendingFollow = ""
		}
		m.clampCursor()
		return m, nil

	case mutationDoneMsg:
		return m.handleMutation(msg)

	case detailLoadedMsg:
		if msg.err != nil {
			m.setStatus("Failed to load activity: "+msg.err.Error(), true)
			return m, nil
		}
		m.detailEvents = msg.events
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		// Clear old status messages.
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		// Picks up changes made by other members.
		if !m.refreshing && m.popup == popupNone {
			m.refreshing = true
			cmds = append(cmds, m.loadBoard())
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) handleMutation(msg mutationDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setStatus("Error: "+msg.err.Error(), true)
		return m, m.loadBoard()
	}
	if msg.res.Empty() {
		m.setStatus("Already there", false)
		return m, nil
	}

	follow := ""
	if msg.res.Removed == "" && len(msg.res.Tasks) > 0 {
		follow = msg.res.Tasks[0].ID
	}

	var cmd tea.Cmd
	switch m.board.Apply(msg.res) {
	case board.Applied:
		if follow != "" {
			m.follow(follow)
		}
		m.clampCursor()
	case board.Gap:
		// Someone else changed the board since the last load.
		m.pendingFollow = follow
		cmd = m.loadBoard()
	}

	status := msg.verb
	if len(msg.res.Tasks) > 0 && msg.res.Removed == "" {
		t := msg.res.Tasks[0]
		status += " " + shortID(t.ID) + " → " + string(t.Status) + "#" + itoa(t.Index)
	} else if msg.res.Removed != "" {
		status += " " + shortID(msg.res.Removed)
	}
	m.setStatus(status, false)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.screen == screenBoard || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m.goBack()

	case "esc":
		return m.goBack()
	}

	switch m.screen {
	case screenBoard:
		return m.handleBoardKey(msg)
	case screenDetail:
		return m.handleDetailKey(msg)
	}

	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	if m.screen == screenDetail {
		m.screen = screenBoard
		m.detail = nil
		m.detailEvents = nil
	}
	return m, nil
}

// --- Board screen keys ---

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	// Navigation.
	case "j", "down":
		m.cursorRow++
		m.clampCursor()
	case "k", "up":
		m.cursorRow--
		m.clampCursor()
	case "h", "left":
		m.cursorCol--
		m.clampCursor()
	case "l", "right":
		m.cursorCol++
		m.clampCursor()

	// Move to the neighbouring lane, keeping the row where possible.
	case "H", "shift+left":
		if t := m.selectedTask(); t != nil && m.cursorCol > 0 {
			return m, m.moveTask(t.ID, store.Statuses[m.cursorCol-1], t.Index)
		}
	case "L", "shift+right":
		if t := m.selectedTask(); t != nil && m.cursorCol < numColumns-1 {
			return m, m.moveTask(t.ID, store.Statuses[m.cursorCol+1], t.Index)
		}

	// Reorder inside the lane.
	case "K", "shift+up":
		if t := m.selectedTask(); t != nil && t.Index > 0 {
			return m, m.moveTask(t.ID, t.Status, t.Index-1)
		}
	case "J", "shift+down":
		if t := m.selectedTask(); t != nil && t.Index < len(m.column(m.cursorCol))-1 {
			return m, m.moveTask(t.ID, t.Status, t.Index+1)
		}

	// Drill-down into task.
	case "enter", " ":
		if t := m.selectedTask(); t != nil {
			m.detail = t
			m.detailEvents = nil
			m.screen = screenDetail
			return m, m.loadDetail(t.ID)
		}

	// Delete.
	case "d", "x":
		if m.selectedTask() != nil {
			m.popup = popupConfirmDelete
		}

	// Create in the current lane.
	case "c", "ctrl+n":
		m.popup = popupCreate
		m.textInput.Reset()
		m.textInput.Focus()
		m.textInput2.Reset()
		m.textInput2.Blur()
		m.inputFocused = 0
		return m, textinput.Blink

	// Refresh.
	case "r", "R":
		m.refreshing = true
		return m, m.loadBoard()
	}

	return m, nil
}

// --- Task detail keys ---

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "backspace":
		return m.goBack()
	}
	return m, nil
}

// --- Popup keys ---

func (m Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.popup {
	case popupCreate:
		return m.handleCreatePopup(msg)
	case popupConfirmDelete:
		return m.handleConfirmDeletePopup(msg)
	}
	return m, nil
}

func (m Model) handleCreatePopup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = popupNone
		return m, nil
	case "tab", "shift+tab":
		if m.inputFocused == 0 {
			m.textInput.Blur()
			m.textInput2.Focus()
			m.inputFocused = 1
		} else {
			m.textInput2.Blur()
			m.textInput.Focus()
			m.inputFocused = 0
		}
		return m, textinput.Blink
	case "enter":
		desc := strings.TrimSpace(m.textInput.Value())
		if desc == "" {
			m.setStatus("Description cannot be empty", true)
			return m, nil
		}
		today := time.Now().UTC().Truncate(24 * time.Hour)
		due := today.AddDate(0, 0, 7)
		if v := strings.TrimSpace(m.textInput2.Value()); v != "" {
			parsed, err := time.Parse(dateLayout, v)
			if err != nil {
				m.setStatus("Error: due date must look like "+dateLayout, true)
				return m, nil
			}
			due = parsed
		}
		m.popup = popupNone
		return m, m.createTask(board.NewTask{
			TeamID:      m.team,
			Status:      store.Statuses[m.cursorCol],
			Date:        today,
			DueDate:     due,
			Description: desc,
		})
	}

	// Forward to the active text input.
	var cmd tea.Cmd
	if m.inputFocused == 0 {
		m.textInput, cmd = m.textInput.Update(msg)
	} else {
		m.textInput2, cmd = m.textInput2.Update(msg)
	}
	return m, cmd
}

func (m Model) handleConfirmDeletePopup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.popup = popupNone
		if t := m.selectedTask(); t != nil {
			return m, m.deleteTask(t.ID)
		}
		return m, nil
	case "n", "esc":
		m.popup = popupNone
		return m, nil
	}
	return m, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	s := ""
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	if neg {
		s = "-" + s
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
