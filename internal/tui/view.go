package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imkarma/laneboard/internal/store"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrMagenta   = lipgloss.AdaptiveColor{Light: "#A21CAF", Dark: "#E879F9"}
	clrCyan      = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	clrWhite     = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

var laneColors = [numColumns]lipgloss.AdaptiveColor{clrWhite, clrBlue, clrMagenta, clrGreen}

// --- Styles ---
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle   = lipgloss.NewStyle().Foreground(clrDim)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1)

	cardSelectedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrHighlight).
				Padding(0, 1).
				Bold(true)

	cardOverdueStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrRed).
				Padding(0, 1)

	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrHighlight).
			Padding(1, 2).
			Width(60)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.screen {
	case screenBoard:
		content = m.viewBoard()
	case screenDetail:
		content = m.viewDetail()
	}

	// Overlay popup if active.
	if m.popup != popupNone {
		content = m.overlayPopup(content)
	}
	return content
}

// ════════════════════════════════════════════════
// BOARD VIEW
// ════════════════════════════════════════════════

func (m Model) viewBoard() string {
	var b strings.Builder

	header := titleStyle.Render("laneboard " + m.team)
	header += dimStyle.Render(fmt.Sprintf("  v%d", m.board.Version))

	rightHelp := footerKeyStyle.Render("c") + footerDescStyle.Render(" new  ") +
		footerKeyStyle.Render("q") + footerDescStyle.Render(" quit")

	headerLine := header
	if m.width > 0 {
		pad := m.width - lipgloss.Width(header) - lipgloss.Width(rightHelp)
		if pad > 0 {
			headerLine = header + strings.Repeat(" ", pad) + rightHelp
		}
	}
	b.WriteString(headerLine + "\n\n")

	if !m.loaded {
		b.WriteString(dimStyle.Render("  Loading...\n"))
		return b.String()
	}

	colWidth := 30
	if m.width > 0 {
		colWidth = m.width/numColumns - 1
		if colWidth < 20 {
			colWidth = 20
		}
	}

	now := time.Now()
	cols := make([]string, numColumns)
	for c := 0; c < numColumns; c++ {
		cols[c] = m.renderLane(c, colWidth, now)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")

	// Status bar.
	if m.statusMsg != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(errorStyle.Render("  " + m.statusMsg))
		} else {
			b.WriteString(statusStyle.Render("  " + m.statusMsg))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.boardFooter())
	return b.String()
}

func (m Model) renderLane(c, width int, now time.Time) string {
	tasks := m.column(c)

	var b strings.Builder
	label := lipgloss.NewStyle().Bold(true).Foreground(laneColors[c]).Render(columnLabels[c])
	b.WriteString(" " + label + dimStyle.Render(fmt.Sprintf(" (%d)", len(tasks))) + "\n")

	if len(tasks) == 0 {
		b.WriteString(dimStyle.Render("  empty") + "\n")
	}
	for r, t := range tasks {
		selected := c == m.cursorCol && r == m.cursorRow
		b.WriteString(renderCard(t, selected, width, now) + "\n")
	}
	return lipgloss.NewStyle().Width(width + 1).Render(b.String())
}

func renderCard(t store.Task, selected bool, width int, now time.Time) string {
	var content strings.Builder

	id := lipgloss.NewStyle().Foreground(clrCyan).Render(shortID(t.ID))
	content.WriteString(id + dimStyle.Render(fmt.Sprintf(" #%d", t.Index)) + "\n")
	content.WriteString(truncate(t.Description, width-4) + "\n")

	overdue := t.Status != store.StatusFinished && t.DueDate.Before(now)
	due := "due " + t.DueDate.Format("01-02")
	if overdue {
		due = lipgloss.NewStyle().Foreground(clrRed).Render("⚠ " + due)
	} else {
		due = dimStyle.Render(due)
	}
	if n := len(t.Assignees); n > 0 {
		due += dimStyle.Render(fmt.Sprintf("  %d assigned", n))
	}
	content.WriteString(due)

	style := cardStyle
	if selected {
		style = cardSelectedStyle
	} else if overdue {
		style = cardOverdueStyle
	}
	return style.Width(width - 2).Render(content.String())
}

func (m Model) boardFooter() string {
	keys := []struct{ key, desc string }{
		{"hjkl", "navigate"},
		{"H/L", "move lane"},
		{"J/K", "reorder"},
		{"enter", "details"},
		{"c", "new"},
		{"d", "delete"},
		{"r", "refresh"},
	}
	return renderFooter(keys)
}

// ════════════════════════════════════════════════
// TASK DETAIL VIEW
// ════════════════════════════════════════════════

func (m Model) viewDetail() string {
	if m.detail == nil {
		return "No task selected"
	}

	var b strings.Builder
	t := m.detail

	b.WriteString(titleStyle.Render(shortID(t.ID) + " " + truncate(t.Description, 60)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("esc back"))
	b.WriteString("\n\n")

	line := func(label, value string) {
		b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render(fmt.Sprintf("%-10s", label)), value))
	}
	line("lane", fmt.Sprintf("%s #%d", t.Status, t.Index))
	line("dates", t.Date.Format(dateLayout)+" → "+t.DueDate.Format(dateLayout))
	if len(t.Assignees) > 0 {
		line("assigned", strings.Join(t.Assignees, ", "))
	}
	b.WriteString("\n")

	// Lifecycle tracker: created ── started ── review ── finished
	b.WriteString("  " + renderLifecycle(t) + "\n\n")

	if len(m.detailEvents) > 0 {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("  Log:") + "\n")
		start := 0
		if len(m.detailEvents) > 10 {
			start = len(m.detailEvents) - 10
		}
		for _, ev := range m.detailEvents[start:] {
			ts := dimStyle.Render(ev.Timestamp.Local().Format("01-02 15:04"))
			actor := ""
			if ev.Actor != "" {
				actor = lipgloss.NewStyle().Foreground(clrCyan).Render(ev.Actor) + " "
			}
			b.WriteString(fmt.Sprintf("    %s %s%s %s\n", ts, actor, ev.Type, truncate(ev.Content, 60)))
		}
	}

	b.WriteString("\n")
	keys := []struct{ key, desc string }{
		{"esc", "back"},
		{"q", "back"},
	}
	b.WriteString(renderFooter(keys))
	return b.String()
}

func renderLifecycle(t *store.Task) string {
	stages := []struct {
		label string
		at    *time.Time
	}{
		{"created", &t.CreatedAt},
		{"started", t.InDevelopmentAt},
		{"review", t.InReviewAt},
		{"finished", t.FinishedAt},
	}

	var parts []string
	for i, s := range stages {
		var dot string
		if s.at != nil {
			dot = lipgloss.NewStyle().Foreground(clrGreen).Render("● " + s.label + " " + s.at.Local().Format("01-02"))
		} else {
			dot = dimStyle.Render("○ " + s.label)
		}
		parts = append(parts, dot)
		if i < len(stages)-1 {
			parts = append(parts, dimStyle.Render(" ── "))
		}
	}
	return strings.Join(parts, "")
}

// ════════════════════════════════════════════════
// POPUPS
// ════════════════════════════════════════════════

func (m Model) overlayPopup(bg string) string {
	var popup string

	switch m.popup {
	case popupCreate:
		popup = m.viewCreatePopup()
	case popupConfirmDelete:
		popup = m.viewConfirmDeletePopup()
	default:
		return bg
	}

	// Place popup in center of screen.
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			popup,
			lipgloss.WithWhitespaceChars(" "),
		)
	}
	return popup
}

func (m Model) viewCreatePopup() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(clrHighlight).Render("New task in " + columnLabels[m.cursorCol])
	b.WriteString(title + "\n\n")

	b.WriteString("Description:\n")
	b.WriteString(m.textInput.View() + "\n\n")

	b.WriteString("Due date:\n")
	b.WriteString(m.textInput2.View() + "\n\n")

	b.WriteString(footerDescStyle.Render("enter create • tab switch • esc cancel"))
	return m.popupBoxStyle().Render(b.String())
}

func (m Model) viewConfirmDeletePopup() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(clrRed).Render("Delete Task")
	b.WriteString(title + "\n\n")

	if t := m.selectedTask(); t != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(clrYellow).Render(truncate(t.Description, 50)) + "\n")
	}
	b.WriteString("The tasks below it move up one place.\n\n")

	b.WriteString(footerKeyStyle.Render("y") + footerDescStyle.Render(" confirm  ") +
		footerKeyStyle.Render("n") + footerDescStyle.Render(" cancel"))
	return m.popupBoxStyle().Render(b.String())
}

func (m Model) popupBoxStyle() lipgloss.Style {
	w := 60
	if m.width > 0 {
		w = m.width - 12
		if w < 42 {
			w = 42
		}
		if w > 84 {
			w = 84
		}
	}
	return popupStyle.Width(w)
}

// ════════════════════════════════════════════════
// SHARED HELPERS
// ════════════════════════════════════════════════

func renderFooter(keys []struct{ key, desc string }) string {
	var parts []string
	for _, k := range keys {
		key := footerKeyStyle.Render(k.key)
		desc := footerDescStyle.Render(k.desc)
		parts = append(parts, key+" "+desc)
	}
	return "  " + strings.Join(parts, "  ")
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
