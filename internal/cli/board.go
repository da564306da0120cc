package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/store"
)

// ANSI color codes.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorWhite   = "\033[37m"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the team's board",
	RunE:  runBoard,
}

type column struct {
	status store.TaskStatus
	label  string
	color  string
}

var columns = []column{
	{store.StatusActive, "ACTIVE", colorWhite},
	{store.StatusOngoing, "ONGOING", colorBlue},
	{store.StatusReview, "REVIEW", colorMagenta},
	{store.StatusFinished, "FINISHED", colorGreen},
}

func runBoard(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := newEngine(s).Board(context.Background(), flagTeam)
	if err != nil {
		return err
	}
	renderBoard(os.Stdout, b, time.Now())
	return nil
}

// renderBoard prints the lanes side by side, one card per row.
func renderBoard(w io.Writer, b board.Board, now time.Time) {
	total := 0
	for _, l := range b.Lanes {
		total += len(l.Tasks)
	}
	if total == 0 {
		fmt.Fprintf(w, "%sBoard %s is empty.%s Create a task: %slaneboard task create \"description\"%s\n",
			colorDim, b.TeamID, colorReset, colorCyan, colorReset)
		return
	}

	// Print header.
	colWidth := 28
	headerLine := ""
	sepLine := ""
	for _, c := range columns {
		count := len(b.Lane(c.status))
		header := fmt.Sprintf(" %s%s%s (%d)", c.color+colorBold, c.label, colorReset, count)
		// padding needs visible length, not byte length (ANSI codes add bytes).
		visibleLen := len(fmt.Sprintf(" %s (%d)", c.label, count))
		headerLine += header + strings.Repeat(" ", max(colWidth-visibleLen, 0))
		sepLine += strings.Repeat("─", colWidth)
	}
	fmt.Fprintln(w, headerLine)
	fmt.Fprintln(w, colorDim+sepLine+colorReset)

	maxRows := 0
	for _, c := range columns {
		maxRows = max(maxRows, len(b.Lane(c.status)))
	}

	overdue := 0
	for i := 0; i < maxRows; i++ {
		// Card line.
		line := ""
		for _, c := range columns {
			tasks := b.Lane(c.status)
			if i >= len(tasks) {
				line += strings.Repeat(" ", colWidth)
				continue
			}
			t := tasks[i]
			idStr := shortID(t.ID)
			titleStr := truncate(t.Description, colWidth-len(idStr)-3)
			card := fmt.Sprintf(" %s%s%s %s", colorYellow, idStr, colorReset, titleStr)
			visibleLen := len(fmt.Sprintf(" %s %s", idStr, titleStr))
			line += card + strings.Repeat(" ", max(colWidth-visibleLen, 0))
		}
		fmt.Fprintln(w, line)

		// Due date / assignee line.
		detailLine := ""
		for _, c := range columns {
			tasks := b.Lane(c.status)
			if i >= len(tasks) {
				detailLine += strings.Repeat(" ", colWidth)
				continue
			}
			t := tasks[i]
			visible := fmt.Sprintf("    due %s", t.DueDate.Format("01-02"))
			if len(t.Assignees) > 0 {
				visible += fmt.Sprintf(" +%d", len(t.Assignees))
			}
			detail := colorDim + visible + colorReset
			if t.Status != store.StatusFinished && t.DueDate.Before(now) {
				overdue++
				detail = colorRed + visible + colorReset
			}
			detailLine += detail + strings.Repeat(" ", max(colWidth-len(visible), 0))
		}
		fmt.Fprintln(w, detailLine)
		fmt.Fprintln(w) // spacing between cards
	}

	// Summary line.
	fmt.Fprintf(w, "%s%d tasks%s  %sv%d%s", colorBold, total, colorReset, colorDim, b.Version, colorReset)
	if n := len(b.Lane(store.StatusFinished)); n > 0 {
		fmt.Fprintf(w, "  %s✓ %d finished%s", colorGreen, n, colorReset)
	}
	if n := len(b.Lane(store.StatusOngoing)); n > 0 {
		fmt.Fprintf(w, "  %s● %d ongoing%s", colorBlue, n, colorReset)
	}
	if overdue > 0 {
		fmt.Fprintf(w, "  %s⚠ %d overdue%s", colorRed, overdue, colorReset)
	}
	fmt.Fprintln(w)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
