package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/config"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
)

const dateLayout = "2006-01-02"

var (
	taskStatus    string
	taskDue       string
	taskAssignees []string
	taskDesc      string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create or manage tasks",
	Long:  "Create a new task or manage existing ones on the board.",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Create a new task at the bottom of a lane",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List tasks of the team, optionally filtered by status",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit a task's description, due date or assignees",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskEdit,
}

var taskMoveCmd = &cobra.Command{
	Use:   "move [id] [status] [index]",
	Short: "Move a task to a lane and position",
	Long: "Moves a task to the given lane. Without an index the task goes to the\n" +
		"bottom of the lane. Positions start at 0.",
	Args: cobra.RangeArgs(2, 3),
	RunE: runTaskMove,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskStatus, "status", "s", string(store.StatusActive), "Lane: active, ongoing, review, finished")
	taskCreateCmd.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD, default: a week from today)")
	taskCreateCmd.Flags().StringSliceVarP(&taskAssignees, "assign", "a", nil, "Member ids to assign")

	taskEditCmd.Flags().StringVarP(&taskDesc, "desc", "d", "", "New description")
	taskEditCmd.Flags().StringVar(&taskDue, "due", "", "New due date (YYYY-MM-DD)")
	taskEditCmd.Flags().StringSliceVarP(&taskAssignees, "assign", "a", nil, "Replace assignees (pass \"\" to clear)")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskMoveCmd)
	taskCmd.AddCommand(taskDeleteCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := parseStatus(taskStatus)
	if err != nil {
		return err
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	due := today.AddDate(0, 0, 7)
	if taskDue != "" {
		if due, err = time.Parse(dateLayout, taskDue); err != nil {
			return fmt.Errorf("invalid due date %q: %w", taskDue, err)
		}
	}

	ctx := commandContext()
	res, err := newEngine(s).Create(ctx, board.NewTask{
		TeamID:      flagTeam,
		Status:      status,
		Assignees:   taskAssignees,
		Date:        today,
		DueDate:     due,
		Description: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	if err := broadcast(ctx, cfg, notify.EventCreate, res); err != nil {
		return err
	}

	t := res.Tasks[0]
	fmt.Printf("Created task %s in %s#%d: %s\n", shortID(t.ID), t.Status, t.Index, t.Description)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var filter store.TaskStatus
	if len(args) > 0 {
		if filter, err = parseStatus(args[0]); err != nil {
			return err
		}
	}

	tasks, _, err := s.ListTeam(context.Background(), flagTeam)
	if err != nil {
		return err
	}

	n := 0
	for _, t := range tasks {
		if filter != "" && t.Status != filter {
			continue
		}
		n++
		assignees := ""
		if len(t.Assignees) > 0 {
			assignees = fmt.Sprintf(" [%s]", strings.Join(t.Assignees, ", "))
		}
		fmt.Printf("%-8s %-9s %3d  due %s  %s%s\n",
			shortID(t.ID), t.Status, t.Index, t.DueDate.Format(dateLayout), t.Description, assignees)
	}
	if n == 0 {
		fmt.Println("No tasks found.")
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	id, err := resolveTaskID(ctx, s, args[0])
	if err != nil {
		return err
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("  Team:     %s\n", task.TeamID)
	fmt.Printf("  Lane:     %s (position %d)\n", task.Status, task.Index)
	fmt.Printf("  Desc:     %s\n", task.Description)
	fmt.Printf("  Dates:    %s -> %s\n", task.Date.Format(dateLayout), task.DueDate.Format(dateLayout))
	if len(task.Assignees) > 0 {
		fmt.Printf("  Assigned: %s\n", strings.Join(task.Assignees, ", "))
	}
	fmt.Printf("  Created:  %s\n", task.CreatedAt.Format("2006-01-02 15:04"))
	printStamp("Started", task.InDevelopmentAt)
	printStamp("Review", task.InReviewAt)
	printStamp("Finished", task.FinishedAt)

	events, err := s.GetEvents(ctx, id)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Println("\n  Events:")
		for _, e := range events {
			fmt.Printf("    %s %s%s: %s\n", e.Timestamp.Format("01-02 15:04"), actorLabel(e.Actor), e.Type, e.Content)
		}
	}
	return nil
}

func printStamp(label string, at *time.Time) {
	if at == nil {
		return
	}
	fmt.Printf("  %-9s %s\n", label+":", at.Format("2006-01-02 15:04"))
}

func runTaskEdit(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := commandContext()
	id, err := resolveTaskID(ctx, s, args[0])
	if err != nil {
		return err
	}

	var ed board.Edit
	if cmd.Flags().Changed("desc") {
		ed.Description = &taskDesc
	}
	if cmd.Flags().Changed("due") {
		due, err := time.Parse(dateLayout, taskDue)
		if err != nil {
			return fmt.Errorf("invalid due date %q: %w", taskDue, err)
		}
		ed.DueDate = &due
	}
	if cmd.Flags().Changed("assign") {
		ed.Assignees = append([]string{}, taskAssignees...)
	}

	res, err := newEngine(s).Edit(ctx, id, ed)
	if err != nil {
		return err
	}
	if err := broadcast(ctx, cfg, notify.EventUpdate, res); err != nil {
		return err
	}
	fmt.Printf("Updated task %s\n", shortID(id))
	return nil
}

func runTaskMove(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := commandContext()
	id, err := resolveTaskID(ctx, s, args[0])
	if err != nil {
		return err
	}
	status, err := parseStatus(args[1])
	if err != nil {
		return err
	}
	// Past the tail means append.
	index := math.MaxInt
	if len(args) == 3 {
		if index, err = strconv.Atoi(args[2]); err != nil || index < 0 {
			return fmt.Errorf("invalid position %q", args[2])
		}
	}

	engine := newEngine(s)
	res, err := board.Retry(ctx, func(ctx context.Context) (board.ChangedTasks, error) {
		return engine.Move(ctx, id, status, index)
	})
	if err != nil {
		return err
	}
	if res.Empty() {
		fmt.Printf("Task %s is already there\n", shortID(id))
		return nil
	}
	if err := broadcast(ctx, cfg, notify.EventUpdate, res); err != nil {
		return err
	}

	moved := res.Tasks[0]
	fmt.Printf("Moved task %s to %s#%d (%d tasks repositioned)\n",
		shortID(id), moved.Status, moved.Index, len(res.Tasks)-1)
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := commandContext()
	id, err := resolveTaskID(ctx, s, args[0])
	if err != nil {
		return err
	}
	res, err := newEngine(s).Delete(ctx, id)
	if err != nil {
		return err
	}
	if err := broadcast(ctx, cfg, notify.EventDelete, res); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", shortID(id))
	return nil
}

// broadcast hands a committed change set to the configured fanout.
func broadcast(ctx context.Context, cfg *config.Config, eventType string, res board.ChangedTasks) error {
	fanout, cleanup, err := newFanout(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	fanout.Dispatch(ctx, eventType, res)
	return nil
}

func actorLabel(a string) string {
	if a == "" {
		return ""
	}
	return "[" + a + "] "
}
