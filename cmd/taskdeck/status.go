package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskdeck/internal/taskstore"
	"github.com/fyrsmithlabs/taskdeck/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List tasks with their statuses",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var cycleCmd = &cobra.Command{
	Use:   "cycle <id>",
	Short: "Advance a task or subtask to the next status in cycle order",
	Long: `Advance a task (or subtask addressed as parent.sub) to the next status:

  pending → in-progress → review → done → deferred → cancelled → pending`,
	Args: cobra.ExactArgs(1),
	RunE: runCycle,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	tasks := a.store.Tasks()
	if len(tasks) == 0 {
		cmd.Println("no tasks")
		return nil
	}
	cmd.Print(renderTasks(tasks, a.store.Lookup))
	return nil
}

func runCycle(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	machine := workflow.NewStateMachine(a.store, a.logger)
	next, err := machine.CycleStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("%s → %s\n", args[0], next)
	return nil
}

// renderTasks formats the task table, marking dependency-blocked tasks.
func renderTasks(tasks []taskstore.Task, lookup func(id string) (workflow.Task, bool)) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-12s %-8s %s\n", "id", "status", "attrs", "title")
	for _, task := range tasks {
		attrs := ""
		if view, ok := lookup(task.ID); ok && workflow.Blocked(view, lookup) {
			attrs = "blocked"
		}
		fmt.Fprintf(&b, "%-10s %-12s %-8s %s\n", task.ID, task.Status, attrs, task.Title)
		for _, st := range task.Subtasks {
			fmt.Fprintf(&b, "%-10s %-12s %-8s %s\n", "  "+task.ID+"."+st.ID, st.Status, "", st.Title)
		}
	}
	return b.String()
}
