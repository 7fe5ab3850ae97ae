package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/taskdeck/internal/taskstore"
	"github.com/fyrsmithlabs/taskdeck/internal/workflow"
)

func TestRenderTasks(t *testing.T) {
	tasks := []taskstore.Task{
		{ID: "1", Title: "Set up repo", Status: workflow.StatusDone},
		{
			ID:           "2",
			Title:        "Build resolver",
			Status:       workflow.StatusPending,
			Dependencies: []string{"3"},
			Subtasks: []taskstore.Subtask{
				{ID: "1", Title: "types", Status: workflow.StatusInProgress},
			},
		},
		{ID: "3", Title: "Parse PRD", Status: workflow.StatusInProgress},
	}

	views := map[string]workflow.Task{
		"1": {ID: "1", Status: workflow.StatusDone},
		"2": {ID: "2", Status: workflow.StatusPending, Dependencies: []string{"3"}},
		"3": {ID: "3", Status: workflow.StatusInProgress},
	}
	lookup := func(id string) (workflow.Task, bool) {
		v, ok := views[id]
		return v, ok
	}

	out := renderTasks(tasks, lookup)

	assert.Contains(t, out, "Set up repo")
	assert.Contains(t, out, "blocked", "task 2 depends on unfinished task 3")
	assert.Contains(t, out, "2.1")
	assert.Contains(t, out, "in-progress")
}
