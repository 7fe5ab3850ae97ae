// Package taskstore persists tasks and subtasks in a JSON file and
// implements the workflow store collaborator. The file format is internal
// to this package; callers only see the workflow view.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskdeck/internal/workflow"
)

// ErrTaskNotFound indicates the requested task or subtask does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Task is the persisted form of a task.
type Task struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	Status       workflow.Status `json:"status"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Subtasks     []Subtask       `json:"subtasks,omitempty"`
	Notes        []string        `json:"notes,omitempty"`
}

// Subtask is the persisted form of a subtask.
type Subtask struct {
	ID     string          `json:"id"`
	Title  string          `json:"title,omitempty"`
	Status workflow.Status `json:"status"`
	Notes  []string        `json:"notes,omitempty"`
}

// taskFile is the on-disk document.
type taskFile struct {
	Tasks []Task `json:"tasks"`
}

// Store is a file-backed task store. All methods are safe for concurrent
// use; every mutation is written through to disk atomically.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	tasks []Task
}

// Open loads the store at path, starting empty when the file does not exist
// yet.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// GetTask returns the workflow view of a task.
func (s *Store) GetTask(_ context.Context, id string) (workflow.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, _, err := s.findLocked(id)
	if err != nil {
		return workflow.Task{}, err
	}
	return toWorkflowTask(*task), nil
}

// SetTaskStatus persists a status for a task ID or a "parent.sub" key.
func (s *Store) SetTaskStatus(_ context.Context, id string, status workflow.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q for %s", status, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, subtaskID := workflow.SplitEntityID(id)
	task, _, err := s.findLocked(taskID)
	if err != nil {
		return err
	}
	if subtaskID == "" {
		task.Status = status
		return s.persistLocked()
	}
	for i := range task.Subtasks {
		if task.Subtasks[i].ID == subtaskID {
			task.Subtasks[i].Status = status
			return s.persistLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// UpdateTask appends a note to a task.
func (s *Store) UpdateTask(_ context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, _, err := s.findLocked(id)
	if err != nil {
		return err
	}
	task.Notes = append(task.Notes, note)
	return s.persistLocked()
}

// UpdateSubtask appends a note to a subtask addressed as "parent.sub".
func (s *Store) UpdateSubtask(_ context.Context, id string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, subtaskID := workflow.SplitEntityID(id)
	if subtaskID == "" {
		return fmt.Errorf("%s is not a subtask key", id)
	}
	task, _, err := s.findLocked(taskID)
	if err != nil {
		return err
	}
	for i := range task.Subtasks {
		if task.Subtasks[i].ID == subtaskID {
			task.Subtasks[i].Notes = append(task.Subtasks[i].Notes, note)
			return s.persistLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// ReloadTasks re-reads the backing file, discarding cached state.
func (s *Store) ReloadTasks(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Put inserts or replaces a task and persists the change.
func (s *Store) Put(task Task) error {
	if task.ID == "" {
		return errors.New("task ID is required")
	}
	if task.Status == "" {
		task.Status = workflow.StatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			return s.persistLocked()
		}
	}
	s.tasks = append(s.tasks, task)
	return s.persistLocked()
}

// Tasks returns a copy of all tasks in file order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Lookup returns the workflow view of a task without an error, for
// dependency checks.
func (s *Store) Lookup(id string) (workflow.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, _, err := s.findLocked(id)
	if err != nil {
		return workflow.Task{}, false
	}
	return toWorkflowTask(*task), true
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.tasks = nil
			return nil
		}
		return fmt.Errorf("read task file %s: %w", s.path, err)
	}
	var doc taskFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse task file %s: %w", s.path, err)
	}
	for i := range doc.Tasks {
		if doc.Tasks[i].Status == "" {
			doc.Tasks[i].Status = workflow.StatusPending
		}
		for j := range doc.Tasks[i].Subtasks {
			if doc.Tasks[i].Subtasks[j].Status == "" {
				doc.Tasks[i].Subtasks[j].Status = workflow.StatusPending
			}
		}
	}
	s.tasks = doc.Tasks
	return nil
}

// persistLocked writes the task file atomically: temp file in the same
// directory, then rename.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(taskFile{Tasks: s.tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create task dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("create temp task file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp task file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp task file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace task file %s: %w", s.path, err)
	}
	s.logger.Debug("task file written",
		zap.String("path", s.path),
		zap.Int("tasks", len(s.tasks)))
	return nil
}

func (s *Store) findLocked(id string) (*Task, int, error) {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return &s.tasks[i], i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

func toWorkflowTask(t Task) workflow.Task {
	out := workflow.Task{
		ID:           t.ID,
		Status:       t.Status,
		Dependencies: append([]string(nil), t.Dependencies...),
	}
	for _, st := range t.Subtasks {
		out.Subtasks = append(out.Subtasks, workflow.Subtask{
			ID:       st.ID,
			ParentID: t.ID,
			Status:   st.Status,
		})
	}
	return out
}
