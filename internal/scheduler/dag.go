package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG represents a directed acyclic graph of generation tasks.
// Tasks keep their insertion order so that callers can commit results
// deterministically regardless of which order independent tasks finished in.
type DAG struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order of task IDs
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks: make(map[string]*Task),
	}
}

// AddTask adds a task to the DAG. Returns an error if the task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)
	return nil
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs or an error if a cycle is detected.
// Also verifies all task IDs in DependsOn exist in the DAG.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// First, verify all dependencies exist
	for _, taskID := range d.order {
		for _, depID := range d.tasks[taskID].DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Task with no dependencies - edge from nil ensures it's included
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				// Edge (depID, taskID) means depID must come before taskID
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Verify all tasks are in the sorted result (catches disconnected components)
	if len(order) != len(d.tasks) {
		missing := []string{}
		foundMap := make(map[string]bool)
		for _, id := range order {
			foundMap[id] = true
		}
		for _, taskID := range d.order {
			if !foundMap[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Eligible returns all pending tasks whose dependencies have all completed.
// The result preserves insertion order so waves are reproducible.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}

	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}

		allCompleted := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.Status != TaskCompleted {
				allCompleted = false
				break
			}
		}

		if allCompleted {
			eligible = append(eligible, cloneTask(task))
		}
	}

	return eligible
}

// MarkInProgress moves a task from Pending to InProgress.
// Status transitions are forward-only; any other transition is an error.
func (d *DAG) MarkInProgress(taskID string) error {
	return d.transition(taskID, TaskPending, TaskInProgress, nil)
}

// MarkCompleted moves a task from InProgress to Completed.
func (d *DAG) MarkCompleted(taskID string) error {
	return d.transition(taskID, TaskInProgress, TaskCompleted, nil)
}

// MarkFailed moves a task from InProgress to Failed and records the cause.
func (d *DAG) MarkFailed(taskID string, err error) error {
	return d.transition(taskID, TaskInProgress, TaskFailed, err)
}

// transition applies a single forward status transition under lock.
func (d *DAG) transition(taskID string, from, to TaskStatus, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != from {
		return fmt.Errorf("task %q cannot move %s -> %s", taskID, task.Status, to)
	}

	task.Status = to
	task.Err = cause
	return nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.tasks))
	for _, taskID := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[taskID]))
	}
	return tasks
}

// Counts returns the number of tasks per status, for progress reporting.
func (d *DAG) Counts() (pending, inProgress, completed, failed int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, task := range d.tasks {
		switch task.Status {
		case TaskPending:
			pending++
		case TaskInProgress:
			inProgress++
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		}
	}
	return
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Files != nil {
		cp.Files = append([]string(nil), task.Files...)
	}
	return &cp
}
