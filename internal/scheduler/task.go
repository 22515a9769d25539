package scheduler

// TaskStatus represents the current state of a generation task.
type TaskStatus int

const (
	TaskPending    TaskStatus = iota // Waiting for dependencies
	TaskInProgress                   // Currently generating
	TaskCompleted                    // Artifacts committed
	TaskFailed                       // Generation failed
)

// String returns the lowercase name used in logs and persistence.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// Task is one unit of planned code generation, scoped to a specific set of
// output files and declared dependencies.
type Task struct {
	ID          string   // Unique identifier assigned by the planner
	Name        string   // Human-readable name
	Description string   // Instruction scope for the generator
	DependsOn   []string // Task IDs this task depends on
	Files       []string // Project-relative paths this task is responsible for
	Priority    int      // Planner ordering hint (lower runs earlier among peers)
	Status      TaskStatus
	Err         error // Failure detail, set when Status is TaskFailed
}
