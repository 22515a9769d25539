package events

import (
	"time"
)

// Event is the base interface for all pipeline events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicPipeline = "pipeline"
	TopicTask     = "task"
	TopicRepair   = "repair"
)

// Event type constants
const (
	EventTypePhaseChanged     = "pipeline.phase"
	EventTypePlanReady        = "pipeline.plan"
	EventTypeValidationDone   = "pipeline.validation"
	EventTypePipelineDone     = "pipeline.done"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeRepairTransition = "repair.transition"
)

// Pipeline phase names, in run order.
const (
	PhasePlanning   = "planning"
	PhaseGenerating = "generating"
	PhaseValidating = "validating"
	PhaseBuilding   = "building"
	PhaseAssembling = "assembling"
)

// PhaseChangedEvent is published when the pipeline enters a new phase.
type PhaseChangedEvent struct {
	RunID     string
	Phase     string
	Timestamp time.Time
}

func (e PhaseChangedEvent) EventType() string { return EventTypePhaseChanged }
func (e PhaseChangedEvent) TaskID() string    { return "" }

// PlanReadyEvent is published once the planner produced a task list.
type PlanReadyEvent struct {
	RunID     string
	TaskCount int
	TaskNames []string
	Timestamp time.Time
}

func (e PlanReadyEvent) EventType() string { return EventTypePlanReady }
func (e PlanReadyEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when a generation task begins.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Files     []string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task's artifacts are committed.
type TaskCompletedEvent struct {
	ID        string
	Artifacts int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when generation fails for a task.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// ValidationDoneEvent is published after the import/export check.
type ValidationDoneEvent struct {
	RunID     string
	Valid     bool
	Errors    int
	Timestamp time.Time
}

func (e ValidationDoneEvent) EventType() string { return EventTypeValidationDone }
func (e ValidationDoneEvent) TaskID() string    { return "" }

// RepairTransitionEvent mirrors one build-repair state change. States
// are carried as strings so consumers don't need the repair package.
type RepairTransitionEvent struct {
	RunID     string
	From      string
	To        string
	Attempt   int
	Detail    string
	Timestamp time.Time
}

func (e RepairTransitionEvent) EventType() string { return EventTypeRepairTransition }
func (e RepairTransitionEvent) TaskID() string    { return "" }

// PipelineDoneEvent is the final event of a run.
type PipelineDoneEvent struct {
	RunID     string
	Success   bool
	Files     int
	Feedback  string
	Duration  time.Duration
	Timestamp time.Time
}

func (e PipelineDoneEvent) EventType() string { return EventTypePipelineDone }
func (e PipelineDoneEvent) TaskID() string    { return "" }
