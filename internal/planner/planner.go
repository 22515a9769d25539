// Package planner decomposes a requirements document into the ordered,
// dependency-respecting task list that drives generation. Planning is
// delegated to the generative backend; the response is parsed strictly
// and checked against structural rules before any task runs.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/extract"
	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/requirements"
	"github.com/sitesmith/sitesmith/internal/scheduler"
)

// PlanningError is a fatal, non-retried failure of the planning stage:
// the run produces no project when planning fails.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// Planner asks the backend for a structured task breakdown.
type Planner struct {
	backend backend.Backend
}

// New creates a Planner on the given backend.
func New(b backend.Backend) *Planner {
	return &Planner{backend: b}
}

// taskPayload is the JSON schema the backend is asked to produce.
type taskPayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	Files        []string `json:"files"`
	Priority     int      `json:"priority"`
}

const planSystemPrompt = `You are the planning stage of a code synthesis pipeline that builds
Next.js App Router projects in TypeScript with Tailwind CSS. You break a
requirements document into a short list of generation tasks. You respond
with JSON only.`

const planSchemaHint = `Respond with a JSON array of task objects, nothing else:
[
  {
    "id": "t1",
    "name": "short name",
    "description": "what to generate and how it fits the app",
    "dependencies": [],
    "files": ["context/CartContext.tsx"],
    "priority": 1
  }
]
Rules:
- 2 to 6 tasks, ordered so that every dependency appears earlier in the array.
- "dependencies" lists ids of earlier tasks whose files this task imports.
- Every file path is project-relative and claimed by exactly one task across the whole plan.
- Shared state, hooks, and utility files come before the components that use them; pages wiring everything together come last.`

// Plan produces the validated task list for one run. Every failure mode
// (backend error, unparseable response, schema violation) surfaces as a
// *PlanningError; there is no retry at this stage.
func (p *Planner) Plan(ctx context.Context, doc *requirements.Document) ([]*scheduler.Task, error) {
	resp, err := p.backend.Complete(ctx, backend.Request{
		System: planSystemPrompt,
		Prompt: buildPlanPrompt(doc),
		Schema: planSchemaHint,
	})
	if err != nil {
		return nil, &PlanningError{Reason: "backend request failed", Err: err}
	}

	payloads, err := parsePlan(resp.Content)
	if err != nil {
		return nil, &PlanningError{Reason: "response is not a task breakdown", Err: err}
	}

	tasks, err := buildTasks(payloads)
	if err != nil {
		return nil, &PlanningError{Reason: "task breakdown violates plan rules", Err: err}
	}
	return tasks, nil
}

func buildPlanPrompt(doc *requirements.Document) string {
	var b strings.Builder
	b.WriteString("Plan the generation tasks for this feature request.\n\n")
	b.WriteString(doc.Render())
	b.WriteString("\nThe project starts from a fixed Next.js template (app/layout.tsx, app/page.tsx, app/globals.css, configs). Tasks may overwrite app/page.tsx and add new files; they never touch config files.")
	return b.String()
}

func parsePlan(response string) ([]taskPayload, error) {
	raw, err := extract.JSON(response)
	if err != nil {
		return nil, err
	}
	var payloads []taskPayload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		return nil, fmt.Errorf("unmarshal task array: %w", err)
	}
	return payloads, nil
}

// buildTasks converts payloads into scheduler tasks, enforcing the plan
// rules: non-empty list, unique ids, every file claimed exactly once,
// dependencies referencing only earlier-declared ids, and an acyclic
// graph overall.
func buildTasks(payloads []taskPayload) ([]*scheduler.Task, error) {
	if len(payloads) == 0 {
		return nil, fmt.Errorf("plan contains no tasks")
	}

	declared := make(map[string]bool, len(payloads))
	claimed := make(map[string]string)
	tasks := make([]*scheduler.Task, 0, len(payloads))
	dag := scheduler.NewDAG()

	for i, payload := range payloads {
		id := strings.TrimSpace(payload.ID)
		if id == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}
		if declared[id] {
			return nil, fmt.Errorf("duplicate task id %q", id)
		}
		if len(payload.Files) == 0 {
			return nil, fmt.Errorf("task %q claims no files", id)
		}

		files := make([]string, 0, len(payload.Files))
		for _, f := range payload.Files {
			normalized, err := project.NormalizePath(f)
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", id, err)
			}
			if owner, taken := claimed[normalized]; taken {
				return nil, fmt.Errorf("file %q claimed by both %q and %q", normalized, owner, id)
			}
			claimed[normalized] = id
			files = append(files, normalized)
		}

		for _, dep := range payload.Dependencies {
			if !declared[dep] {
				return nil, fmt.Errorf("task %q depends on %q, which is not declared earlier", id, dep)
			}
		}
		declared[id] = true

		task := &scheduler.Task{
			ID:          id,
			Name:        payload.Name,
			Description: payload.Description,
			DependsOn:   payload.Dependencies,
			Files:       files,
			Priority:    payload.Priority,
		}
		if err := dag.AddTask(task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	if _, err := dag.Validate(); err != nil {
		return nil, err
	}
	return tasks, nil
}
