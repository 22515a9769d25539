// Package generator produces the file artifacts for one planned task:
// it prompts the backend with the task, the requirements, and a digest
// of the committed project state, parses the structured response, and
// deterministically enforces the client-directive rules before any
// artifact is accepted.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/extract"
	"github.com/sitesmith/sitesmith/internal/project"
	"github.com/sitesmith/sitesmith/internal/requirements"
	"github.com/sitesmith/sitesmith/internal/scan"
	"github.com/sitesmith/sitesmith/internal/scheduler"
)

// GenerationError is a fatal failure of one task's generation step:
// a backend failure, an unparseable response, or artifacts that leave
// the task's claimed file set. The driver aborts the run on it.
type GenerationError struct {
	TaskID string
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed for task %s: %s: %v", e.TaskID, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed for task %s: %s", e.TaskID, e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DirectiveRules is the structural contract stated to the backend for
// every generation and repair prompt. The enforcement in this package
// applies the marker rules mechanically afterwards; the export-shape
// rules are verified by the validator where references exist.
const DirectiveRules = `Structural rules for every generated file:
- A file using React state, effects, event handlers, or browser APIs starts with "use client"; on its first line. Files without interactive capability must not carry the directive.
- A page or component file exports its primary unit as the default export.
- Hooks, utilities, and shared-state containers are named exports.
- A React context file exports exactly three named bindings: the context object, an accessor hook, and a provider component.
- Files that only declare types carry no directive.
- Imports inside the project use relative paths or the "@/" root alias.`

const generateSystemPrompt = `You are the code generation stage of a synthesis pipeline building a
Next.js App Router project in TypeScript with Tailwind CSS. You write
complete, build-ready files. You respond with JSON only.

` + DirectiveRules

// ArtifactSchema is the structured-output hint for any response that
// must parse as an artifact list; the repair fixer reuses it verbatim.
const ArtifactSchema = `Respond with a JSON array of file artifacts, nothing else:
[
  {"path": "components/Counter.tsx", "action": "create", "content": "... full file content ..."}
]
"action" is "create", "update", or "delete". Cover every file the task
claims, and no others. Content is the complete file, never a fragment.`

// Generator turns one task into accepted artifacts.
type Generator struct {
	backend backend.Backend
}

// New creates a Generator on the given backend.
func New(b backend.Backend) *Generator {
	return &Generator{backend: b}
}

type artifactPayload struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Content string `json:"content"`
}

// Generate runs one task against the backend and returns its enforced
// artifacts. The snapshot is the committed project state; it is read
// only. Every failure surfaces as a *GenerationError carrying the task
// id; generation is never retried here.
func (g *Generator) Generate(ctx context.Context, doc *requirements.Document, task *scheduler.Task, snapshot map[string]string) ([]project.Artifact, error) {
	resp, err := g.backend.Complete(ctx, backend.Request{
		System: generateSystemPrompt,
		Prompt: buildTaskPrompt(doc, task, snapshot),
		Schema: ArtifactSchema,
	})
	if err != nil {
		return nil, &GenerationError{TaskID: task.ID, Reason: "backend request failed", Err: err}
	}

	artifacts, err := ParseArtifacts(resp.Content)
	if err != nil {
		return nil, &GenerationError{TaskID: task.ID, Reason: "response is not an artifact list", Err: err}
	}

	if err := checkScope(task, artifacts); err != nil {
		return nil, &GenerationError{TaskID: task.ID, Reason: "artifacts leave the task's file set", Err: err}
	}

	return EnforceDirectives(artifacts), nil
}

// ParseArtifacts parses a backend response into artifacts. The JSON
// artifact array is the primary form; fenced code blocks with path
// hints are the fallback for models that ignore the schema.
func ParseArtifacts(response string) ([]project.Artifact, error) {
	if raw, err := extract.JSON(response); err == nil {
		var payloads []artifactPayload
		if err := json.Unmarshal([]byte(raw), &payloads); err == nil && len(payloads) > 0 {
			return fromPayloads(payloads)
		}
	}

	var artifacts []project.Artifact
	for _, block := range extract.CodeBlocks(response) {
		if block.Path == "" {
			continue
		}
		path, err := project.NormalizePath(block.Path)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, project.Artifact{
			Path:    path,
			Action:  project.Create,
			Content: block.Content,
		})
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("response carries neither an artifact array nor pathed code blocks")
	}
	return artifacts, nil
}

func fromPayloads(payloads []artifactPayload) ([]project.Artifact, error) {
	artifacts := make([]project.Artifact, 0, len(payloads))
	for _, p := range payloads {
		path, err := project.NormalizePath(p.Path)
		if err != nil {
			return nil, err
		}
		action, err := project.ParseAction(p.Action)
		if err != nil {
			return nil, err
		}
		if action != project.Delete && strings.TrimSpace(p.Content) == "" {
			return nil, fmt.Errorf("artifact %q has empty content", path)
		}
		artifacts = append(artifacts, project.Artifact{Path: path, Action: action, Content: p.Content})
	}
	return artifacts, nil
}

// checkScope enforces the task contract in both directions: no artifact
// outside the claimed set, and every claimed file covered.
func checkScope(task *scheduler.Task, artifacts []project.Artifact) error {
	claimed := make(map[string]bool, len(task.Files))
	for _, f := range task.Files {
		claimed[f] = true
	}

	covered := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if !claimed[a.Path] {
			return fmt.Errorf("artifact %q is not claimed by the task", a.Path)
		}
		covered[a.Path] = true
	}
	for _, f := range task.Files {
		if !covered[f] {
			return fmt.Errorf("claimed file %q has no artifact", f)
		}
	}
	return nil
}

// EnforceDirectives applies the client-marker rules mechanically:
// interactive files get the directive inserted, non-interactive and
// type-only files get it stripped. The operation is idempotent.
func EnforceDirectives(artifacts []project.Artifact) []project.Artifact {
	out := make([]project.Artifact, len(artifacts))
	for i, a := range artifacts {
		out[i] = a
		if a.Action == project.Delete || !scan.IsSource(a.Path) {
			continue
		}
		summary := scan.File(a.Path, a.Content)
		if summary.Interactive {
			out[i].Content = scan.EnsureDirective(a.Content)
		} else {
			out[i].Content = scan.StripDirective(a.Content)
		}
	}
	return out
}

// buildTaskPrompt assembles the user prompt: the requirements, the
// task, and a digest of the committed project state so imports line up
// with files generated by earlier tasks.
func buildTaskPrompt(doc *requirements.Document, task *scheduler.Task, snapshot map[string]string) string {
	var b strings.Builder

	b.WriteString("# Requirements\n\n")
	b.WriteString(doc.Render())

	fmt.Fprintf(&b, "\n# Task %s: %s\n\n%s\n\nGenerate these files:\n", task.ID, task.Name, task.Description)
	for _, f := range task.Files {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	b.WriteString("\n# Project state\n\n")
	writeStateDigest(&b, task, snapshot)

	return b.String()
}

// writeStateDigest lists every committed path, the export surface of
// each source file, and the current content of the task's own files
// when they already exist (update case).
func writeStateDigest(b *strings.Builder, task *scheduler.Task, snapshot map[string]string) {
	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	b.WriteString("Files already in the project:\n")
	for _, p := range paths {
		fmt.Fprintf(b, "- %s%s\n", p, exportsNote(p, snapshot[p]))
	}

	for _, f := range task.Files {
		if content, ok := snapshot[f]; ok {
			fmt.Fprintf(b, "\nCurrent content of %s:\n```\n%s\n```\n", f, content)
		}
	}
}

func exportsNote(path, content string) string {
	if !scan.IsSource(path) {
		return ""
	}
	summary := scan.File(path, content)

	var parts []string
	if summary.HasDefaultExport {
		name := summary.DefaultName
		if name == "" {
			name = "default"
		}
		parts = append(parts, "default export "+name)
	}
	if len(summary.NamedExports) > 0 {
		parts = append(parts, "named: "+strings.Join(summary.NamedExports, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}
