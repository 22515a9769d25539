package repair

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sitesmith/sitesmith/internal/backend"
	"github.com/sitesmith/sitesmith/internal/generator"
	"github.com/sitesmith/sitesmith/internal/project"
)

const maxErrorExcerpt = 4000

const fixSystemPrompt = `You repair Next.js App Router build failures. You receive the build
error and the implicated project files, and you respond with corrected
file artifacts as JSON only. Change as little as possible.

` + generator.DirectiveRules

// Fixer asks the backend for a targeted patch when no deterministic fix
// matches a build failure. Responses are parsed and enforced exactly
// like generation output.
type Fixer struct {
	backend backend.Backend
}

// NewFixer creates a Fixer on the given backend.
func NewFixer(b backend.Backend) *Fixer {
	return &Fixer{backend: b}
}

// Fix requests corrected artifacts for the files implicated by the
// build error. Artifacts may rewrite implicated files or create new
// ones; touching any other existing file is rejected, since a repair
// must never silently rewrite working code.
func (f *Fixer) Fix(ctx context.Context, report BuildReport, snapshot map[string]string) ([]project.Artifact, error) {
	implicated := implicatedFiles(report.Stderr, snapshot)

	resp, err := f.backend.Complete(ctx, backend.Request{
		System: fixSystemPrompt,
		Prompt: buildFixPrompt(report, implicated, snapshot),
		Schema: generator.ArtifactSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("fix request failed: %w", err)
	}

	artifacts, err := generator.ParseArtifacts(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("fix response is not an artifact list: %w", err)
	}

	allowed := make(map[string]bool, len(implicated))
	for _, p := range implicated {
		allowed[p] = true
	}
	for _, a := range artifacts {
		if _, exists := snapshot[a.Path]; exists && !allowed[a.Path] {
			return nil, fmt.Errorf("fix artifact %q touches a file the build error does not implicate", a.Path)
		}
	}

	return generator.EnforceDirectives(artifacts), nil
}

// implicatedFiles returns the project files the build error mentions,
// sorted for deterministic prompts.
func implicatedFiles(stderr string, snapshot map[string]string) []string {
	var files []string
	for p := range snapshot {
		if strings.Contains(stderr, p) {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files
}

func buildFixPrompt(report BuildReport, implicated []string, snapshot map[string]string) string {
	var b strings.Builder

	b.WriteString("# Build failure\n\n")
	fmt.Fprintf(&b, "The build exited with code %d.\n\n```\n%s\n```\n\n", report.ExitCode, errorExcerpt(report))

	if len(implicated) > 0 {
		b.WriteString("# Implicated files\n\n")
		for _, p := range implicated {
			fmt.Fprintf(&b, "## %s\n\n```\n%s\n```\n\n", p, snapshot[p])
		}
	} else {
		b.WriteString("# Project files\n\n")
		paths := make([]string, 0, len(snapshot))
		for p := range snapshot {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	b.WriteString("Return corrected artifacts for the implicated files. Create a new file only when the error shows a module that does not exist yet.\n")
	return b.String()
}

// errorExcerpt keeps the tail of the build output, where npm and Next
// print the actual failure.
func errorExcerpt(report BuildReport) string {
	text := strings.TrimSpace(report.Stderr)
	if text == "" {
		text = strings.TrimSpace(report.Stdout)
	}
	if len(text) > maxErrorExcerpt {
		text = "..." + text[len(text)-maxErrorExcerpt:]
	}
	return text
}
