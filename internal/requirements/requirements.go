// Package requirements turns a free-text feature request into the
// structured requirements document consumed by the planner and
// generator prompts. Compilation is a pure text transformation; no
// backend call is involved.
package requirements

import (
	"fmt"
	"strings"
)

// Document is the structured form of a feature request. It is produced
// once per synthesis run and immutable afterward.
type Document struct {
	Overview    string
	Features    []string
	Constraints []string
}

// stackConstraints are the fixed technical constraints every generated
// project is held to, independent of requirement content.
var stackConstraints = []string{
	"Next.js App Router project layout: routes live under app/, shared code under components/, hooks/, lib/, and context/.",
	"TypeScript everywhere: .tsx for files containing markup, .ts otherwise.",
	"Tailwind CSS utility classes for all styling; no separate CSS modules.",
	`Files using React state, effects, or event handlers start with a "use client" directive on the first line.`,
	"Pages and components are default exports; hooks and utilities are named exports.",
	"A React context file exports three named bindings: the context, an accessor hook, and a provider component.",
}

// Compile shapes a raw requirement string into a Document. Extra
// constraints (from configuration) are appended after the fixed stack
// constraints. Compilation is deterministic: the same input always
// yields the same document.
func Compile(requirement string, extraConstraints []string) (*Document, error) {
	trimmed := strings.TrimSpace(requirement)
	if trimmed == "" {
		return nil, fmt.Errorf("requirement is empty")
	}

	doc := &Document{
		Overview: trimmed,
		Features: splitFeatures(trimmed),
	}

	doc.Constraints = append(doc.Constraints, stackConstraints...)
	for _, c := range extraConstraints {
		if c = strings.TrimSpace(c); c != "" {
			doc.Constraints = append(doc.Constraints, c)
		}
	}
	return doc, nil
}

// splitFeatures derives the feature list from the requirement text.
// Bullet lines are taken verbatim; prose is split on sentence
// boundaries. A requirement that yields nothing becomes a single
// feature covering the whole text.
func splitFeatures(text string) []string {
	var features []string
	var prose []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := stripBullet(line); ok {
			features = append(features, item)
			continue
		}
		prose = append(prose, line)
	}

	for _, sentence := range splitSentences(strings.Join(prose, " ")) {
		features = append(features, sentence)
	}

	if len(features) == 0 {
		features = []string{text}
	}
	return dedupe(features)
}

// stripBullet recognizes "- item", "* item", and "1. item" list forms.
func stripBullet(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	rest := strings.TrimLeft(line, "0123456789")
	if rest != line && (strings.HasPrefix(rest, ". ") || strings.HasPrefix(rest, ") ")) {
		return strings.TrimSpace(rest[2:]), true
	}
	return "", false
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	for _, r := range text {
		switch r {
		case '.', '!', '?', ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return sentences
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// Render produces the canonical markdown representation embedded in
// planner and generator prompts: Overview, Features, Constraints, in
// that order.
func (d *Document) Render() string {
	var b strings.Builder
	b.WriteString("## Overview\n\n")
	b.WriteString(d.Overview)
	b.WriteString("\n\n## Features\n\n")
	for _, f := range d.Features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n## Constraints\n\n")
	for _, c := range d.Constraints {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}
