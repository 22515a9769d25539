package scan

import (
	"regexp"
	"strings"
)

// Directive is the client-execution marker exactly as it is written
// into enforced files.
const Directive = `"use client";`

var reDirectiveLine = regexp.MustCompile(`^\s*['"]use client['"];?\s*$`)

// HasDirective reports whether the first meaningful line of the file is
// a client-execution marker. Blank lines and comments before it are
// allowed, matching the framework's own tolerance.
func HasDirective(content string) bool {
	idx := directiveLineIndex(content)
	return idx >= 0
}

// EnsureDirective returns the content with a client-execution marker as
// its first line, inserting one when absent. Already-marked content is
// returned unchanged.
func EnsureDirective(content string) string {
	if HasDirective(content) {
		return content
	}
	return Directive + "\n\n" + content
}

// StripDirective removes the leading client-execution marker when
// present, along with the blank line it leaves behind.
func StripDirective(content string) string {
	idx := directiveLineIndex(content)
	if idx < 0 {
		return content
	}

	lines := strings.Split(content, "\n")
	lines = append(lines[:idx], lines[idx+1:]...)
	if idx < len(lines) && strings.TrimSpace(lines[idx]) == "" {
		lines = append(lines[:idx], lines[idx+1:]...)
	}
	return strings.Join(lines, "\n")
}

// directiveLineIndex locates the marker line, skipping leading blanks
// and comments. Returns -1 when the first meaningful line is anything
// else.
func directiveLineIndex(content string) int {
	inBlock := false
	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		// Consume block-comment spans, including ones that open and
		// close on the same line.
		for {
			if inBlock {
				end := strings.Index(line, "*/")
				if end < 0 {
					line = ""
					break
				}
				line = strings.TrimSpace(line[end+2:])
				inBlock = false
				continue
			}
			if strings.HasPrefix(line, "/*") {
				inBlock = true
				line = line[2:]
				continue
			}
			break
		}

		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if reDirectiveLine.MatchString(line) {
			return i
		}
		return -1
	}
	return -1
}
