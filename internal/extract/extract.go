// Package extract pulls structured payloads out of generative-model
// responses: a JSON value possibly wrapped in prose or markdown fences,
// or a sequence of fenced code blocks with per-file path hints.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Block is one fenced code block from a response. Path is empty when
// no file hint was found on the fence line or the first content line.
type Block struct {
	Language string
	Path     string
	Content  string
}

var (
	reFenceStart = regexp.MustCompile("^\\s*```([A-Za-z0-9+-]*)\\s*(\\S*)\\s*$")
	rePathToken  = regexp.MustCompile(`[A-Za-z0-9_@./-]+\.[A-Za-z0-9]+`)
)

// JSON locates the JSON value in a response. Fenced ```json blocks are
// preferred; otherwise the first balanced object or array is taken.
// The returned string is the raw JSON text, ready for unmarshalling.
func JSON(text string) (string, error) {
	for _, block := range CodeBlocks(text) {
		lang := strings.ToLower(block.Language)
		if lang != "json" && lang != "" {
			continue
		}
		candidate := strings.TrimSpace(block.Content)
		if startsJSON(candidate) {
			return candidate, nil
		}
	}

	if value := balancedJSON(text); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("no JSON value found in response")
}

func startsJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// balancedJSON scans for the first '{' or '[' and returns the substring
// through its balanced partner, honoring string literals and escapes.
func balancedJSON(text string) string {
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// CodeBlocks splits a response into its fenced code blocks. A path hint
// is taken from the fence line (```tsx app/page.tsx) or, failing that,
// from a comment on the first content line (// app/page.tsx).
func CodeBlocks(text string) []Block {
	var blocks []Block
	var current *Block
	var content strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if current == nil {
			if m := reFenceStart.FindStringSubmatch(line); m != nil {
				current = &Block{Language: m[1], Path: pathFromToken(m[2])}
				content.Reset()
			}
			continue
		}

		if strings.TrimSpace(line) == "```" {
			current.Content = strings.TrimSuffix(content.String(), "\n")
			if current.Path == "" {
				current.Path, current.Content = pathFromFirstLine(current.Content)
			}
			blocks = append(blocks, *current)
			current = nil
			continue
		}

		content.WriteString(line)
		content.WriteString("\n")
	}

	return blocks
}

// pathFromToken validates a fence-line token as a file path: it needs
// an extension and must not be a bare language tag.
func pathFromToken(token string) string {
	if token == "" || !strings.Contains(token, ".") {
		return ""
	}
	if rePathToken.FindString(token) == token {
		return token
	}
	return ""
}

// pathFromFirstLine checks the first content line for a comment-style
// path hint and strips that line when found.
func pathFromFirstLine(content string) (string, string) {
	lines := strings.SplitN(content, "\n", 2)
	first := strings.TrimSpace(lines[0])

	isComment := false
	for _, prefix := range []string{"//", "/*", "#", "<!--"} {
		if strings.HasPrefix(first, prefix) {
			isComment = true
			break
		}
	}
	if !isComment {
		return "", content
	}

	token := rePathToken.FindString(first)
	if token == "" || !strings.ContainsAny(token, "/.") {
		return "", content
	}

	rest := ""
	if len(lines) == 2 {
		rest = lines[1]
	}
	return token, rest
}
