package extract

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "bare array",
			input: `[{"id": "t1"}]`,
			want:  `[{"id": "t1"}]`,
		},
		{
			name:  "fenced json block",
			input: "Here is the plan:\n```json\n[{\"id\": \"t1\"}]\n```\nDone.",
			want:  `[{"id": "t1"}]`,
		},
		{
			name:  "fence without language tag",
			input: "```\n{\"files\": []}\n```",
			want:  `{"files": []}`,
		},
		{
			name:  "prose before and after",
			input: "Sure! The tasks are: [{\"id\": \"t1\", \"files\": [\"app/page.tsx\"]}] — let me know.",
			want:  `[{"id": "t1", "files": ["app/page.tsx"]}]`,
		},
		{
			name:  "braces inside strings",
			input: `{"content": "function a() { return '}'; }"}`,
			want:  `{"content": "function a() { return '}'; }"}`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"content": "say \"hi\" {"}`,
			want:  `{"content": "say \"hi\" {"}`,
		},
		{
			name:    "no JSON at all",
			input:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			input:   `{"a": [1, 2`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSON(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("JSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("JSON() = %q, want %q", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("JSON() returned invalid JSON: %q", got)
			}
		})
	}
}

func TestCodeBlocks(t *testing.T) {
	input := "Two files follow.\n" +
		"```tsx components/Counter.tsx\n" +
		"export default function Counter() {}\n" +
		"```\n" +
		"And the page:\n" +
		"```tsx\n" +
		"// app/page.tsx\n" +
		"import Counter from '@/components/Counter';\n" +
		"export default function Home() {}\n" +
		"```\n"

	blocks := CodeBlocks(input)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2: %+v", len(blocks), blocks)
	}

	if blocks[0].Path != "components/Counter.tsx" {
		t.Errorf("blocks[0].Path = %q, want fence-line hint", blocks[0].Path)
	}
	if blocks[0].Language != "tsx" {
		t.Errorf("blocks[0].Language = %q", blocks[0].Language)
	}

	if blocks[1].Path != "app/page.tsx" {
		t.Errorf("blocks[1].Path = %q, want comment-line hint", blocks[1].Path)
	}
	if strings.Contains(blocks[1].Content, "app/page.tsx") {
		t.Error("path hint line should be stripped from content")
	}
	if !strings.Contains(blocks[1].Content, "import Counter") {
		t.Errorf("blocks[1].Content lost body: %q", blocks[1].Content)
	}
}

func TestCodeBlocksWithoutPathHint(t *testing.T) {
	input := "```css\nbody { margin: 0; }\n```"

	blocks := CodeBlocks(input)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].Path != "" {
		t.Errorf("Path = %q, want empty for unhinted block", blocks[0].Path)
	}
	if blocks[0].Content != "body { margin: 0; }" {
		t.Errorf("Content = %q", blocks[0].Content)
	}
}

func TestCodeBlocksUnterminatedFence(t *testing.T) {
	input := "```tsx app/page.tsx\nexport default function P() {}\n"

	// An unterminated fence yields no block rather than a partial one.
	if blocks := CodeBlocks(input); len(blocks) != 0 {
		t.Errorf("got %d blocks for unterminated fence, want 0", len(blocks))
	}
}
