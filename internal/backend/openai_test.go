package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewOpenAIAdapter(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	return adapter
}

func TestOpenAIComplete_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest

	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "generated text"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 5},
		})
	})

	resp, err := adapter.Complete(context.Background(), Request{
		System: "you are a code generator",
		Prompt: "make a counter",
		Schema: "respond as JSON",
	})
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	if resp.Content != "generated text" {
		t.Errorf("Content = %q, want %q", resp.Content, "generated text")
	}
	if resp.Usage.CompletionTokens != 5 {
		t.Errorf("CompletionTokens = %d, want 5", resp.Usage.CompletionTokens)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system then user", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "respond as JSON") {
		t.Error("schema hint not appended to user prompt")
	}
}

func TestOpenAIComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "slow down"}`,
			wantErr: ErrRateLimited,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": "bad key"}`,
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "forbidden",
			status:  http.StatusForbidden,
			body:    `{"error": "no access"}`,
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "non-JSON body",
			status:  http.StatusOK,
			body:    "<html>gateway</html>",
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "empty choices",
			status:  http.StatusOK,
			body:    `{"model": "m", "choices": []}`,
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := adapter.Complete(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIComplete_ServerError(t *testing.T) {
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := adapter.Complete(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	// 5xx is neither a rate limit nor a credentials problem.
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("5xx wrongly classified: %v", err)
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error %q should carry the status code", err)
	}
}

func TestOpenAIComplete_ContextCancelled(t *testing.T) {
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Complete(ctx, Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
}
