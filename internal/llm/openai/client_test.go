package openai

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestCompleteSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Path          string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": ` {"is_task":true} `}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "llama-3.1-8b-instant", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	out, err := client.Complete(context.Background(), llm.Request{System: "sys", Prompt: "add a task", JSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"is_task":true}` {
		t.Fatalf("unexpected content: %q", out)
	}
	if captured.Path != "/chat/completions" {
		t.Fatalf("unexpected path %q", captured.Path)
	}
	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Body["model"] != "llama-3.1-8b-instant" {
		t.Fatalf("default model not used: %v", captured.Body["model"])
	}
	if _, ok := captured.Body["response_format"]; !ok {
		t.Fatalf("json mode not requested")
	}
	if messages, _ := captured.Body["messages"].([]any); len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured.Body["messages"])
	}
}

func TestCompleteRequestModelOverridesDefault(t *testing.T) {
	var model any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		model = body["model"]
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	client.httpClient = srv.Client()

	if _, err := client.Complete(context.Background(), llm.Request{Model: "gpt-4o", Prompt: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gpt-4o" {
		t.Fatalf("request model ignored: %v", model)
	}
}

func TestCompleteHTTPErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", tc.status)
		}))

		client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		client.httpClient = srv.Client()

		_, err = client.Complete(context.Background(), llm.Request{Prompt: "test"})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if xerrors.CodeOf(err) != llm.CodeUpstream {
			t.Fatalf("status %d: unexpected code %s", tc.status, xerrors.CodeOf(err))
		}
		if xerrors.RetryableError(err) != tc.retryable {
			t.Fatalf("status %d: retryable=%v", tc.status, xerrors.RetryableError(err))
		}
		var statusErr *StatusError
		if !stdErrors.As(err, &statusErr) || statusErr.StatusCode != tc.status {
			t.Fatalf("status %d: status error not preserved: %v", tc.status, err)
		}
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	client.httpClient = srv.Client()

	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
