package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestCompleteJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "{\"is_task\":"}, {"type": "text", "text": "false}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), llm.Request{System: "classify", Prompt: "add a task", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, `{"is_task":false}`, out)
	assert.Equal(t, "claude-sonnet-4-5", body["model"])
	assert.NotNil(t, body["system"])
}

func TestCompleteMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, llm.CodeUpstream, xerrors.CodeOf(err))
	assert.False(t, xerrors.RetryableError(err))
}
