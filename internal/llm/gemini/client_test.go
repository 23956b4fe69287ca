package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
}

func TestCompleteReturnsCandidateText(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"is_task\":true}"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), llm.Request{System: "sys", Prompt: "add a task", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"is_task":true}`, out)
	assert.True(t, strings.HasSuffix(path, "models/"+defaultModel+":generateContent"), path)
	assert.NotNil(t, body["systemInstruction"])
}

func TestCompleteMapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, llm.CodeUpstream, xerrors.CodeOf(err))
	assert.True(t, xerrors.RetryableError(err))
}
