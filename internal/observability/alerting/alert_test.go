package alerting

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Lumin-Agent/internal/errors"
)

type failingNotifier struct{ channel Channel }

func (f failingNotifier) Channel() Channel { return f.channel }

func (f failingNotifier) Notify(context.Context, Event) error { return stdErrors.New("unreachable") }

func TestFromError(t *testing.T) {
	err := xerrors.Wrap(xerrors.CodeStorageFailure, stdErrors.New("disk full"), "写入失败", xerrors.WithMetadata("table", "tasks"))
	event := FromError(err)
	assert.Equal(t, xerrors.CodeStorageFailure, event.Code)
	assert.Equal(t, xerrors.SeverityCritical, event.Severity)
	assert.Equal(t, "tasks", event.Metadata["table"])
	assert.Contains(t, event.Message, "disk full")

	event.Metadata["user_id"] = "3"
	assert.Equal(t, "[critical] STORAGE_FAILURE: "+err.Error()+" table=tasks user_id=3", event.Summary())
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	event := FromError(xerrors.New(xerrors.CodeUnknown, "boom"))
	require.NoError(t, n.Notify(context.Background(), event))
	assert.Equal(t, "UNKNOWN", got["code"])
	assert.Contains(t, got["text"], "boom")
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := (&WebhookNotifier{URL: srv.URL}).Notify(context.Background(), FromError(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	assert.NoError(t, (&WebhookNotifier{}).Notify(context.Background(), FromError(nil)))
}

func TestFanoutJoinsErrors(t *testing.T) {
	d := NewFanout(LogNotifier{}, failingNotifier{channel: ChannelWebhook}, nil)
	err := d.Notify(context.Background(), FromError(stdErrors.New("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel webhook")

	var nilDispatcher *FanoutDispatcher
	assert.NoError(t, nilDispatcher.Notify(context.Background(), Event{}))
}
