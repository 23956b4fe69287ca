package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareRejectsMissingIdentity(t *testing.T) {
	called := false
	handler := Middleware(MiddlewareConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	for _, value := range []string{"", "abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		if value != "" {
			req.Header.Set(DefaultHeader, value)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", value, rec.Code)
		}
	}
	if called {
		t.Fatalf("next handler must not run without identity")
	}
}

func TestMiddlewarePropagatesUserID(t *testing.T) {
	var got int64
	handler := Middleware(MiddlewareConfig{Header: "X-Account"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
		if _, ok := w.(http.Flusher); !ok {
			t.Errorf("wrapped writer must stay flushable")
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/tasks", nil)
	req.Header.Set("X-Account", " 42 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got != 42 {
		t.Fatalf("expected user 42 in context, got %d", got)
	}
}

func TestUserIDFromContextWithoutValue(t *testing.T) {
	if _, ok := UserIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Fatalf("empty context must not yield a user")
	}
}
