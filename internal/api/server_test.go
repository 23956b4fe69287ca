package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lumin-Agent/internal/conversation"
	"Lumin-Agent/internal/datasource"
	"Lumin-Agent/internal/intent"
	"Lumin-Agent/internal/llm"
	"Lumin-Agent/internal/observability/metrics"
	"Lumin-Agent/internal/task"
	"Lumin-Agent/internal/workflow"
)

type testEnv struct {
	server  *httptest.Server
	store   *task.MemoryStore
	dir     *datasource.MemoryDirectory
	history *conversation.MemoryLog
	reply   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   task.NewMemoryStore(),
		dir:     datasource.NewMemoryDirectory(),
		history: conversation.NewMemoryLog(),
	}
	classifier := intent.NewClassifier(llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return env.reply, nil
	}))
	orchestrator := workflow.New(classifier, env.dir, task.NewEngine(env.store), env.history)
	srv := NewServer(":0", Dependencies{
		Workflow:    orchestrator,
		Tasks:       task.NewService(env.store, env.dir),
		DataSources: env.dir,
		Metrics:     metrics.New(),
	})
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, user int64, body any) (*http.Response, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if user > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(user, 10))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestChatTasksStreamsNDJSON(t *testing.T) {
	env := newTestEnv(t)
	env.reply = `{"is_task": true, "action": "create", "task_details": {"title": "Review Q3 numbers"}}`

	payload := `{"question": "add a task to review Q3 numbers", "conversation_id": 12, "llm_model": "llama3"}`
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/chat/tasks", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var lines []workflow.Envelope
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line workflow.Envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, workflow.Event{Status: "analyzing_intent", Action: "create"}, lines[0].Data)
	assert.Equal(t, "✅ Task created: '**Review Q3 numbers**'. I've added it to your workspace.", lines[1].Data.Answer)

	list, err := env.store.List(context.Background(), 5, task.BuildListOptions())
	require.NoError(t, err)
	require.Len(t, list, 1)

	history, err := env.history.History(context.Background(), 12, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestChatTasksRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/chat/tasks", 0, map[string]any{"question": "x", "conversation_id": 1})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, body.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/chat/tasks", 1, map[string]any{"question": " ", "conversation_id": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", body.Data.(map[string]any)["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/chat/tasks", 1, map[string]any{"question": "task", "conversation_id": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskCRUD(t *testing.T) {
	env := newTestEnv(t)
	src, err := env.dir.Create(context.Background(), datasource.Source{UserID: 1, Name: "Sales"})
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodPost, "/api/v1/tasks", 1, map[string]any{
		"title": "Check totals", "priority": "HIGH", "status": "in progress", "data_source_id": src.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Task created successfully", body.Message)
	id := int64(body.Data.(map[string]any)["task_id"].(float64))

	resp, body = env.do(t, http.MethodGet, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := body.Data.(map[string]any)["task"].(map[string]any)
	assert.Equal(t, "in-progress", got["status"])
	assert.Equal(t, "high", got["priority"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 2, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPut, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 1, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body.Data.(map[string]any)["task"].(map[string]any)["status"])

	resp, _ = env.do(t, http.MethodPut, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 1, map[string]any{"status": "blocked"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/tasks?status=completed&limit=5", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Data.(map[string]any)["tasks"], 1)

	resp, body = env.do(t, http.MethodGet, "/api/v1/tasks/stats", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body.Data.(map[string]any)["stats"].(map[string]any)["completed"])

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/v1/tasks/"+strconv.FormatInt(id, 10), 1, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tasks/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTaskRejectsForeignDataSource(t *testing.T) {
	env := newTestEnv(t)
	foreign, err := env.dir.Create(context.Background(), datasource.Source{UserID: 2, Name: "Private"})
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodPost, "/api/v1/tasks", 1, map[string]any{"title": "Peek", "data_source_id": foreign.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "TASK_VALIDATION_FAILED", body.Data.(map[string]any)["code"])
}

func TestDataSourceLifecycleKeepsLinkedTasks(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/datasources", 1, map[string]any{"name": "Warehouse DB", "connection_url": "postgres://warehouse"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	src := body.Data.(map[string]any)["datasource"].(map[string]any)
	assert.Equal(t, "url", src["type"])
	srcID := int64(src["id"].(float64))

	dsID := srcID
	require.NoError(t, env.store.Create(context.Background(), &task.Task{UserID: 1, Title: "Profile warehouse", DataSourceID: &dsID}))

	resp, body = env.do(t, http.MethodGet, "/api/v1/datasources", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Data.(map[string]any)["datasources"], 1)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/datasources/"+strconv.FormatInt(srcID, 10), 2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodDelete, "/api/v1/datasources/"+strconv.FormatInt(srcID, 10), 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body.Data.(map[string]any)["orphaned_tasks"])

	stats, err := env.store.Stats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Message)

	env.do(t, http.MethodGet, "/api/v1/tasks", 1, nil)
	metricsResp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `lumin_http_requests_total{code="200",handler="tasks",method="GET"} 1`)
}

func TestMissingDependenciesReturn503(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", Dependencies{}).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
