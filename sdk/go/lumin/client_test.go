package lumin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Lumin-Agent/internal/api"
	"Lumin-Agent/internal/conversation"
	"Lumin-Agent/internal/datasource"
	"Lumin-Agent/internal/intent"
	"Lumin-Agent/internal/llm"
	"Lumin-Agent/internal/task"
	"Lumin-Agent/internal/workflow"
)

func newServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	store := task.NewMemoryStore()
	dir := datasource.NewMemoryDirectory()
	classifier := intent.NewClassifier(llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return reply, nil
	}))
	srv := api.NewServer(":0", api.Dependencies{
		Workflow:    workflow.New(classifier, dir, task.NewEngine(store), conversation.NewMemoryLog()),
		Tasks:       task.NewService(store, dir),
		DataSources: dir,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestTaskLifecycle(t *testing.T) {
	ts := newServer(t, "")
	client, err := NewClient(ts.URL, 9, WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	created, err := client.CreateTask(ctx, NewTask{Title: "Draft roadmap", Priority: "high"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Status != "pending" || created.Priority != "high" {
		t.Fatalf("unexpected task: %+v", created)
	}

	status := "completed"
	updated, err := client.UpdateTask(ctx, created.ID, TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != "completed" {
		t.Fatalf("status not updated: %+v", updated)
	}

	tasks, err := client.ListTasks(ctx, 10, "completed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", tasks)
	}

	if err := client.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = client.GetTask(ctx, created.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestDataSources(t *testing.T) {
	ts := newServer(t, "")
	client, _ := NewClient(ts.URL, 3, WithHTTPClient(ts.Client()))
	ctx := context.Background()

	src, err := client.AddDataSource(ctx, DataSource{Name: "Sales Sheet", Type: "spreadsheet"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	sources, err := client.ListDataSources(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != src.ID || sources[0].Name != "Sales Sheet" {
		t.Fatalf("unexpected sources: %+v", sources)
	}
}

func TestChatStreamsEvents(t *testing.T) {
	ts := newServer(t, `{"is_task": true, "action": "create", "task_details": {"title": "Call the auditor"}}`)
	client, _ := NewClient(ts.URL, 4, WithHTTPClient(ts.Client()))

	var events []ChatEvent
	answer, err := client.Chat(context.Background(), ChatRequest{Question: "new task: call the auditor", ConversationID: 1}, func(ev ChatEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(events) != 2 || events[0].Status != "analyzing_intent" || events[0].Action != "create" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if answer != "✅ Task created: '**Call the auditor**'. I've added it to your workspace." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestChatRejectedBeforeStreaming(t *testing.T) {
	ts := newServer(t, "")
	client, _ := NewClient(ts.URL, 4, WithHTTPClient(ts.Client()))

	_, err := client.Chat(context.Background(), ChatRequest{Question: "  "}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}
