package api

import (
	"net/http"
	"strconv"
	"strings"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/task"
)

type createTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	DataSourceID *int64 `json:"data_source_id"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	query := r.URL.Query()
	var opts []task.ListOption
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数"))
			return
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status, ok := task.ParseStatus(part)
			if !ok {
				writeError(w, r, xerrors.New(task.CodeTaskValidation, "未知的任务状态: "+part))
				return
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if q := query.Get("q"); q != "" {
		opts = append(opts, task.WithQuery(q))
	}

	tasks, err := s.deps.Tasks.List(r.Context(), currentUser(r), opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeEnvelope(w, http.StatusOK, "Tasks retrieved successfully", map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	var body createTaskRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	t := &task.Task{
		UserID:       currentUser(r),
		Title:        body.Title,
		Description:  strings.TrimSpace(body.Description),
		Status:       task.Status(body.Status),
		Priority:     task.Priority(body.Priority),
		DataSourceID: body.DataSourceID,
	}
	if status, ok := task.ParseStatus(body.Status); ok {
		t.Status = status
	}
	if priority, ok := task.ParsePriority(body.Priority); ok {
		t.Priority = priority
	}

	created, err := s.deps.Tasks.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, "Task created successfully", map[string]any{"task_id": created.ID, "task": created})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	found, err := s.deps.Tasks.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Task retrieved successfully", map[string]any{"task": found})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch task.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Status != nil {
		if status, ok := task.ParseStatus(string(*patch.Status)); ok {
			patch.Status = &status
		}
	}
	if patch.Priority != nil {
		if priority, ok := task.ParsePriority(string(*patch.Priority)); ok {
			patch.Priority = &priority
		}
	}

	updated, err := s.deps.Tasks.Update(r.Context(), currentUser(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Task updated successfully", map[string]any{"task": updated})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Tasks.Delete(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Task deleted successfully", map[string]any{"task_id": id})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, r, unavailable("任务服务"))
		return
	}
	stats, err := s.deps.Tasks.Stats(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Task stats retrieved successfully", map[string]any{"stats": stats})
}
