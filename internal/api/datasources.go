package api

import (
	"log/slog"
	"net/http"

	"Lumin-Agent/internal/datasource"
)

type createDataSourceRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	TableName     string `json:"table_name"`
	ConnectionURL string `json:"connection_url"`
}

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	if s.deps.DataSources == nil {
		writeError(w, r, unavailable("数据源目录"))
		return
	}
	sources, err := s.deps.DataSources.ListByUser(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []datasource.Source{}
	}
	writeEnvelope(w, http.StatusOK, "Data sources retrieved successfully", map[string]any{"datasources": sources})
}

func (s *Server) handleCreateDataSource(w http.ResponseWriter, r *http.Request) {
	if s.deps.DataSources == nil {
		writeError(w, r, unavailable("数据源目录"))
		return
	}
	var body createDataSourceRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.deps.DataSources.Create(r.Context(), datasource.Source{
		UserID:        currentUser(r),
		Name:          body.Name,
		Type:          datasource.Type(body.Type),
		TableName:     body.TableName,
		ConnectionURL: body.ConnectionURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, "Data source added successfully", map[string]any{"datasource": created})
}

// handleDeleteDataSource 只删除目录记录，关联的任务保持原样，孤立的关联数记入告警日志。
func (s *Server) handleDeleteDataSource(w http.ResponseWriter, r *http.Request) {
	if s.deps.DataSources == nil {
		writeError(w, r, unavailable("数据源目录"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := currentUser(r)
	if err := s.deps.DataSources.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	orphaned := 0
	if s.deps.Tasks != nil {
		count, err := s.deps.Tasks.CountByDataSource(r.Context(), userID, id)
		if err != nil {
			s.log.Warn("统计孤立任务失败", slog.Int64("data_source_id", id), slog.Any("error", err))
		}
		orphaned = count
	}
	if orphaned > 0 {
		s.log.Warn("数据源已删除，仍有任务引用该数据源",
			slog.Int64("user_id", userID),
			slog.Int64("data_source_id", id),
			slog.Int("orphaned_tasks", orphaned),
		)
	}
	writeEnvelope(w, http.StatusOK, "Data source deleted successfully", map[string]any{"orphaned_tasks": orphaned})
}
