package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/workflow"
)

type chatTaskRequest struct {
	Question       string `json:"question"`
	ConversationID int64  `json:"conversation_id"`
	Model          string `json:"llm_model"`
}

// handleChatTasks 以 NDJSON 流返回工作流事件，每个事件一行并立即刷新。
func (s *Server) handleChatTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workflow == nil {
		writeError(w, r, unavailable("任务工作流"))
		return
	}
	var body chatTaskRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req := workflow.Request{
		Question:       body.Question,
		ConversationID: body.ConversationID,
		UserID:         currentUser(r),
		Model:          body.Model,
	}
	// 参数错误在开始推流之前以普通 JSON 返回。
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := newNDJSONSink(w)
	if err := s.deps.Workflow.Run(r.Context(), req, sink); err != nil {
		s.log.Debug("任务工作流提前结束",
			slog.Int64("conversation_id", req.ConversationID),
			slog.String("code", string(xerrors.CodeOf(err))),
		)
	}
}

// ndjsonSink 把事件编码为 {"data": ...} 行写入响应。
type ndjsonSink struct {
	enc *json.Encoder
	rc  *http.ResponseController
}

func newNDJSONSink(w http.ResponseWriter) *ndjsonSink {
	return &ndjsonSink{enc: json.NewEncoder(w), rc: http.NewResponseController(w)}
}

// Emit 实现 workflow.Sink 接口。
func (s *ndjsonSink) Emit(_ context.Context, event workflow.Event) error {
	if err := s.enc.Encode(workflow.Envelope{Data: event}); err != nil {
		return err
	}
	return s.rc.Flush()
}
