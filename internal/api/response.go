package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"Lumin-Agent/internal/auth"
	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/pkg/logger"
)

// envelope 是 REST 接口统一的响应结构。
type envelope struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, status, envelope{StatusCode: status, Message: message, Data: data})
}

// writeError 按错误码写出响应。5xx 只返回公开文案，4xx 额外附带错误描述。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatusOf(err)
	data := map[string]any{"code": string(xerrors.CodeOf(err))}
	if status < http.StatusInternalServerError {
		if e, ok := xerrors.From(err); ok {
			data["detail"] = e.Message()
		}
	} else {
		logger.Named("api").Error("请求处理失败",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeEnvelope(w, status, xerrors.PublicMessageOf(err), data)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "无效的 ID: "+r.PathValue("id"))
	}
	return id, nil
}

// currentUser 读取身份中间件写入的用户 ID。
func currentUser(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func unavailable(what string) error {
	return xerrors.New(xerrors.CodeInitializationFailure, what+" 未初始化")
}
