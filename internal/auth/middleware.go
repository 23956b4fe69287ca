package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	loggerpkg "Lumin-Agent/pkg/logger"
)

// DefaultHeader 是默认的身份请求头。
const DefaultHeader = "X-User-ID"

// MiddlewareConfig 配置身份中间件的行为。
type MiddlewareConfig struct {
	// Header 指定携带用户 ID 的请求头，默认 X-User-ID。
	Header string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
	// Audit 为空时使用全局审计日志。
	Audit *slog.Logger
	// OnUnauthorized 自定义拒绝时的响应，为空时返回纯文本 401。
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)
}

// Middleware 返回一个 HTTP 中间件：缺少或无法解析用户 ID 时返回 401，
// 否则把用户 ID 写入上下文并在请求结束后记录审计日志。
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := cfg.Audit
			if logger == nil {
				logger = loggerpkg.Audit()
			}
			userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(header)), 10, 64)
			if err != nil || userID <= 0 {
				if cfg.OnUnauthorized != nil {
					cfg.OnUnauthorized(w, r)
				} else {
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				}
				logger.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", http.StatusUnauthorized,
					"header", header,
				)
				return
			}

			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithUserID(r.Context(), userID)))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			logger.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_id", userID,
			)
		})
	}
}

// auditWriter 是一个包装了 http.ResponseWriter 的结构体，用于捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush 透传给底层 writer，流式响应依赖它逐行推送。
func (w *auditWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 访问底层 writer。
func (w *auditWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
