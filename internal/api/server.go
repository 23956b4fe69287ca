package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"Lumin-Agent/internal/auth"
	"Lumin-Agent/internal/datasource"
	"Lumin-Agent/internal/observability/metrics"
	"Lumin-Agent/internal/task"
	"Lumin-Agent/internal/workflow"
	"Lumin-Agent/pkg/logger"
)

// WorkflowRunner 执行一次对话式任务工作流，workflow.Orchestrator 是默认实现。
type WorkflowRunner interface {
	Run(ctx context.Context, req workflow.Request, sink workflow.Sink) error
}

// Dependencies 汇总了接口层需要的服务。为 nil 的依赖对应的接口返回 503。
type Dependencies struct {
	Workflow    WorkflowRunner
	Tasks       *task.Service
	DataSources datasource.Directory
	Metrics     *metrics.Metrics
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	deps            Dependencies
	userHeader      string
	shutdownTimeout time.Duration
	log             *slog.Logger
}

// Option 用于定制 Server。
type Option func(*Server)

// WithUserHeader 设置携带用户 ID 的请求头。
func WithUserHeader(header string) Option {
	return func(s *Server) {
		if header != "" {
			s.userHeader = header
		}
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Dependencies, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		deps:            deps,
		userHeader:      auth.DefaultHeader,
		shutdownTimeout: 5 * time.Second,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, envelope{StatusCode: http.StatusOK, Message: "ok"})
	})
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	s.route(mux, "POST /api/v1/chat/tasks", "chat_tasks", s.handleChatTasks)

	s.route(mux, "GET /api/v1/tasks", "tasks", s.handleListTasks)
	s.route(mux, "POST /api/v1/tasks", "tasks", s.handleCreateTask)
	s.route(mux, "GET /api/v1/tasks/stats", "task_stats", s.handleTaskStats)
	s.route(mux, "GET /api/v1/tasks/{id}", "task_detail", s.handleGetTask)
	s.route(mux, "PUT /api/v1/tasks/{id}", "task_detail", s.handleUpdateTask)
	s.route(mux, "DELETE /api/v1/tasks/{id}", "task_detail", s.handleDeleteTask)

	s.route(mux, "GET /api/v1/datasources", "datasources", s.handleListDataSources)
	s.route(mux, "POST /api/v1/datasources", "datasources", s.handleCreateDataSource)
	s.route(mux, "DELETE /api/v1/datasources/{id}", "datasource_detail", s.handleDeleteDataSource)
	return mux
}

// route 为业务接口挂上身份校验与指标采集。
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	identity := auth.Middleware(auth.MiddlewareConfig{
		Header:     s.userHeader,
		AuditEvent: name,
		OnUnauthorized: func(w http.ResponseWriter, _ *http.Request) {
			writeEnvelope(w, http.StatusUnauthorized, "Authentication is required.", nil)
		},
	})
	mux.Handle(pattern, s.instrument(name, identity(h)))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// instrument 记录请求的状态码与耗时。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.deps.Metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeEnvelope(w, http.StatusServiceUnavailable, "服务已关闭", nil)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
