package activity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"Lumin-Agent/pkg/logger"
)

// Recorder 消费事件队列，把每条事件写入审计日志并依次调用挂载的 hook。
type Recorder struct {
	consumer Consumer
	workers  int
	hooks    []Handler
	audit    *slog.Logger
}

// RecorderOption 用于定制 Recorder。
type RecorderOption func(*Recorder)

// WithWorkers 设置消费协程数量。
func WithWorkers(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithHook 追加一个事件处理函数，例如指标统计或通知投递。
func WithHook(h Handler) RecorderOption {
	return func(r *Recorder) {
		if h != nil {
			r.hooks = append(r.hooks, h)
		}
	}
}

// NewRecorder 创建 Recorder。
func NewRecorder(consumer Consumer, opts ...RecorderOption) *Recorder {
	r := &Recorder{consumer: consumer, workers: 1, audit: logger.Audit()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run 阻塞消费直到 ctx 取消或队列关闭，正常退出时返回 nil。
func (r *Recorder) Run(ctx context.Context) error {
	err := r.consumer.Consume(ctx, r.workers, r.Handle)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
		return nil
	}
	return err
}

// Handle 处理单条事件。
func (r *Recorder) Handle(ctx context.Context, event Event) error {
	r.audit.Info("task_activity",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Int64("user_id", event.UserID),
		slog.Int64("task_id", event.TaskID),
		slog.String("title", event.Title),
		slog.String("changes", strings.Join(event.Changes, ",")),
		slog.String("source", event.Source),
		slog.Time("occurred_at", event.OccurredAt),
	)
	var errs []error
	for _, hook := range r.hooks {
		if err := hook(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
