package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"Lumin-Agent/internal/activity"
	"Lumin-Agent/pkg/logger"
)

const publishTimeout = 2 * time.Second

// notifier 在变更提交后写审计日志并投递任务动态。
// 投递失败只记录日志，不影响已经提交的变更。
type notifier struct {
	publisher activity.Publisher
	source    string
	log       *slog.Logger
}

func newNotifier(publisher activity.Publisher, source string) notifier {
	return notifier{publisher: publisher, source: source, log: logger.Named("task")}
}

func (n notifier) committed(ctx context.Context, typ activity.Type, task *Task, changes []string) {
	logger.Audit().Info(auditMessage(typ),
		slog.Int64("user_id", task.UserID),
		slog.Int64("task_id", task.ID),
		slog.String("title", task.Title),
		slog.String("changes", strings.Join(changes, ",")),
		slog.String("source", n.source),
	)
	if n.publisher == nil {
		return
	}

	event := activity.NewEvent(typ, task.UserID, task.ID, task.Title)
	event.Changes = changes
	event.Source = n.source

	// 客户端断开不应影响已提交变更的通知。
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.publisher.Publish(publishCtx, event); err != nil {
		n.log.Warn("任务动态投递失败",
			slog.String("event_id", event.ID),
			slog.String("type", string(typ)),
			slog.Int64("task_id", task.ID),
			slog.Any("error", err),
		)
	}
}

func auditMessage(typ activity.Type) string {
	switch typ {
	case activity.TypeTaskCreated:
		return "task_created"
	case activity.TypeTaskUpdated:
		return "task_updated"
	case activity.TypeTaskDeleted:
		return "task_deleted"
	default:
		return "task_activity"
	}
}
