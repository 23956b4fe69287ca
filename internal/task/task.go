package task

import (
	"net/http"
	"strings"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// Status 表示任务在看板上的状态。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Priority 表示任务优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// TitleMaxLength 是标题允许的最大字符数。
const TitleMaxLength = 200

// Task 是用户工作区里的一条待办。
type Task struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	DataSourceID *int64    `json:"data_source_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone 返回深拷贝。
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.DataSourceID != nil {
		id := *t.DataSourceID
		clone.DataSourceID = &id
	}
	return &clone
}

var (
	// ErrTaskNotFound 表示任务不存在或不属于当前用户。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:       "task not found",
		PublicMessage: "Task not found.",
		Severity:      xerrors.SeverityInfo,
		HTTPStatus:    http.StatusNotFound,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:       "task validation failed",
		PublicMessage: "The task is invalid.",
		Severity:      xerrors.SeverityInfo,
		HTTPStatus:    http.StatusBadRequest,
	})
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsValidPriority 检查优先级。
func IsValidPriority(priority Priority) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// ParseStatus 宽松解析状态，接受大小写与 "in progress"、"in_progress" 等写法。
func ParseStatus(raw string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "-", "_", "-").Replace(normalized)
	status := Status(normalized)
	if !IsValidStatus(status) {
		return "", false
	}
	return status, true
}

// ParsePriority 宽松解析优先级。
func ParsePriority(raw string) (Priority, bool) {
	priority := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidPriority(priority) {
		return "", false
	}
	return priority, true
}

// normalize 补齐默认值并校验字段，Create 前调用。
func normalize(t *Task) error {
	if t.UserID <= 0 {
		return xerrors.New(CodeTaskValidation, "任务缺少所属用户")
	}
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return xerrors.New(CodeTaskValidation, "任务标题不能为空")
	}
	if len([]rune(t.Title)) > TitleMaxLength {
		return xerrors.New(CodeTaskValidation, "任务标题过长")
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if !IsValidStatus(t.Status) {
		return xerrors.New(CodeTaskValidation, "未知的任务状态: "+string(t.Status))
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if !IsValidPriority(t.Priority) {
		return xerrors.New(CodeTaskValidation, "未知的任务优先级: "+string(t.Priority))
	}
	return nil
}

// TruncateTitle 截取前 limit 个字符，不会切断多字节字符，也不做空白处理。
func TruncateTitle(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
