package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type 表示事件类型。
type Type string

const (
	TypeTaskCreated Type = "task.created"
	TypeTaskUpdated Type = "task.updated"
	TypeTaskDeleted Type = "task.deleted"
)

// Event 描述一次已提交的任务变更。
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     int64     `json:"user_id"`
	TaskID     int64     `json:"task_id"`
	Title      string    `json:"title"`
	Changes    []string  `json:"changes,omitempty"`
	Source     string    `json:"source,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent 生成带有唯一 ID 与时间戳的事件。
func NewEvent(typ Type, userID, taskID int64, title string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		TaskID:     taskID,
		Title:      title,
		OccurredAt: time.Now().UTC(),
	}
}

func encodeEvent(event Event) ([]byte, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return encoded, nil
}

func decodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("解析事件失败: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return Event{}, fmt.Errorf("事件缺少 id 或 type")
	}
	return event, nil
}
