package workflow

import (
	"context"
)

// 事件状态。
const (
	StatusAnalyzingIntent = "analyzing_intent"
	StatusError           = "error"
)

// Event 是推送给调用方的一条进度或结果，序列化后包在 {"data": ...} 中。
type Event struct {
	Status string `json:"status,omitempty"`
	Action string `json:"action,omitempty"`
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Terminal 判断事件是否结束了事件流。
func (e Event) Terminal() bool {
	return e.Answer != "" || e.Status == StatusError
}

// Envelope 是事件在线路上的外层结构。
type Envelope struct {
	Data Event `json:"data"`
}

// Sink 接收事件。返回错误表示调用方已经不再接收，工作流会立即停止。
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc 允许使用函数实现 Sink。
type SinkFunc func(ctx context.Context, event Event) error

// Emit 实现 Sink 接口。
func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}
