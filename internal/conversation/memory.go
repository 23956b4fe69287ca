package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryLog 在进程内保存消息，用于开发与测试。
type MemoryLog struct {
	mu     sync.RWMutex
	nextID int64
	byConv map[int64][]Message
	now    func() time.Time
}

// NewMemoryLog 创建 MemoryLog。
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byConv: make(map[int64][]Message), now: time.Now}
}

// Append 实现 Log 接口。
func (m *MemoryLog) Append(_ context.Context, msg Message) (Message, error) {
	if err := validate(&msg); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	msg.CreatedAt = stamp(m.now)
	m.byConv[msg.ConversationID] = append(m.byConv[msg.ConversationID], msg)
	return msg, nil
}

// History 实现 Log 接口。
func (m *MemoryLog) History(_ context.Context, conversationID int64, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := tail(m.byConv[conversationID], limit)
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

var _ Log = (*MemoryLog)(nil)
