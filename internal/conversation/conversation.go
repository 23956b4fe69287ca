// Package conversation 记录对话中的消息，工作流在输出最终回复前把回答写入这里。
package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是对话中的一条记录。Content 保存 JSON 文本，助手消息的格式为 {"answer": "..."}。
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Log 追加并读取对话消息。
type Log interface {
	// Append 写入消息并回填 ID 与时间戳，返回后消息已持久化。
	Append(ctx context.Context, msg Message) (Message, error)
	// History 按写入顺序返回最近 limit 条消息，limit <= 0 表示全部。
	History(ctx context.Context, conversationID int64, limit int) ([]Message, error)
}

// CodeAppendFailed 表示消息写入失败。
const CodeAppendFailed xerrors.Code = "CONVERSATION_APPEND_FAILED"

func init() {
	xerrors.Register(CodeAppendFailed, xerrors.Attributes{
		Message:       "conversation append failed",
		PublicMessage: "We could not save the conversation. Please try again.",
		Severity:      xerrors.SeverityCritical,
		Retryable:     true,
		Alert:         true,
		HTTPStatus:    http.StatusInternalServerError,
	})
}

// AssistantAnswer 构造一条助手回答消息。
func AssistantAnswer(conversationID int64, answer string) Message {
	content, _ := json.Marshal(struct {
		Answer string `json:"answer"`
	}{Answer: answer})
	return Message{ConversationID: conversationID, Role: RoleAssistant, Content: string(content)}
}

// Answer 取出助手消息中的回答文本，内容不是 JSON 时原样返回。
func (m Message) Answer() string {
	var body struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(m.Content), &body); err != nil || body.Answer == nil {
		return m.Content
	}
	return *body.Answer
}

func validate(msg *Message) error {
	if msg.ConversationID <= 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "conversation_id 必须为正整数")
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	if strings.TrimSpace(msg.Content) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	return nil
}

func stamp(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Millisecond)
}

func tail(msgs []Message, limit int) []Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
