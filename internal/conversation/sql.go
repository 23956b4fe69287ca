package conversation

import (
	"context"
	"database/sql"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// SQLLog 把消息写入 conversation_messages 表。
type SQLLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLLog 创建 SQLLog。
func NewSQLLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db, now: time.Now}
}

// Append 实现 Log 接口。
func (s *SQLLog) Append(ctx context.Context, msg Message) (Message, error) {
	if err := validate(&msg); err != nil {
		return Message{}, err
	}
	msg.CreatedAt = stamp(s.now)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.ConversationID, string(msg.Role), msg.Content, msg.CreatedAt.UnixMilli())
	if err != nil {
		return Message{}, xerrors.Wrap(CodeAppendFailed, err, "写入会话消息失败")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, xerrors.Wrap(CodeAppendFailed, err, "获取会话消息 ID 失败")
	}
	msg.ID = id
	return msg, nil
}

// History 实现 Log 接口。
func (s *SQLLog) History(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at FROM conversation_messages
        WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话消息失败")
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			msg       Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话消息失败")
		}
		msg.Role = Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话消息失败")
	}
	// 查询按倒序取最近的记录，返回前恢复写入顺序。
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

var _ Log = (*SQLLog)(nil)
