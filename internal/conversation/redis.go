package conversation

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Lumin-Agent/internal/errors"
)

// RedisLog 以 list 保存每个会话的消息，超过 maxLength 时丢弃最旧的记录。
type RedisLog struct {
	client    redis.UniversalClient
	prefix    string
	maxLength int64
	now       func() time.Time
}

// NewRedisLog 创建 RedisLog。maxLength <= 0 表示不裁剪。
func NewRedisLog(client redis.UniversalClient, prefix string, maxLength int64) *RedisLog {
	if prefix == "" {
		prefix = "lumin:conversation:"
	}
	return &RedisLog{client: client, prefix: prefix, maxLength: maxLength, now: time.Now}
}

func (r *RedisLog) listKey(conversationID int64) string {
	return r.prefix + strconv.FormatInt(conversationID, 10) + ":messages"
}

func (r *RedisLog) seqKey(conversationID int64) string {
	return r.prefix + strconv.FormatInt(conversationID, 10) + ":seq"
}

// Append 实现 Log 接口。
func (r *RedisLog) Append(ctx context.Context, msg Message) (Message, error) {
	if err := validate(&msg); err != nil {
		return Message{}, err
	}
	id, err := r.client.Incr(ctx, r.seqKey(msg.ConversationID)).Result()
	if err != nil {
		return Message{}, xerrors.Wrap(CodeAppendFailed, err, "分配会话消息 ID 失败")
	}
	msg.ID = id
	msg.CreatedAt = stamp(r.now)
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, xerrors.Wrap(CodeAppendFailed, err, "序列化会话消息失败")
	}

	key := r.listKey(msg.ConversationID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		if r.maxLength > 0 {
			pipe.LTrim(ctx, key, -r.maxLength, -1)
		}
		return nil
	})
	if err != nil {
		return Message{}, xerrors.Wrap(CodeAppendFailed, err, "写入会话消息失败")
	}
	return msg, nil
}

// History 实现 Log 接口。
func (r *RedisLog) History(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := r.client.LRange(ctx, r.listKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话消息失败")
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话消息失败")
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

var _ Log = (*RedisLog)(nil)
