package datasource

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"Lumin-Agent/pkg/logger"
)

// CachedDirectory 使用 Redis 缓存 ListByUser 的结果。
// 工作流在每次请求时都会读取数据源列表，写操作会主动失效对应用户的缓存。
// Redis 不可用时直接回落到底层目录。
type CachedDirectory struct {
	next   Directory
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// NewCachedDirectory 包装底层目录。
func NewCachedDirectory(next Directory, client redis.UniversalClient, prefix string, ttl time.Duration) *CachedDirectory {
	if prefix == "" {
		prefix = "lumin:datasources:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{next: next, client: client, prefix: prefix, ttl: ttl, log: logger.Named("datasource")}
}

func (c *CachedDirectory) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

// ListByUser 实现 Directory 接口。
func (c *CachedDirectory) ListByUser(ctx context.Context, userID int64) ([]Source, error) {
	key := c.key(userID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Source
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.log.Warn("数据源缓存内容损坏，重新加载", slog.String("key", key))
	case !stdErrors.Is(err, redis.Nil):
		c.log.Warn("读取数据源缓存失败", slog.String("key", key), slog.Any("error", err))
	}

	sources, err := c.next.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if encoded, jsonErr := json.Marshal(sources); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.log.Warn("写入数据源缓存失败", slog.String("key", key), slog.Any("error", setErr))
		}
	}
	return sources, nil
}

// Get 实现 Directory 接口。
func (c *CachedDirectory) Get(ctx context.Context, userID, id int64) (*Source, error) {
	return c.next.Get(ctx, userID, id)
}

// Create 实现 Directory 接口。
func (c *CachedDirectory) Create(ctx context.Context, src Source) (*Source, error) {
	created, err := c.next.Create(ctx, src)
	if err != nil {
		return nil, err
	}
	c.Invalidate(ctx, created.UserID)
	return created, nil
}

// Delete 实现 Directory 接口。
func (c *CachedDirectory) Delete(ctx context.Context, userID, id int64) error {
	if err := c.next.Delete(ctx, userID, id); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// Invalidate 删除用户的缓存条目。
func (c *CachedDirectory) Invalidate(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.log.Warn("清理数据源缓存失败", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

var _ Directory = (*CachedDirectory)(nil)
