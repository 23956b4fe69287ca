// Package auth 从上游认证代理设置的请求头中读取调用方身份。
// 令牌校验由代理完成，这里只负责解析用户 ID 并放入上下文。
package auth

import "context"

// userKey 是上下文中存储用户 ID 的键类型。
type userKey struct{}

// WithUserID 将调用方的用户 ID 存入上下文。
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext 从上下文中取出用户 ID。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(userKey{}).(int64)
	return id, ok && id > 0
}
