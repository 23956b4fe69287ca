package task

import (
	"context"
	stdErrors "errors"
	"strings"
)

// Resolver 把模糊的标题片段映射到用户名下的具体任务。
type Resolver struct {
	store Store
}

// NewResolver 创建 Resolver。
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve 按标题子串（忽略大小写）匹配用户的任务，多条命中时取最新创建的一条。
// 没有命中时返回 nil, nil，由调用方决定如何提示用户。
func (r *Resolver) Resolve(ctx context.Context, userID int64, fragment string) (*Task, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	task, err := r.store.FindByTitle(ctx, userID, fragment)
	if stdErrors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Reference 选择用于查找的片段：优先使用抽取出的标题，否则退回整句提问。
// 退回整句时只有标题恰好出现在提问中才能命中。
func Reference(title *string, question string) string {
	if title != nil {
		if trimmed := strings.TrimSpace(*title); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(question)
}
