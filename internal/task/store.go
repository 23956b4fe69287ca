package task

import "context"

// Store 抽象了任务的持久化接口。所有方法都以 userID 限定作用域，
// 不属于该用户的任务一律表现为 ErrTaskNotFound。
type Store interface {
	// Create 写入任务并回填 ID 与时间戳。
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, userID, id int64) (*Task, error)
	// FindByTitle 按标题子串（忽略大小写）查找，多条命中时返回最新创建的一条。
	FindByTitle(ctx context.Context, userID int64, fragment string) (*Task, error)
	List(ctx context.Context, userID int64, opts ListOptions) ([]*Task, error)
	// Update 在单个事务内读取、修改并返回更新后的任务。
	Update(ctx context.Context, userID, id int64, patch Patch) (*Task, error)
	// Delete 删除任务并返回被删除的记录。
	Delete(ctx context.Context, userID, id int64) (*Task, error)
	Stats(ctx context.Context, userID int64) (Stats, error)
	CountByDataSource(ctx context.Context, userID, dataSourceID int64) (int, error)
	Close() error
}
