package task

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// MemoryStore 以内存方式保存任务，主要用于开发与测试。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[int64]*Task
	now    func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[int64]*Task), now: time.Now}
}

func (m *MemoryStore) timestamp() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if err := normalize(task); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.timestamp()
	task.ID = m.nextID
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.ID] = task.Clone()
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, userID, id int64) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// FindByTitle 实现 Store 接口。
func (m *MemoryStore) FindByTitle(_ context.Context, userID int64, fragment string) (*Task, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil, ErrTaskNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *Task
	for _, task := range m.tasks {
		if task.UserID != userID || !strings.Contains(strings.ToLower(task.Title), needle) {
			continue
		}
		if best == nil || newer(task, best) {
			best = task
		}
	}
	if best == nil {
		return nil, ErrTaskNotFound
	}
	return best.Clone(), nil
}

// List 实现 Store 接口。
func (m *MemoryStore) List(_ context.Context, userID int64, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, task := range m.tasks {
		if task.UserID == userID && opts.matches(task) {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Update 实现 Store 接口。
func (m *MemoryStore) Update(_ context.Context, userID, id int64, patch Patch) (*Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return nil, ErrTaskNotFound
	}
	if !patch.IsEmpty() {
		patch.apply(task)
		task.UpdatedAt = m.timestamp()
	}
	return task.Clone(), nil
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, userID, id int64) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return nil, ErrTaskNotFound
	}
	delete(m.tasks, id)
	return task, nil
}

// Stats 实现 Store 接口。
func (m *MemoryStore) Stats(_ context.Context, userID int64) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats Stats
	for _, task := range m.tasks {
		if task.UserID == userID {
			stats.add(task.Status, 1)
		}
	}
	return stats, nil
}

// CountByDataSource 实现 Store 接口。
func (m *MemoryStore) CountByDataSource(_ context.Context, userID, dataSourceID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, task := range m.tasks {
		if task.UserID == userID && task.DataSourceID != nil && *task.DataSourceID == dataSourceID {
			count++
		}
	}
	return count, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

// newer 给出确定的排序：创建时间越晚越靠前，同一时刻按 ID 倒序。
func newer(a, b *Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

var _ Store = (*MemoryStore)(nil)
