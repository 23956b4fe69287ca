package datasource

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory 在内存中保存数据源，主要用于开发与测试。
type MemoryDirectory struct {
	mu      sync.RWMutex
	nextID  int64
	sources map[int64]Source
}

// NewMemoryDirectory 创建 MemoryDirectory。
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{sources: make(map[int64]Source)}
}

// ListByUser 按 id 升序返回用户的数据源。
func (m *MemoryDirectory) ListByUser(_ context.Context, userID int64) ([]Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Source
	for _, src := range m.sources {
		if src.UserID == userID {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get 返回属于用户的数据源。
func (m *MemoryDirectory) Get(_ context.Context, userID, id int64) (*Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[id]
	if !ok || src.UserID != userID {
		return nil, ErrNotFound
	}
	return &src, nil
}

// Create 登记新的数据源。
func (m *MemoryDirectory) Create(_ context.Context, src Source) (*Source, error) {
	if err := validate(&src); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	src.ID = m.nextID
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	m.sources[src.ID] = src
	return &src, nil
}

// Delete 删除属于用户的数据源。
func (m *MemoryDirectory) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok || src.UserID != userID {
		return ErrNotFound
	}
	delete(m.sources, id)
	return nil
}

var _ Directory = (*MemoryDirectory)(nil)
