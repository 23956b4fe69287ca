package task

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"Lumin-Agent/internal/activity"
	"Lumin-Agent/internal/datasource"
	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/pkg/logger"
)

// Service 为 REST 接口提供直接的任务增删改查，与对话工作流共用同一个 Store。
type Service struct {
	store     Store
	directory datasource.Directory
	notify    notifier
	log       *slog.Logger
}

// ServiceOption 用于定制 Service。
type ServiceOption func(*Service)

// WithServicePublisher 设置任务动态的投递目标。
func WithServicePublisher(p activity.Publisher) ServiceOption {
	return func(s *Service) {
		s.notify.publisher = p
	}
}

// NewService 构造任务服务。directory 用于校验关联的数据源属于当前用户。
func NewService(store Store, directory datasource.Directory, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		directory: directory,
		notify:    newNotifier(nil, "api"),
		log:       logger.Named("task"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return nil
}

// Get 返回指定任务。
func (s *Service) Get(ctx context.Context, userID, id int64) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, userID, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, userID int64, opts ...ListOption) ([]*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.List(ctx, userID, BuildListOptions(opts...))
}

// Stats 返回用户任务的状态统计。
func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	if err := s.ready(); err != nil {
		return Stats{}, err
	}
	return s.store.Stats(ctx, userID)
}

// Create 创建任务。
func (s *Service) Create(ctx context.Context, task *Task) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, xerrors.New(CodeTaskValidation, "任务不能为空")
	}
	if err := s.checkDataSource(ctx, task.UserID, task.DataSourceID); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}
	s.notify.committed(ctx, activity.TypeTaskCreated, task, nil)
	return task, nil
}

// Update 部分更新任务。只包含与当前值相同字段的 Patch 不会写库。
func (s *Service) Update(ctx context.Context, userID, id int64, patch Patch) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkDataSource(ctx, userID, patch.DataSourceID); err != nil {
		return nil, err
	}
	current, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	diff := patch.Diff(current)
	if diff.IsEmpty() {
		return current, nil
	}
	updated, err := s.store.Update(ctx, userID, id, diff)
	if err != nil {
		return nil, err
	}
	s.notify.committed(ctx, activity.TypeTaskUpdated, updated, diff.Fields())
	return updated, nil
}

// Delete 删除任务。
func (s *Service) Delete(ctx context.Context, userID, id int64) (*Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	deleted, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.notify.committed(ctx, activity.TypeTaskDeleted, deleted, nil)
	return deleted, nil
}

// CountByDataSource 返回关联到指定数据源的任务数量。
func (s *Service) CountByDataSource(ctx context.Context, userID, dataSourceID int64) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.store.CountByDataSource(ctx, userID, dataSourceID)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Service) checkDataSource(ctx context.Context, userID int64, id *int64) error {
	if id == nil || s.directory == nil {
		return nil
	}
	_, err := s.directory.Get(ctx, userID, *id)
	if stdErrors.Is(err, datasource.ErrNotFound) {
		s.log.Warn("拒绝关联不属于用户的数据源",
			slog.Int64("user_id", userID),
			slog.Int64("data_source_id", *id),
		)
		return xerrors.Wrap(CodeTaskValidation, err, "关联的数据源不存在")
	}
	return err
}
