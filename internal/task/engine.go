package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"Lumin-Agent/internal/activity"
	"Lumin-Agent/internal/datasource"
	"Lumin-Agent/pkg/logger"
)

// OutcomeKind 区分一次变更的结果。
type OutcomeKind string

const (
	OutcomeCreated  OutcomeKind = "created"
	OutcomeUpdated  OutcomeKind = "updated"
	OutcomeNoChange OutcomeKind = "nothing_to_change"
	OutcomeDeleted  OutcomeKind = "deleted"
	OutcomeListed   OutcomeKind = "listed"
	OutcomeNotFound OutcomeKind = "not_found"
)

// Op 标识产生结果的操作。
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Outcome 是 Engine 各操作的结构化结果，Message 负责转成给用户看的文字。
type Outcome struct {
	Op   Op
	Kind OutcomeKind
	// Task 是被创建、修改、删除或命中但无需修改的任务。
	Task *Task
	// Tasks 仅在 OutcomeListed 时有值。
	Tasks []*Task
	// Reference 是查找时使用的片段。
	Reference string
	// DataSource 是创建时关联上的数据源。
	DataSource *datasource.Ref
	Changes    []string
}

const (
	defaultTitleCutoff = 50
	defaultListSize    = 5
)

// Engine 根据抽取出的字段执行任务的增删改查，所有操作都限定在 userID 之内。
type Engine struct {
	store       Store
	resolver    *Resolver
	notify      notifier
	titleCutoff int
	listSize    int
	log         *slog.Logger
}

// EngineOption 用于定制 Engine。
type EngineOption func(*Engine)

// WithTitleCutoff 设置缺少标题时截取提问的字符数。
func WithTitleCutoff(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.titleCutoff = n
		}
	}
}

// WithListSize 设置列表操作返回的最大条数。
func WithListSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.listSize = n
		}
	}
}

// WithPublisher 设置任务动态的投递目标。
func WithPublisher(p activity.Publisher) EngineOption {
	return func(e *Engine) {
		e.notify.publisher = p
	}
}

// NewEngine 创建 Engine。
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		resolver:    NewResolver(store),
		notify:      newNotifier(nil, "workflow"),
		titleCutoff: defaultTitleCutoff,
		listSize:    defaultListSize,
		log:         logger.Named("task"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Create 新建任务。没有标题时用提问截断后的文字作为标题；
// 数据源只有在属于该用户时才会被关联。
func (e *Engine) Create(ctx context.Context, userID int64, question string, details Patch, sources []datasource.Ref) (Outcome, error) {
	title := ""
	if details.Title != nil {
		title = strings.TrimSpace(*details.Title)
	}
	// 回退标题取去掉首尾空白后的提问前 titleCutoff 个字符；
	// 入库时标题统一去掉首尾空白，截断点恰好是空格时会少一个字符。
	if title == "" {
		title = TruncateTitle(strings.TrimSpace(question), e.titleCutoff)
	}
	title = TruncateTitle(title, TitleMaxLength)

	task := &Task{UserID: userID, Title: title}
	if details.Description != nil {
		task.Description = strings.TrimSpace(*details.Description)
	}
	if details.Status != nil {
		task.Status = *details.Status
	}
	if details.Priority != nil {
		task.Priority = *details.Priority
	}
	ref := e.groundDataSource(userID, details.DataSourceID, sources)
	if ref != nil {
		id := ref.ID
		task.DataSourceID = &id
	}

	if err := e.store.Create(ctx, task); err != nil {
		return Outcome{}, err
	}
	e.notify.committed(ctx, activity.TypeTaskCreated, task, nil)
	return Outcome{Op: OpCreate, Kind: OutcomeCreated, Task: task, DataSource: ref}, nil
}

// Update 先定位任务，再只修改与当前值不同的字段。标题作为查找依据，不会被改写。
func (e *Engine) Update(ctx context.Context, userID int64, question string, details Patch, sources []datasource.Ref) (Outcome, error) {
	reference := Reference(details.Title, question)
	current, err := e.resolver.Resolve(ctx, userID, reference)
	if err != nil {
		return Outcome{}, err
	}
	if current == nil {
		return Outcome{Op: OpUpdate, Kind: OutcomeNotFound, Reference: reference}, nil
	}

	requested := Patch{
		Description: details.Description,
		Status:      details.Status,
		Priority:    details.Priority,
	}
	if ref := e.groundDataSource(userID, details.DataSourceID, sources); ref != nil {
		id := ref.ID
		requested.DataSourceID = &id
	}
	diff := requested.Diff(current)
	if diff.IsEmpty() {
		return Outcome{Op: OpUpdate, Kind: OutcomeNoChange, Task: current, Reference: reference}, nil
	}

	updated, err := e.store.Update(ctx, userID, current.ID, diff)
	if stdErrors.Is(err, ErrTaskNotFound) {
		return Outcome{Op: OpUpdate, Kind: OutcomeNotFound, Reference: reference}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	changes := diff.Fields()
	e.notify.committed(ctx, activity.TypeTaskUpdated, updated, changes)
	return Outcome{Op: OpUpdate, Kind: OutcomeUpdated, Task: updated, Reference: reference, Changes: changes}, nil
}

// Delete 定位并删除任务，未命中时不做任何修改。
func (e *Engine) Delete(ctx context.Context, userID int64, question string, details Patch) (Outcome, error) {
	reference := Reference(details.Title, question)
	current, err := e.resolver.Resolve(ctx, userID, reference)
	if err != nil {
		return Outcome{}, err
	}
	if current == nil {
		return Outcome{Op: OpDelete, Kind: OutcomeNotFound, Reference: reference}, nil
	}

	deleted, err := e.store.Delete(ctx, userID, current.ID)
	if stdErrors.Is(err, ErrTaskNotFound) {
		return Outcome{Op: OpDelete, Kind: OutcomeNotFound, Reference: reference}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	e.notify.committed(ctx, activity.TypeTaskDeleted, deleted, nil)
	return Outcome{Op: OpDelete, Kind: OutcomeDeleted, Task: deleted, Reference: reference}, nil
}

// List 返回最新创建的若干条任务。
func (e *Engine) List(ctx context.Context, userID int64) (Outcome, error) {
	tasks, err := e.store.List(ctx, userID, BuildListOptions(WithLimit(e.listSize)))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Op: OpList, Kind: OutcomeListed, Tasks: tasks}, nil
}

// groundDataSource 只接受出现在用户数据源列表中的 id，其余的丢弃并记录日志。
func (e *Engine) groundDataSource(userID int64, id *int64, sources []datasource.Ref) *datasource.Ref {
	if id == nil {
		return nil
	}
	ref, ok := datasource.FindRef(sources, *id)
	if !ok {
		e.log.Warn("忽略不属于用户的数据源",
			slog.Int64("user_id", userID),
			slog.Int64("data_source_id", *id),
		)
		return nil
	}
	return &ref
}
