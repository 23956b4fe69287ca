package task

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// SQLStore 使用 tasks 表记录任务，MySQL 与 SQLite 共用同一套语句。
// 连接池与迁移由 internal/storage/sqlstore 负责。
type SQLStore struct {
	db         *sql.DB
	lockClause string
	now        func() time.Time
}

// NewSQLStore 创建 SQLStore。driver 为 "mysql" 时读取-修改-写入会加行锁。
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	store := &SQLStore{db: db, now: time.Now}
	if driver == "mysql" {
		store.lockClause = " FOR UPDATE"
	}
	return store
}

const taskColumns = `id, user_id, data_source_id, title, description, status, priority, created_at, updated_at`

// Create 插入新的任务记录。
func (s *SQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if err := normalize(task); err != nil {
		return err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	const stmt = `INSERT INTO tasks
        (user_id, data_source_id, title, description, status, priority, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, stmt,
		task.UserID,
		nullInt64(task.DataSourceID),
		task.Title,
		nullString(task.Description),
		string(task.Status),
		string(task.Priority),
		now.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取任务 ID 失败")
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// Get 查询指定任务。
func (s *SQLStore) Get(ctx context.Context, userID, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	return scanTask(row)
}

// FindByTitle 实现 Store 接口。LIKE 通配符在片段中按字面量处理。
func (s *SQLStore) FindByTitle(ctx context.Context, userID int64, fragment string) (*Task, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil, ErrTaskNotFound
	}
	const stmt = `SELECT ` + taskColumns + ` FROM tasks
        WHERE user_id = ? AND LOWER(title) LIKE ? ESCAPE '!'
        ORDER BY created_at DESC, id DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, stmt, userID, likePattern(needle))
	return scanTask(row)
}

// List 实现 Store 接口。
func (s *SQLStore) List(ctx context.Context, userID int64, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	var builder strings.Builder
	args := []any{userID}
	builder.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`)
	if len(opts.Statuses) > 0 {
		builder.WriteString(` AND status IN (`)
		for i, status := range opts.Statuses {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString("?")
			args = append(args, string(status))
		}
		builder.WriteString(")")
	}
	if opts.Query != "" {
		builder.WriteString(` AND LOWER(title) LIKE ? ESCAPE '!'`)
		args = append(args, likePattern(strings.ToLower(opts.Query)))
	}
	builder.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ?`)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务列表失败")
	}
	return tasks, nil
}

// Update 在事务内完成读取、修改与回读，任一步失败都会回滚。
func (s *SQLStore) Update(ctx context.Context, userID, id int64, patch Patch) (*Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`+s.lockClause, id, userID))
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		now := s.now().UTC().Truncate(time.Millisecond)
		sets := make([]string, 0, 6)
		args := make([]any, 0, 8)
		if patch.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, strings.TrimSpace(*patch.Title))
		}
		if patch.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, nullString(*patch.Description))
		}
		if patch.Status != nil {
			sets = append(sets, "status = ?")
			args = append(args, string(*patch.Status))
		}
		if patch.Priority != nil {
			sets = append(sets, "priority = ?")
			args = append(args, string(*patch.Priority))
		}
		if patch.DataSourceID != nil {
			sets = append(sets, "data_source_id = ?")
			args = append(args, *patch.DataSourceID)
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, now.UnixMilli(), id, userID)

		stmt := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
		}
		patch.apply(current)
		current.UpdatedAt = now
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete 在事务内读取并删除任务。
func (s *SQLStore) Delete(ctx context.Context, userID, id int64) (*Task, error) {
	var deleted *Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`+s.lockClause, id, userID))
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除任务失败")
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return ErrTaskNotFound
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Stats 实现 Store 接口。
func (s *SQLStore) Stats(ctx context.Context, userID int64) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计任务失败")
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务统计失败")
		}
		stats.add(Status(status), count)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务统计失败")
	}
	return stats, nil
}

// CountByDataSource 实现 Store 接口。
func (s *SQLStore) CountByDataSource(ctx context.Context, userID, dataSourceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = ? AND data_source_id = ?`, userID, dataSourceID).Scan(&count)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计数据源关联任务失败")
	}
	return count, nil
}

// Close 连接池由调用方持有，这里不做处理。
func (s *SQLStore) Close() error { return nil }

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task         Task
		dataSourceID sql.NullInt64
		description  sql.NullString
		status       string
		priority     string
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&task.ID, &task.UserID, &dataSourceID, &task.Title, &description, &status, &priority, &createdAt, &updatedAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务失败")
	}
	if dataSourceID.Valid {
		id := dataSourceID.Int64
		task.DataSourceID = &id
	}
	task.Description = description.String
	task.Status = Status(status)
	task.Priority = Priority(priority)
	task.CreatedAt = time.UnixMilli(createdAt).UTC()
	task.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &task, nil
}

// likePattern 用 ! 转义 LIKE 通配符，构造包含匹配。
func likePattern(needle string) string {
	escaped := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(needle)
	return "%" + escaped + "%"
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ Store = (*SQLStore)(nil)
