package datasource

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// SQLDirectory 基于 data_sources 表实现 Directory，MySQL 与 SQLite 共用同一套语句。
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory 使用已打开并完成迁移的连接池。
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

const selectColumns = `SELECT id, user_id, name, type, table_name, connection_url, created_at FROM data_sources`

// ListByUser 实现 Directory 接口。
func (s *SQLDirectory) ListByUser(ctx context.Context, userID int64) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询数据源失败")
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历数据源失败")
	}
	return out, nil
}

// Get 实现 Directory 接口。
func (s *SQLDirectory) Get(ctx context.Context, userID, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND user_id = ?`, id, userID)
	src, err := scanSource(row)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Create 实现 Directory 接口。
func (s *SQLDirectory) Create(ctx context.Context, src Source) (*Source, error) {
	if err := validate(&src); err != nil {
		return nil, err
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO data_sources (user_id, name, type, table_name, connection_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		src.UserID, src.Name, string(src.Type), nullString(src.TableName), nullString(src.ConnectionURL), src.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入数据源失败")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取数据源 ID 失败")
	}
	src.ID = id
	src.CreatedAt = time.UnixMilli(src.CreatedAt.UnixMilli()).UTC()
	return &src, nil
}

// Delete 实现 Directory 接口。
func (s *SQLDirectory) Delete(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM data_sources WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除数据源失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取删除结果失败")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		src        Source
		typ        string
		tableName  sql.NullString
		connection sql.NullString
		createdAt  int64
	)
	if err := row.Scan(&src.ID, &src.UserID, &src.Name, &typ, &tableName, &connection, &createdAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析数据源失败")
	}
	src.Type = Type(typ)
	src.TableName = tableName.String
	src.ConnectionURL = connection.String
	src.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &src, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ Directory = (*SQLDirectory)(nil)
