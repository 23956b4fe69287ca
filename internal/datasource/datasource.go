// Package datasource is the directory of datasets a user has registered.
// The task workflow only needs the {id, name} pairs of the caller to ground
// the intent classifier and to validate task links.
package datasource

import (
	"context"
	"net/http"
	"strings"
	"time"

	xerrors "Lumin-Agent/internal/errors"
)

// Type 表示数据源的种类。
type Type string

const (
	TypeSpreadsheet Type = "spreadsheet"
	TypeDocument    Type = "document"
	TypeURL         Type = "url"
)

// Source 是用户登记的一个数据集。
type Source struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	Type          Type      `json:"type"`
	TableName     string    `json:"table_name,omitempty"`
	ConnectionURL string    `json:"connection_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Ref 是提供给分类器的最小上下文。
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory 管理用户的数据源，所有查询都限定在 userID 之内。
type Directory interface {
	ListByUser(ctx context.Context, userID int64) ([]Source, error)
	Get(ctx context.Context, userID, id int64) (*Source, error)
	Create(ctx context.Context, src Source) (*Source, error)
	Delete(ctx context.Context, userID, id int64) error
}

const (
	CodeNotFound   xerrors.Code = "DATASOURCE_NOT_FOUND"
	CodeValidation xerrors.Code = "DATASOURCE_VALIDATION_FAILED"
)

// ErrNotFound 表示数据源不存在或不属于当前用户。
var ErrNotFound = xerrors.New(CodeNotFound, "data source not found")

func init() {
	xerrors.Register(CodeNotFound, xerrors.Attributes{
		Message:       "data source not found",
		PublicMessage: "Data source not found.",
		Severity:      xerrors.SeverityInfo,
		HTTPStatus:    http.StatusNotFound,
	})
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Message:       "data source validation failed",
		PublicMessage: "The data source is invalid.",
		Severity:      xerrors.SeverityInfo,
		HTTPStatus:    http.StatusBadRequest,
	})
}

// Refs 提取 {id, name} 列表。
func Refs(sources []Source) []Ref {
	refs := make([]Ref, 0, len(sources))
	for _, src := range sources {
		refs = append(refs, Ref{ID: src.ID, Name: src.Name})
	}
	return refs
}

// FindRef 在列表中查找指定 id。
func FindRef(refs []Ref, id int64) (Ref, bool) {
	for _, ref := range refs {
		if ref.ID == id {
			return ref, true
		}
	}
	return Ref{}, false
}

// IsValidType 检查数据源类型。
func IsValidType(t Type) bool {
	switch t {
	case TypeSpreadsheet, TypeDocument, TypeURL:
		return true
	default:
		return false
	}
}

func validate(src *Source) error {
	src.Name = strings.TrimSpace(src.Name)
	if src.UserID <= 0 {
		return xerrors.New(CodeValidation, "数据源缺少所属用户")
	}
	if src.Name == "" {
		return xerrors.New(CodeValidation, "数据源名称不能为空")
	}
	if len([]rune(src.Name)) > 255 {
		return xerrors.New(CodeValidation, "数据源名称过长")
	}
	if src.Type == "" {
		src.Type = TypeURL
	}
	if !IsValidType(src.Type) {
		return xerrors.New(CodeValidation, "未知的数据源类型: "+string(src.Type))
	}
	return nil
}
