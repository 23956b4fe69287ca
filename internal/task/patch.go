package task

import (
	"strings"

	xerrors "Lumin-Agent/internal/errors"
)

// Patch 列出可以被部分更新的字段，nil 表示不修改。
type Patch struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Status       *Status   `json:"status,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	DataSourceID *int64    `json:"data_source_id,omitempty"`
}

// IsEmpty 判断是否没有任何字段。
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && p.DataSourceID == nil
}

// Validate 校验出现的字段。
func (p Patch) Validate() error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return xerrors.New(CodeTaskValidation, "任务标题不能为空")
		}
		if len([]rune(title)) > TitleMaxLength {
			return xerrors.New(CodeTaskValidation, "任务标题过长")
		}
	}
	if p.Status != nil && !IsValidStatus(*p.Status) {
		return xerrors.New(CodeTaskValidation, "未知的任务状态: "+string(*p.Status))
	}
	if p.Priority != nil && !IsValidPriority(*p.Priority) {
		return xerrors.New(CodeTaskValidation, "未知的任务优先级: "+string(*p.Priority))
	}
	return nil
}

// Diff 返回只包含与当前任务不同字段的 Patch。
func (p Patch) Diff(current *Task) Patch {
	var out Patch
	if p.Title != nil && strings.TrimSpace(*p.Title) != current.Title {
		title := strings.TrimSpace(*p.Title)
		out.Title = &title
	}
	if p.Description != nil && *p.Description != current.Description {
		desc := *p.Description
		out.Description = &desc
	}
	if p.Status != nil && *p.Status != current.Status {
		status := *p.Status
		out.Status = &status
	}
	if p.Priority != nil && *p.Priority != current.Priority {
		priority := *p.Priority
		out.Priority = &priority
	}
	if p.DataSourceID != nil && (current.DataSourceID == nil || *current.DataSourceID != *p.DataSourceID) {
		id := *p.DataSourceID
		out.DataSourceID = &id
	}
	return out
}

// Fields 返回出现的字段名，用于日志与事件。
func (p Patch) Fields() []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.DataSourceID != nil {
		fields = append(fields, "data_source_id")
	}
	return fields
}

// apply 把 Patch 写入任务。
func (p Patch) apply(t *Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DataSourceID != nil {
		id := *p.DataSourceID
		t.DataSourceID = &id
	}
}
