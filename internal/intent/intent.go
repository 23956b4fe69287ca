package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"Lumin-Agent/internal/task"
)

// Action 是识别出的任务操作。
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
	ActionNone   Action = "none"
)

// ParseAction 把模型输出的动作归一化，未知值视为 none。
func ParseAction(raw string) Action {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionList:
		return a
	default:
		return ActionNone
	}
}

// Details 是模型抽取出的任务字段，全部可空。
type Details struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Status       *string  `json:"status"`
	Priority     *string  `json:"priority"`
	DataSourceID *FlexInt `json:"data_source_id"`

	// dataSourceName 记录模型把数据源写成名称的情况，由 Classifier 按名称匹配。
	dataSourceName string
	// dataSourceRaw 记录无法识别的 data_source_id 原文，只用于日志。
	dataSourceRaw string
}

// UnmarshalJSON 宽松解析 data_source_id：数字、整数值的浮点数与数字字符串
// 都视为 ID，其余字符串按数据源名称处理，无法识别的值置空，不影响其他字段。
func (d *Details) UnmarshalJSON(data []byte) error {
	type plain Details
	var aux struct {
		*plain
		DataSourceID json.RawMessage `json:"data_source_id"`
	}
	aux.plain = (*plain)(d)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.DataSourceID, d.dataSourceName, d.dataSourceRaw = nil, "", ""

	raw := bytes.TrimSpace(aux.DataSourceID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var id FlexInt
	if err := id.UnmarshalJSON(raw); err == nil {
		d.DataSourceID = &id
		return nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		d.dataSourceName = strings.TrimSpace(name)
		return nil
	}
	d.dataSourceRaw = string(raw)
	return nil
}

// Intent 是一次分类的结果，只在单次工作流中存在。
type Intent struct {
	IsTask  bool    `json:"is_task"`
	Action  Action  `json:"action"`
	Details Details `json:"task_details"`
}

// None 返回非任务意图。
func None() Intent {
	return Intent{Action: ActionNone}
}

// Actionable 判断是否需要进入任务分支。
func (i Intent) Actionable() bool {
	return i.IsTask && i.Action != ActionNone
}

// Patch 把抽取字段转成任务补丁。空字符串视为未提供，无法识别的状态与优先级会被丢弃并记录日志。
func (i Intent) Patch(log *slog.Logger) task.Patch {
	var patch task.Patch
	d := i.Details
	if v := trimmed(d.Title); v != nil {
		patch.Title = v
	}
	if v := trimmed(d.Description); v != nil {
		patch.Description = v
	}
	if v := trimmed(d.Status); v != nil {
		if status, ok := task.ParseStatus(*v); ok {
			patch.Status = &status
		} else if log != nil {
			log.Warn("忽略无法识别的任务状态", slog.String("status", *v))
		}
	}
	if v := trimmed(d.Priority); v != nil {
		if priority, ok := task.ParsePriority(*v); ok {
			patch.Priority = &priority
		} else if log != nil {
			log.Warn("忽略无法识别的任务优先级", slog.String("priority", *v))
		}
	}
	if d.DataSourceID != nil {
		id := int64(*d.DataSourceID)
		patch.DataSourceID = &id
	}
	return patch
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// FlexInt 兼容模型把数字输出成字符串或浮点数的情况，例如 "12"、4.0。
type FlexInt int64

// UnmarshalJSON 实现 json.Unmarshaler。
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}
	n, err := parseWholeNumber(strings.TrimSpace(text))
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

func parseWholeNumber(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, fmt.Errorf("%q 不是整数", s)
	}
	return int64(v), nil
}
