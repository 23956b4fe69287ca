package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"Lumin-Agent/internal/datasource"
	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/llm"
	"Lumin-Agent/pkg/logger"
)

// DefaultKeywords 是进入模型分类前必须命中的关键词之一。
var DefaultKeywords = []string{"task", "todo", "remind", "project", "assign", "delete task"}

// CodeParseFailed 表示模型输出不是合法的意图 JSON。
const CodeParseFailed xerrors.Code = "INTENT_PARSE_FAILED"

func init() {
	xerrors.Register(CodeParseFailed, xerrors.Attributes{
		Message:       "intent output is not valid json",
		PublicMessage: "The assistant could not understand the request.",
		Severity:      xerrors.SeverityWarning,
		HTTPStatus:    http.StatusBadGateway,
	})
}

const systemPrompt = `You are a Task Management Assistant. Determine if the user wants to create, update, delete, or list tasks (todos).
Return only a JSON object with exactly these keys:
{
  "is_task": true or false,
  "action": "create" | "update" | "delete" | "list" | "none",
  "task_details": {
    "title": string or null,
    "description": string or null,
    "status": "pending" | "in-progress" | "completed" | null,
    "priority": "low" | "medium" | "high" | null,
    "data_source_id": number or null
  }
}
For update and delete, "title" is the words the user used to refer to the existing task.
Only use a data_source_id from the provided list.`

// Classifier 识别提问中的任务意图。
type Classifier struct {
	client      llm.Client
	keywords    []string
	temperature float64
	log         *slog.Logger
}

// Option 用于定制 Classifier。
type Option func(*Classifier)

// WithKeywords 替换关键词列表，空列表保留默认值。
func WithKeywords(keywords ...string) Option {
	return func(c *Classifier) {
		cleaned := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				cleaned = append(cleaned, kw)
			}
		}
		if len(cleaned) > 0 {
			c.keywords = cleaned
		}
	}
}

// WithTemperature 设置分类时的采样温度。
func WithTemperature(t float64) Option {
	return func(c *Classifier) {
		c.temperature = t
	}
}

// NewClassifier 创建 Classifier。
func NewClassifier(client llm.Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:   client,
		keywords: DefaultKeywords,
		log:      logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// MatchesKeyword 判断提问是否包含任一关键词（忽略大小写）。
func (c *Classifier) MatchesKeyword(question string) bool {
	lowered := strings.ToLower(question)
	for _, kw := range c.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// Classify 返回提问的意图。未命中关键词时不会调用模型。
// 模型调用失败会返回错误；模型输出无法解析时返回非任务意图。
func (c *Classifier) Classify(ctx context.Context, question string, sources []datasource.Ref, model string) (Intent, error) {
	if !c.MatchesKeyword(question) {
		return None(), nil
	}
	if c.client == nil {
		return None(), xerrors.New(xerrors.CodeInitializationFailure, "大模型客户端未初始化")
	}

	raw, err := c.client.Complete(ctx, llm.Request{
		Model:       model,
		System:      systemPrompt,
		Prompt:      buildPrompt(question, sources),
		Temperature: c.temperature,
		JSON:        true,
	})
	if err != nil {
		return None(), err
	}

	result, err := parse(raw)
	if err != nil {
		c.log.Warn("意图解析失败，按非任务处理",
			slog.String("raw_output", raw),
			slog.Any("error", err),
		)
		return None(), nil
	}

	c.groundDataSource(&result.Details, sources)
	c.log.Debug("意图识别完成",
		slog.Bool("is_task", result.IsTask),
		slog.String("action", string(result.Action)),
	)
	return result, nil
}

// groundDataSource 只保留属于当前用户的数据源。模型写成名称时按名称
// （忽略大小写）匹配，匹配不到或无法识别时置空，任务意图本身保持不变。
func (c *Classifier) groundDataSource(d *Details, sources []datasource.Ref) {
	switch {
	case d.DataSourceID != nil:
		if _, ok := datasource.FindRef(sources, int64(*d.DataSourceID)); !ok {
			c.log.Warn("模型给出的数据源不属于当前用户，已忽略", slog.Int64("data_source_id", int64(*d.DataSourceID)))
			d.DataSourceID = nil
		}
	case d.dataSourceName != "":
		for _, ref := range sources {
			if strings.EqualFold(strings.TrimSpace(ref.Name), d.dataSourceName) {
				id := FlexInt(ref.ID)
				d.DataSourceID = &id
				break
			}
		}
		if d.DataSourceID == nil {
			c.log.Warn("模型给出的数据源名称未匹配到当前用户的数据源，已忽略", slog.String("data_source", d.dataSourceName))
		}
	case d.dataSourceRaw != "":
		c.log.Warn("无法识别模型给出的 data_source_id，已忽略", slog.String("data_source_id", d.dataSourceRaw))
	}
	d.dataSourceName, d.dataSourceRaw = "", ""
}

func buildPrompt(question string, sources []datasource.Ref) string {
	if sources == nil {
		sources = []datasource.Ref{}
	}
	encoded, _ := json.Marshal(sources)
	return fmt.Sprintf("Contextual DataSources: %s\n\nUser Question: %s", encoded, question)
}

// parse 从模型输出中取出 JSON 对象，兼容 ``` 代码块与前后多余的文字。
func parse(raw string) (Intent, error) {
	body := extractObject(raw)
	if body == "" {
		return None(), xerrors.New(CodeParseFailed, "模型输出中没有 JSON 对象")
	}
	var out Intent
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return None(), xerrors.Wrap(CodeParseFailed, err, "解析意图 JSON 失败")
	}
	out.Action = ParseAction(string(out.Action))
	if !out.IsTask {
		out.Action = ActionNone
	}
	return out, nil
}

func extractObject(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
