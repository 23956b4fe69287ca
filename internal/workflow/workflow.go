package workflow

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Lumin-Agent/internal/conversation"
	"Lumin-Agent/internal/datasource"
	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/internal/intent"
	"Lumin-Agent/internal/observability/alerting"
	"Lumin-Agent/internal/task"
	"Lumin-Agent/pkg/logger"
)

// GenericAnswer 是非任务提问的固定回复。
const GenericAnswer = "I'm your Project Assistant! I can help you create tasks and link them to your data. " +
	"Try: 'Add a task to review the Sales dataset outliers'."

// CodeWorkflowFailed 表示工作流遇到了未归类的内部错误。
const CodeWorkflowFailed xerrors.Code = "WORKFLOW_FAILED"

func init() {
	xerrors.Register(CodeWorkflowFailed, xerrors.Attributes{
		Message:       "workflow failed",
		PublicMessage: "Something went wrong while handling your request. Please try again.",
		Severity:      xerrors.SeverityCritical,
		Alert:         true,
		HTTPStatus:    http.StatusInternalServerError,
	})
}

// Request 是一次工作流调用的输入。
type Request struct {
	Question       string
	ConversationID int64
	UserID         int64
	// Model 为空时使用默认模型。
	Model string
}

// Validate 检查请求参数。
func (r Request) Validate() error {
	if r.UserID <= 0 {
		return xerrors.New(xerrors.CodeUnauthenticated, "缺少用户身份")
	}
	if r.ConversationID <= 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "conversation_id 必须为正整数")
	}
	if strings.TrimSpace(r.Question) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "问题不能为空")
	}
	return nil
}

// Classifier 识别意图，intent.Classifier 是默认实现。
type Classifier interface {
	Classify(ctx context.Context, question string, sources []datasource.Ref, model string) (intent.Intent, error)
}

// Recorder 记录工作流的执行结果，用于指标。
type Recorder interface {
	ObserveWorkflow(action, result string, elapsed time.Duration)
}

// Orchestrator 执行任务工作流。
type Orchestrator struct {
	classifier Classifier
	directory  datasource.Directory
	engine     *task.Engine
	history    conversation.Log
	recorder   Recorder
	alerts     alerting.Dispatcher
	log        *slog.Logger
}

// Option 用于定制 Orchestrator。
type Option func(*Orchestrator)

// WithRecorder 设置指标记录器。
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithAlerts 设置告警分发器，只有标记为需要告警的错误会被发送。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.alerts = d
	}
}

// New 创建 Orchestrator。
func New(classifier Classifier, directory datasource.Directory, engine *task.Engine, history conversation.Log, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		directory:  directory,
		engine:     engine,
		history:    history,
		log:        logger.Named("workflow"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run 处理一句提问并把事件依次写入 sink。
//
// 返回 nil 表示终止回答已经送达。其余情况返回错误：
// 如果调用方仍在接收，返回前已经推送了携带公开文案与错误码的 error 事件。
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if o.classifier == nil || o.directory == nil || o.engine == nil || o.history == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "工作流未初始化")
	}

	run := &execution{o: o, req: req, sink: sink, started: time.Now(), action: intent.ActionNone}
	err := run.execute(ctx)
	run.finish(ctx, err)
	return err
}

// execution 保存单次调用的状态。
type execution struct {
	o       *Orchestrator
	req     Request
	sink    Sink
	started time.Time
	action  intent.Action
	// closed 表示调用方已经断开，不能再推送任何事件。
	closed bool
}

func (e *execution) execute(ctx context.Context) error {
	sources, err := e.o.directory.ListByUser(ctx, e.req.UserID)
	if err != nil {
		return e.fail(ctx, "load_datasources", err)
	}
	refs := datasource.Refs(sources)

	detected, err := e.o.classifier.Classify(ctx, e.req.Question, refs, e.req.Model)
	if err != nil {
		return e.fail(ctx, "classify", err)
	}
	if detected.Actionable() {
		e.action = detected.Action
	}
	if err := e.emit(ctx, Event{Status: StatusAnalyzingIntent, Action: string(e.action)}); err != nil {
		return err
	}

	if !detected.Actionable() {
		return e.emit(ctx, Event{Answer: GenericAnswer})
	}

	outcome, err := e.dispatch(ctx, detected, refs)
	if err != nil {
		return e.fail(ctx, "mutate", err)
	}
	answer := outcome.Message()
	e.o.log.Info("任务工作流执行完成",
		slog.Int64("user_id", e.req.UserID),
		slog.Int64("conversation_id", e.req.ConversationID),
		slog.String("action", string(e.action)),
		slog.String("outcome", string(outcome.Kind)),
	)

	// 变更已经提交，会话记录不随客户端断开而放弃。
	persistCtx := context.WithoutCancel(ctx)
	if _, err := e.o.history.Append(persistCtx, conversation.AssistantAnswer(e.req.ConversationID, answer)); err != nil {
		return e.fail(ctx, "persist_message", err)
	}
	return e.emit(ctx, Event{Answer: answer})
}

func (e *execution) dispatch(ctx context.Context, detected intent.Intent, refs []datasource.Ref) (task.Outcome, error) {
	patch := detected.Patch(e.o.log)
	switch detected.Action {
	case intent.ActionCreate:
		return e.o.engine.Create(ctx, e.req.UserID, e.req.Question, patch, refs)
	case intent.ActionUpdate:
		return e.o.engine.Update(ctx, e.req.UserID, e.req.Question, patch, refs)
	case intent.ActionDelete:
		return e.o.engine.Delete(ctx, e.req.UserID, e.req.Question, patch)
	case intent.ActionList:
		return e.o.engine.List(ctx, e.req.UserID)
	default:
		return task.Outcome{}, xerrors.New(CodeWorkflowFailed, "未知的任务动作: "+string(detected.Action))
	}
}

// emit 推送事件。上下文已取消或 sink 写入失败时标记连接关闭并返回 CANCELED。
func (e *execution) emit(ctx context.Context, event Event) error {
	if e.closed {
		return xerrors.New(xerrors.CodeCanceled, "客户端连接已断开")
	}
	if err := ctx.Err(); err != nil {
		e.closed = true
		return xerrors.Wrap(xerrors.CodeCanceled, err, "请求已取消")
	}
	if err := e.sink.Emit(ctx, event); err != nil {
		e.closed = true
		return xerrors.Wrap(xerrors.CodeCanceled, err, "推送事件失败，客户端可能已断开")
	}
	return nil
}

// fail 把内部错误归一化，并在调用方仍在线时推送 error 事件。
func (e *execution) fail(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil || stdErrors.Is(err, context.Canceled) {
		e.closed = true
		return xerrors.Wrap(xerrors.CodeCanceled, err, "请求已取消")
	}
	if _, ok := xerrors.From(err); !ok {
		err = xerrors.Wrap(CodeWorkflowFailed, err, "工作流执行失败", xerrors.WithMetadata("stage", stage))
	}
	event := Event{
		Status: StatusError,
		Action: string(e.action),
		Error:  xerrors.PublicMessageOf(err),
		Code:   string(xerrors.CodeOf(err)),
	}
	if emitErr := e.emit(ctx, event); emitErr != nil {
		e.o.log.Warn("错误事件推送失败", slog.Any("error", emitErr))
	}
	return err
}

func (e *execution) finish(ctx context.Context, err error) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(xerrors.CodeOf(err)))
	}
	if e.o.recorder != nil {
		e.o.recorder.ObserveWorkflow(string(e.action), result, time.Since(e.started))
	}
	if err == nil || xerrors.CodeOf(err) == xerrors.CodeCanceled {
		return
	}

	attrs := []any{
		slog.Int64("user_id", e.req.UserID),
		slog.Int64("conversation_id", e.req.ConversationID),
		slog.String("action", string(e.action)),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	}
	switch xerrors.SeverityOf(err) {
	case xerrors.SeverityCritical:
		e.o.log.Error("任务工作流失败", attrs...)
	case xerrors.SeverityWarning:
		e.o.log.Warn("任务工作流失败", attrs...)
	default:
		e.o.log.Info("任务工作流失败", attrs...)
	}

	if e.o.alerts == nil || !xerrors.AlertOf(err) {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	alert := alerting.FromError(err)
	alert.Metadata["user_id"] = strconv.FormatInt(e.req.UserID, 10)
	alert.Metadata["conversation_id"] = strconv.FormatInt(e.req.ConversationID, 10)
	alert.Metadata["action"] = string(e.action)
	if notifyErr := e.o.alerts.Notify(alertCtx, alert); notifyErr != nil {
		e.o.log.Warn("告警发送失败", slog.Any("error", notifyErr))
	}
}
