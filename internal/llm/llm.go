package llm

import (
	"context"
	stdErrors "errors"
	"net/http"

	xerrors "Lumin-Agent/internal/errors"
)

// Request 描述一次文本补全请求。
type Request struct {
	// Model 为空时使用提供方的默认模型。
	Model  string
	System string
	Prompt string
	// Temperature 为 0 时使用提供方默认值。
	Temperature float64
	// JSON 提示提供方尽量以 JSON 对象作答。
	JSON bool
}

// Client 定义了调用大模型的统一接口。实现必须是并发安全的。
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc 允许使用普通函数实现 Client。
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete 实现 Client 接口。
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// CodeUpstream 表示模型服务返回了错误或不可用。
const CodeUpstream xerrors.Code = "LLM_UPSTREAM_FAILURE"

func init() {
	xerrors.Register(CodeUpstream, xerrors.Attributes{
		Message:       "language model call failed",
		PublicMessage: "The assistant is unavailable right now. Please try again.",
		Severity:      xerrors.SeverityWarning,
		Retryable:     true,
		HTTPStatus:    http.StatusBadGateway,
	})
}

// UpstreamError 把提供方返回的错误归一为统一错误码。
// 超时与取消分别映射为 TIMEOUT 与 CANCELED，其余错误映射为 LLM_UPSTREAM_FAILURE。
func UpstreamError(provider string, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return xerrors.Wrap(xerrors.CodeTimeout, err, provider+" 调用超时", xerrors.WithMetadata("provider", provider))
	case stdErrors.Is(err, context.Canceled):
		return xerrors.Wrap(xerrors.CodeCanceled, err, provider+" 调用被取消", xerrors.WithMetadata("provider", provider))
	}
	return xerrors.Wrap(CodeUpstream, err, provider+" 调用失败",
		xerrors.WithRetryable(retryable),
		xerrors.WithMetadata("provider", provider),
	)
}

// RetryableStatus 判断 HTTP 状态码是否值得重试。
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= http.StatusInternalServerError
}
