package llm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	xerrors "Lumin-Agent/internal/errors"
	"Lumin-Agent/pkg/logger"
)

const (
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// RetryPolicy 描述重试次数与退避区间。MaxAttempts 小于等于 1 时不重试。
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryClient 为任意 Client 增加单次超时、限流与重试。
// 只有被标记为可重试的统一错误才会触发重试。
type RetryClient struct {
	next    Client
	policy  RetryPolicy
	timeout time.Duration
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

// RetryOption 用于定制 RetryClient。
type RetryOption func(*RetryClient)

// WithRetryPolicy 设置重试策略。
func WithRetryPolicy(policy RetryPolicy) RetryOption {
	return func(c *RetryClient) {
		c.policy = policy
	}
}

// WithAttemptTimeout 为每次调用设置超时，0 表示沿用上游 context。
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(c *RetryClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit 限制每秒请求数，rps 小于等于 0 时不限流。
func WithRateLimit(rps float64, burst int) RetryOption {
	return func(c *RetryClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewRetryClient 包装下游 Client。
func NewRetryClient(next Client, opts ...RetryOption) *RetryClient {
	c := &RetryClient{
		next:   next,
		policy: RetryPolicy{MaxAttempts: 1},
		sleep:  sleepContext,
		log:    logger.Named("llm"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.policy.MaxAttempts <= 0 {
		c.policy.MaxAttempts = 1
	}
	if c.policy.InitialBackoff <= 0 {
		c.policy.InitialBackoff = defaultInitialBackoff
	}
	if c.policy.MaxBackoff < c.policy.InitialBackoff {
		c.policy.MaxBackoff = defaultMaxBackoff
		if c.policy.MaxBackoff < c.policy.InitialBackoff {
			c.policy.MaxBackoff = c.policy.InitialBackoff
		}
	}
	return c
}

// Complete 实现 Client 接口。
func (c *RetryClient) Complete(ctx context.Context, req Request) (string, error) {
	backoff := c.policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", UpstreamError("ratelimit", err, false)
			}
		}

		out, err := c.attempt(ctx, req)
		if err == nil {
			return out, nil
		}
		if attempt >= c.policy.MaxAttempts || !xerrors.RetryableError(err) || ctx.Err() != nil {
			return "", err
		}

		c.log.Warn("模型调用失败，准备重试",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return "", UpstreamError("retry", err, false)
		}
		backoff *= 2
		if backoff > c.policy.MaxBackoff {
			backoff = c.policy.MaxBackoff
		}
	}
}

func (c *RetryClient) attempt(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.next.Complete(ctx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Client = (*RetryClient)(nil)
