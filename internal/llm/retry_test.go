package llm

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Lumin-Agent/internal/errors"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return "ok", nil
}

func TestRetryClientRetriesRetryableErrors(t *testing.T) {
	next := &scriptedClient{errs: []error{
		UpstreamError("test", stdErrors.New("503"), true),
		UpstreamError("test", stdErrors.New("429"), true),
	}}
	client := NewRetryClient(next, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out, err := client.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, slept)
}

func TestRetryClientStopsOnPermanentError(t *testing.T) {
	next := &scriptedClient{errs: []error{UpstreamError("test", stdErrors.New("401"), false)}}
	client := NewRetryClient(next, WithRetryPolicy(RetryPolicy{MaxAttempts: 5}))

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, CodeUpstream, xerrors.CodeOf(err))
}

func TestRetryClientDefaultsToSingleAttempt(t *testing.T) {
	next := &scriptedClient{errs: []error{UpstreamError("test", stdErrors.New("502"), true)}}
	client := NewRetryClient(next)

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestRetryClientAppliesAttemptTimeout(t *testing.T) {
	slow := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", UpstreamError("slow", ctx.Err(), true)
	})
	client := NewRetryClient(slow, WithAttemptTimeout(10*time.Millisecond))

	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
}

func TestRetryClientRateLimitHonoursContext(t *testing.T) {
	next := &scriptedClient{}
	client := NewRetryClient(next, WithRateLimit(0.001, 1))

	_, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestUpstreamErrorKeepsUnifiedErrors(t *testing.T) {
	original := xerrors.New(xerrors.CodeInvalidArgument, "bad")
	assert.Same(t, original, UpstreamError("x", original, true))
	assert.NoError(t, UpstreamError("x", nil, true))
	assert.Equal(t, xerrors.CodeCanceled, xerrors.CodeOf(UpstreamError("x", context.Canceled, true)))
}
