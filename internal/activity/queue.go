package activity

import (
	"context"
)

// Handler 处理一条事件。
type Handler func(ctx context.Context, event Event) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Consumer 负责消费事件。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Publisher
	Consumer
}

// PublisherFunc 允许使用函数实现 Publisher。
type PublisherFunc func(ctx context.Context, event Event) error

// Publish 实现 Publisher 接口。
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
