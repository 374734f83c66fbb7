package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"templatedev/api/internal/tasks"
)

// Producer appends tasks to the maintenance stream for the worker.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Dispatch(ctx context.Context, task tasks.Task) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.Values(),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return nil
}
