package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TypeSweepRefreshTokens = "sweep_refresh_tokens"

// Task is one unit of maintenance work, either run in-process or carried as
// a stream message to the worker.
type Task struct {
	Type        string `json:"type"`
	RequestedAt string `json:"requestedAt,omitempty"`
}

func NewTask(taskType string, now time.Time) Task {
	return Task{Type: taskType, RequestedAt: now.UTC().Format(time.RFC3339Nano)}
}

// Values renders the task as stream message fields.
func (t Task) Values() map[string]any {
	return map[string]any{
		"type":        t.Type,
		"requestedAt": t.RequestedAt,
	}
}

type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Processor struct {
	sweeper Sweeper
	logger  zerolog.Logger
}

func NewProcessor(sweeper Sweeper, logger zerolog.Logger) *Processor {
	return &Processor{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Handle decodes a stream message and runs the task it carries. A payload
// that cannot be decoded is logged and dropped so it gets acked.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var task Task
	if err := decodePayload(msg.Values, &task); err != nil {
		p.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Interface("values", msg.Values).
			Msg("dropping undecodable task")
		return nil
	}
	return p.Dispatch(ctx, task)
}

func (p *Processor) Dispatch(ctx context.Context, task Task) error {
	switch task.Type {
	case TypeSweepRefreshTokens:
		return p.handleSweep(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *Task) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSweep(ctx context.Context, task Task) error {
	start := time.Now()
	removed, err := p.sweeper.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep refresh tokens: %w", err)
	}
	p.logger.Info().
		Int64("removed", removed).
		Str("requested_at", task.RequestedAt).
		Dur("took", time.Since(start)).
		Msg("expired refresh tokens swept")
	return nil
}
