package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Producer enqueues compaction jobs with at-least-once delivery. Enqueue
// failures are the caller's to absorb: compaction is best-effort and must
// never fail the turn that triggered it.
type Producer interface {
	Enqueue(ctx context.Context, job CompactionJob) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job CompactionJob) error {
	attempt := job.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"conversation_id":      job.ConversationID,
		"assistant_message_id": job.AssistantMessageID,
		"attempt":              attempt,
	}
	if job.TraceID != "" {
		fields["trace_id"] = job.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue compaction job: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued compaction job",
		"conversation_id", job.ConversationID,
		"assistant_message_id", job.AssistantMessageID,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
