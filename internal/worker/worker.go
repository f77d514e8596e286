package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"courier.chat/relay/common/logger"
	"courier.chat/relay/internal/queue"
)

type Config struct {
	MaxAttempts int
}

// Worker drives the compaction loop: read a batch from the stream, process
// each job, ack on success and requeue or dead-letter on failure.
type Worker struct {
	consumer  *queue.RedisConsumer
	compactor *Compactor
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, compactor *Compactor, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		compactor: compactor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker",
	})

	slog.InfoContext(ctx, "compaction worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "compaction worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "compaction job failed",
				"error", err,
				"message_id", msg.ID,
				"conversation_id", msg.ConversationID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in compaction job",
				"panic", r,
				"message_id", msg.ID,
				"conversation_id", msg.ConversationID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one job and acks it when settled. Exported so it can be
// reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	// Link back to the turn's trace so the queued hop shows up end to end.
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "relay.worker.compact",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = sc.Context()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(msg.ConversationID),
		JobID:          logger.Ptr(msg.ID),
	})

	slog.InfoContext(ctx, "processing compaction job",
		"assistant_message_id", msg.AssistantMessageID,
		"attempt", msg.Attempt)

	start := time.Now()
	outcome, err := w.compactor.Process(ctx, msg)
	if err != nil {
		sc.RecordError(err)
		// Not acked; the message is retried via the requeue path.
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The job is idempotent, so an eventual redelivery settles as a no-op.
		slog.WarnContext(ctx, "failed to ack settled job", "error", err)
	}

	slog.InfoContext(ctx, "compaction job settled",
		"outcome", string(outcome),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"conversation_id", msg.ConversationID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed compaction job",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
