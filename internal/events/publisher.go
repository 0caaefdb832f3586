package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/familyshare/familyshare/internal/metrics"
)

const (
	// StreamKey is the Redis stream for workflow events.
	StreamKey = "stream:workflow_events"

	// MaxStreamLen caps the stream (approximately) so an idle auditor
	// cannot grow it without bound.
	MaxStreamLen = 100000

	// PublishTimeout bounds one XADD issued by Emit.
	PublishTimeout = 500 * time.Millisecond

	// MaxInFlight bounds concurrent Emit deliveries. Extra events are dropped.
	MaxInFlight = 64
)

// Publisher appends workflow events to a Redis stream.
type Publisher struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder

	slots chan struct{}

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher creates a publisher on client.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		client:  client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
		slots:   make(chan struct{}, MaxInFlight),
	}
}

// Publish appends e and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, e Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		Values: map[string]any{
			"type":      e.Type,
			"entity_id": e.EntityID,
			"payload":   string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", StreamKey, err)
	}
	return id, nil
}

// Emit delivers e in the background. Failures, overflow and events emitted
// after Close are logged and counted, never returned.
func (p *Publisher) Emit(_ context.Context, e Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.drop(e, "closed")
		return
	}
	select {
	case p.slots <- struct{}{}:
	default:
		p.mu.Unlock()
		p.drop(e, "backlog")
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		id, err := p.Publish(ctx, e)
		if err != nil {
			p.logger.Warn("workflow_event_dropped", "type", e.Type, "entity_id", e.EntityID, "error", err)
			p.metrics.IncEventPublished("dropped")
			return
		}
		p.logger.Debug("workflow_event_published", "type", e.Type, "entity_id", e.EntityID, "stream_id", id)
		p.metrics.IncEventPublished("success")
	}()
}

func (p *Publisher) drop(e Event, reason string) {
	p.logger.Warn("workflow_event_dropped", "type", e.Type, "entity_id", e.EntityID, "reason", reason)
	p.metrics.IncEventPublished("dropped")
}

// Close stops accepting events, then waits for in-flight deliveries or until
// ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to flush workflow events: %w", ctx.Err())
	}
}
