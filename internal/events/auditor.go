package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/familyshare/familyshare/internal/metrics"
)

const (
	// ConsumerGroup is the Redis consumer group of the audit writers.
	ConsumerGroup = "workflow_auditors"

	// DeadLetterStreamKey holds events that could not be decoded.
	DeadLetterStreamKey = "stream:workflow_events:dlq"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 200

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the max retries for batch processing.
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second
)

// AuditRecord is an event as stored in the audit log. StreamID is the
// idempotency key.
type AuditRecord struct {
	StreamID string `json:"stream_id"`
	Event
}

// AuditStore persists audit records. Inserting a StreamID twice is a no-op.
type AuditStore interface {
	InsertAuditRecords(ctx context.Context, records []AuditRecord) error
}

// Auditor copies workflow events from the Redis stream into the audit log.
type Auditor struct {
	redis         *redis.Client
	store         AuditStore
	logger        *slog.Logger
	metrics       metrics.Recorder
	consumerID    string
	batchSize     int
	blockTimeout  time.Duration
	maxRetries    int
	claimInterval time.Duration
	claimIdle     time.Duration
	claimStartID  string
	lastClaim     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewAuditor creates an audit consumer.
func NewAuditor(client *redis.Client, store AuditStore, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Auditor {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Auditor{
		redis:         client,
		store:         store,
		logger:        logger.With("component", "events.auditor", "consumer_id", consumerID),
		metrics:       recorder,
		consumerID:    consumerID,
		batchSize:     DefaultBatchSize,
		blockTimeout:  DefaultBlockTimeout,
		maxRetries:    DefaultMaxRetries,
		claimInterval: DefaultClaimInterval,
		claimIdle:     DefaultClaimIdle,
		claimStartID:  "0-0",
	}
}

// NewConsumerID creates a stable-ish consumer ID for Redis consumer groups.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "auditor"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

// Run starts the consumer loop. Blocks until context is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("auditor already started")
	}
	a.started = true
	a.done = make(chan struct{})
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	defer close(a.done)

	if err := a.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	a.logger.Info("auditor started")

	for {
		a.mu.Lock()
		draining := a.draining
		a.mu.Unlock()

		if draining {
			a.logger.Info("auditor draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			a.logger.Info("auditor stopping")
			return ctx.Err()
		default:
			if err := a.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				a.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown stops the consumer after the in-flight batch.
// It matches server.ShutdownFunc.
func (a *Auditor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.draining = true
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			a.logger.Info("auditor shutdown complete")
			return nil
		case <-ctx.Done():
			a.logger.Warn("auditor shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

func (a *Auditor) ensureConsumerGroup(ctx context.Context) error {
	err := a.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce reads and stores a single batch.
func (a *Auditor) processOnce(ctx context.Context) error {
	claimed, err := a.maybeClaimPending(ctx)
	if err != nil {
		a.logger.Warn("failed to claim pending messages", "error", err)
	}

	messages := claimed
	if len(messages) == 0 {
		messages, err = a.readBatch(ctx)
		if err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	records, messageIDs := a.parseMessages(ctx, messages)
	if len(records) == 0 {
		return a.ackMessages(ctx, messageIDs)
	}

	if err := a.storeWithRetry(ctx, records); err != nil {
		a.logger.Error("audit batch failed after retries",
			"batch_size", len(records),
			"error", err,
		)
		// Left pending for a later claim.
		return err
	}

	return a.ackMessages(ctx, messageIDs)
}

func (a *Auditor) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if a.claimInterval <= 0 || a.claimIdle <= 0 {
		return nil, nil
	}
	if !a.lastClaim.IsZero() && time.Since(a.lastClaim) < a.claimInterval {
		return nil, nil
	}

	a.lastClaim = time.Now()
	messages, start, err := a.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: a.consumerID,
		MinIdle:  a.claimIdle,
		Start:    a.claimStartID,
		Count:    int64(a.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		a.claimStartID = start
	}
	return messages, nil
}

// SetBatchSize overrides the default batch size.
func (a *Auditor) SetBatchSize(size int) {
	if size > 0 {
		a.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (a *Auditor) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		a.blockTimeout = timeout
	}
}

func (a *Auditor) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := a.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: a.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(a.batchSize),
		Block:    a.blockTimeout,
	}).Result()

	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// parseMessages decodes stream entries. Poison messages go to the
// dead-letter stream and are still acknowledged.
func (a *Auditor) parseMessages(ctx context.Context, messages []redis.XMessage) ([]AuditRecord, []string) {
	records := make([]AuditRecord, 0, len(messages))
	messageIDs := make([]string, 0, len(messages))

	for _, msg := range messages {
		messageIDs = append(messageIDs, msg.ID)

		e, reason, err := decodeMessage(msg)
		if err != nil {
			a.deadLetter(ctx, msg, reason, err.Error())
			continue
		}
		records = append(records, AuditRecord{StreamID: msg.ID, Event: e})
	}
	return records, messageIDs
}

func decodeMessage(msg redis.XMessage) (Event, string, error) {
	var e Event
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return e, "invalid_format", errors.New("payload field missing or not a string")
	}
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, "unmarshal_error", err
	}
	if err := Validate(e); err != nil {
		return e, "validation_error", err
	}
	return e, "", nil
}

func (a *Auditor) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	a.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	_, err := a.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		a.logger.Error("failed to write to dead-letter queue",
			"message_id", msg.ID,
			"error", err,
		)
	}

	a.metrics.IncEventAudited("dead_lettered")
}

// storeWithRetry writes a batch with exponential backoff.
func (a *Auditor) storeWithRetry(ctx context.Context, records []AuditRecord) error {
	var lastErr error

	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		err := a.store.InsertAuditRecords(ctx, records)
		if err == nil {
			a.logger.Debug("audit batch stored", "events_count", len(records))
			for range records {
				a.metrics.IncEventAudited("success")
			}
			return nil
		}
		lastErr = err
		backoff := time.Duration(1<<attempt) * time.Second
		a.logger.Warn("audit batch failed, retrying",
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", err,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for range records {
		a.metrics.IncEventAudited("failed")
	}
	return lastErr
}

func (a *Auditor) ackMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := a.redis.XAck(ctx, StreamKey, ConsumerGroup, messageIDs...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		err.Error() == "BUSYGROUP")
}
