package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/familyshare/familyshare/internal/metrics"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisher_EmitCountsFailedDelivery(t *testing.T) {
	rec := metrics.NewInMemory()
	p := NewPublisher(unreachableRedis(t), discardLogger(), rec)

	p.Emit(context.Background(), validEvent())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	snap := rec.Snapshot()
	if snap.EventsDropped != 1 || snap.EventsPublished != 0 {
		t.Errorf("published=%d dropped=%d, want 0/1", snap.EventsPublished, snap.EventsDropped)
	}
}

func TestPublisher_EmitDropsWhenBacklogFull(t *testing.T) {
	rec := metrics.NewInMemory()
	p := NewPublisher(unreachableRedis(t), discardLogger(), rec)
	for i := 0; i < MaxInFlight; i++ {
		p.slots <- struct{}{}
	}

	p.Emit(context.Background(), validEvent())

	if got := rec.Snapshot().EventsDropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("Close() with nothing in flight error = %v", err)
	}
}

func TestPublisher_EmitAfterCloseIsDropped(t *testing.T) {
	rec := metrics.NewInMemory()
	p := NewPublisher(unreachableRedis(t), discardLogger(), rec)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	p.Emit(context.Background(), validEvent())

	if got := rec.Snapshot().EventsDropped; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if got := len(p.slots); got != 0 {
		t.Errorf("slots in use = %d, want 0", got)
	}
}

func TestPublisher_CloseDuringEmits(t *testing.T) {
	rec := metrics.NewInMemory()
	p := NewPublisher(unreachableRedis(t), discardLogger(), rec)

	const emitters = 8
	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Emit(context.Background(), validEvent())
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()

	// Every emit either ran to completion before Close returned or was
	// refused; none is still in flight.
	if got := len(p.slots); got != 0 {
		t.Errorf("slots in use after Close = %d, want 0", got)
	}
	if got := rec.Snapshot().EventsDropped; got != emitters {
		t.Errorf("dropped = %d, want %d", got, emitters)
	}
}
