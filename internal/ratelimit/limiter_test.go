package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return ctx.Err()
}

func newTestLimiter(perSecond, perMinute int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(Config{PerSecond: perSecond, PerMinute: perMinute})
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func seed(l *Limiter, key string, tr RateTracker) {
	l.trackers.Store(key, &entry{RateTracker: tr})
}

func TestLimiter_DefaultValues(t *testing.T) {
	l := New(Config{})
	if l.perSecond != 5 {
		t.Fatalf("expected default perSecond=5, got %d", l.perSecond)
	}
	if l.perMinute != 120 {
		t.Fatalf("expected default perMinute=120, got %d", l.perMinute)
	}
}

func TestLimiter_MinuteCeilingBlocks(t *testing.T) {
	l, clock := newTestLimiter(5, 120)
	key := Key("token", "chan-1")
	now := clock.now()
	seed(l, key, RateTracker{
		MessagesThisMinute:   120,
		MinuteWindowStart:    now.Add(-30 * time.Second),
		LastMessageTimestamp: now.Add(-5 * time.Second),
	})

	if err := l.Wait(context.Background(), key); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("expected exactly one delay, got %v", clock.sleeps)
	}
	if clock.sleeps[0] != 30*time.Second {
		t.Fatalf("expected 30s delay, got %v", clock.sleeps[0])
	}
	tr, _ := l.Tracker(key)
	if tr.MessagesThisMinute != 1 {
		t.Fatalf("expected minute counter 1 after reset, got %d", tr.MessagesThisMinute)
	}
}

func TestLimiter_MinuteWindowExpiredResets(t *testing.T) {
	l, clock := newTestLimiter(5, 120)
	key := Key("token", "chan-1")
	now := clock.now()
	seed(l, key, RateTracker{
		MessagesThisMinute:   120,
		MinuteWindowStart:    now.Add(-70 * time.Second),
		LastMessageTimestamp: now.Add(-5 * time.Second),
	})

	if err := l.Wait(context.Background(), key); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("expected no delay, got %v", clock.sleeps)
	}
	tr, _ := l.Tracker(key)
	if tr.MessagesThisMinute != 1 {
		t.Fatalf("expected minute counter 1, got %d", tr.MessagesThisMinute)
	}
	if !tr.MinuteWindowStart.Equal(now) {
		t.Fatalf("expected window to restart at now, got %v", tr.MinuteWindowStart)
	}
}

func TestLimiter_SecondCeilingBlocks(t *testing.T) {
	l, clock := newTestLimiter(5, 120)
	key := Key("token", "chan-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx, key); err != nil {
			t.Fatalf("burst %d: %v", i, err)
		}
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("burst should not wait, got %v", clock.sleeps)
	}

	if err := l.Wait(ctx, key); err != nil {
		t.Fatal(err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != time.Second {
		t.Fatalf("expected one 1s delay, got %v", clock.sleeps)
	}
	tr, _ := l.Tracker(key)
	if tr.MessagesThisSecond != 1 || tr.MessagesThisMinute != 6 {
		t.Fatalf("unexpected counters: %+v", tr)
	}
}

func TestLimiter_CountersIncrement(t *testing.T) {
	l, _ := newTestLimiter(5, 120)
	key := Key("token", "chan-1")
	for i := 0; i < 3; i++ {
		l.Wait(context.Background(), key)
	}
	tr, ok := l.Tracker(key)
	if !ok {
		t.Fatal("tracker should exist")
	}
	if tr.MessagesThisSecond != 3 || tr.MessagesThisMinute != 3 {
		t.Fatalf("unexpected counters: %+v", tr)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := New(Config{PerSecond: 1, PerMinute: 1})
	key := Key("token", "chan-1")

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, key); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := l.Wait(ctx, key); err == nil {
		t.Fatal("expected context cancelled error")
	}
}

func TestLimiter_OnWaitCallback(t *testing.T) {
	var waits atomic.Int32
	l := New(Config{PerSecond: 1, PerMinute: 100, OnWait: func(string, time.Duration) { waits.Add(1) }})
	clock := &fakeClock{t: time.Now()}
	l.now = clock.now
	l.sleep = clock.sleep

	l.Wait(context.Background(), "k")
	l.Wait(context.Background(), "k")
	if waits.Load() != 1 {
		t.Fatalf("expected 1 wait callback, got %d", waits.Load())
	}
}

func TestLimiter_DisjointKeysIndependent(t *testing.T) {
	l := New(Config{PerSecond: 1, PerMinute: 1})

	// Saturate key A for a full minute.
	if err := l.Wait(context.Background(), "token:A"); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	go func() { blocked <- l.Wait(ctxA, "token:A") }()

	// Key B must not be held up by the waiter on A.
	start := time.Now()
	for i, key := range []string{"token:B", "token:C"} {
		if err := l.Wait(context.Background(), key); err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("disjoint keys should not block, took %v", elapsed)
	}

	cancelA()
	if err := <-blocked; err == nil {
		t.Fatal("expected the blocked waiter to return a context error")
	}
}

func TestLimiter_ConcurrentSameKey(t *testing.T) {
	l, _ := newTestLimiter(1000, 1000)
	key := Key("token", "chan-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Wait(context.Background(), key)
		}()
	}
	wg.Wait()

	tr, _ := l.Tracker(key)
	if tr.MessagesThisMinute != 50 {
		t.Fatalf("expected 50 recorded sends, got %d", tr.MessagesThisMinute)
	}
}
