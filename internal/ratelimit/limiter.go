// Package ratelimit throttles outbound sends per credential:destination key.
//
// Each key has its own tracker with a one-second counter and a one-minute
// counter. The minute window is fixed: it resets wholesale once 60 seconds
// have elapsed since it started, it does not slide.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultPerSecond = 5
	DefaultPerMinute = 120

	secondWindow = time.Second
	minuteWindow = time.Minute
)

// RateTracker holds the counters for one key.
type RateTracker struct {
	MessagesThisSecond   int
	MessagesThisMinute   int
	MinuteWindowStart    time.Time
	LastMessageTimestamp time.Time
}

type entry struct {
	mu sync.Mutex
	RateTracker
}

// Limiter gates sends. Trackers are created on first use and never evicted;
// cardinality is bounded by active channel/destination pairs.
type Limiter struct {
	perSecond int
	perMinute int

	trackers sync.Map // key -> *entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	onWait func(key string, d time.Duration)
}

// Config configures a Limiter. Zero values take the defaults.
type Config struct {
	PerSecond int
	PerMinute int

	// OnWait is called each time a caller has to wait.
	OnWait func(key string, d time.Duration)
}

func New(cfg Config) *Limiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = DefaultPerSecond
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultPerMinute
	}
	return &Limiter{
		perSecond: cfg.PerSecond,
		perMinute: cfg.PerMinute,
		now:       time.Now,
		sleep:     sleepContext,
		onWait:    cfg.OnWait,
	}
}

// Key builds the tracker key for a credential and destination.
func Key(credential, destination string) string {
	return credential + ":" + destination
}

// Wait blocks until a send on key is permitted, then records it. Only the
// calling goroutine waits; other keys progress independently.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	e := l.entry(key)
	for {
		e.mu.Lock()
		now := l.now()
		if now.Sub(e.LastMessageTimestamp) >= secondWindow {
			e.MessagesThisSecond = 0
		}
		if e.MinuteWindowStart.IsZero() || now.Sub(e.MinuteWindowStart) >= minuteWindow {
			e.MessagesThisMinute = 0
			e.MinuteWindowStart = now
		}

		var wait time.Duration
		switch {
		case e.MessagesThisSecond >= l.perSecond:
			wait = secondWindow - now.Sub(e.LastMessageTimestamp)
		case e.MessagesThisMinute >= l.perMinute:
			wait = minuteWindow - now.Sub(e.MinuteWindowStart)
		}

		if wait <= 0 {
			e.MessagesThisSecond++
			e.MessagesThisMinute++
			e.LastMessageTimestamp = now
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		if l.onWait != nil {
			l.onWait(key, wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tracker returns a snapshot of the tracker for key.
func (l *Limiter) Tracker(key string) (RateTracker, bool) {
	v, ok := l.trackers.Load(key)
	if !ok {
		return RateTracker{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.RateTracker, true
}

func (l *Limiter) entry(key string) *entry {
	if v, ok := l.trackers.Load(key); ok {
		return v.(*entry)
	}
	actual, _ := l.trackers.LoadOrStore(key, &entry{})
	return actual.(*entry)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
