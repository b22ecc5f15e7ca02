// Package events provides the in-process event broadcast layer feeding the
// WebSocket endpoint.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/metrics"
)

// Event kinds published by the scheduler and workers.
const (
	KindConnectionEstablished = "connection_established"
	KindJobStarted            = "job_started"
	KindJobSucceeded          = "job_succeeded"
	KindJobFailed             = "job_failed"
	KindCycleComplete         = "cycle_complete"
	KindLivenessPing          = "liveness_ping"
)

// Event is one broadcast message. Payload keys vary per kind.
type Event struct {
	Kind      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// replayable reports whether an event is kept in the replay ring. Pings and
// connection banners are transient.
func replayable(kind string) bool {
	switch kind {
	case KindLivenessPing, KindConnectionEstablished:
		return false
	default:
		return true
	}
}

// Config controls the broadcaster's buffers and ping cadence.
type Config struct {
	HistorySize      int
	SubscriberBuffer int
	PingInterval     time.Duration
	Logger           *zap.Logger
}

// Broadcaster fans events out to subscribers. Sends are non-blocking: a
// subscriber whose buffer is full is dropped so one slow reader cannot stall
// the scrape pipeline.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	history []Event

	historySize int
	buffer      int
	ping        time.Duration
	logger      *zap.Logger

	done chan struct{}
	once sync.Once
}

// NewBroadcaster builds a Broadcaster from cfg, applying defaults for any
// zero value.
func NewBroadcaster(cfg Config) *Broadcaster {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 32
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:        make(map[chan Event]struct{}),
		historySize: cfg.HistorySize,
		buffer:      cfg.SubscriberBuffer,
		ping:        cfg.PingInterval,
		logger:      cfg.Logger,
		done:        make(chan struct{}),
	}
}

// Run emits liveness pings until the broadcaster is closed.
func (b *Broadcaster) Run() {
	ticker := time.NewTicker(b.ping)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.Publish(Event{Kind: KindLivenessPing, Timestamp: time.Now().UTC()})
		}
	}
}

// Close stops the ping loop and disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		defer b.mu.Unlock()
		for ch := range b.subs {
			close(ch)
		}
		b.subs = make(map[chan Event]struct{})
		metrics.SetSubscribers(0)
	})
}

// Subscribe registers a new subscriber. The returned channel first receives
// the replay history, then live events. Callers must drain the channel and
// call Unsubscribe when done.
func (b *Broadcaster) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer+b.historySize+1)
	ch <- Event{Kind: KindConnectionEstablished, Timestamp: time.Now().UTC()}
	for _, ev := range b.history {
		ch <- ev
	}
	b.subs[ch] = struct{}{}
	metrics.SetSubscribers(len(b.subs))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub == ch {
			delete(b.subs, sub)
			close(sub)
			break
		}
	}
	metrics.SetSubscribers(len(b.subs))
}

// Publish fans ev out to all subscribers without blocking. Subscribers that
// cannot keep up are pruned.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if replayable(ev.Kind) {
		b.history = append(b.history, ev)
		if len(b.history) > b.historySize {
			b.history = b.history[len(b.history)-b.historySize:]
		}
	}

	for sub := range b.subs {
		select {
		case sub <- ev:
		default:
			delete(b.subs, sub)
			close(sub)
			b.logger.Warn("dropped slow event subscriber")
		}
	}
	metrics.SetSubscribers(len(b.subs))
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Recent returns a copy of the replay history, newest last.
func (b *Broadcaster) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.history...)
}
