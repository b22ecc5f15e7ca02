package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBroadcaster(history, buffer int) *Broadcaster {
	return NewBroadcaster(Config{
		HistorySize:      history,
		SubscriberBuffer: buffer,
		PingInterval:     time.Hour,
		Logger:           zap.NewNop(),
	})
}

func TestSubscribeReceivesBannerThenLiveEvents(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(10, 8)
	defer b.Close()

	ch := b.Subscribe()
	banner := <-ch
	require.Equal(t, KindConnectionEstablished, banner.Kind)

	b.Publish(Event{Kind: KindJobStarted, Payload: map[string]any{"target": "Mela"}})
	ev := <-ch
	require.Equal(t, KindJobStarted, ev.Kind)
	require.Equal(t, "Mela", ev.Payload["target"])
	require.False(t, ev.Timestamp.IsZero())
}

func TestHistoryReplayedToLateSubscriber(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(2, 8)
	defer b.Close()

	b.Publish(Event{Kind: KindJobSucceeded})
	b.Publish(Event{Kind: KindJobFailed})
	b.Publish(Event{Kind: KindCycleComplete})
	b.Publish(Event{Kind: KindLivenessPing}) // not replayable

	ch := b.Subscribe()
	<-ch // banner
	require.Equal(t, KindJobFailed, (<-ch).Kind)
	require.Equal(t, KindCycleComplete, (<-ch).Kind)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected replayed event %q", ev.Kind)
	default:
	}
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(1, 1)
	defer b.Close()

	ch := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	// Fill the buffer past capacity without draining. The subscriber still
	// holds the banner plus replay slack, so push enough to overflow.
	for i := 0; i < 8; i++ {
		b.Publish(Event{Kind: KindJobStarted})
	}
	require.Zero(t, b.Subscribers())

	// Channel was closed on prune.
	for range ch {
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(4, 4)
	defer b.Close()

	ch := b.Subscribe()
	b.Unsubscribe(ch)
	require.Zero(t, b.Subscribers())

	for range ch {
	}
}
