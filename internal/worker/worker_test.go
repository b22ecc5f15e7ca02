package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/enrich"
	"github.com/plateiq/restaurant-intel/internal/events"
	"github.com/plateiq/restaurant-intel/internal/queue/memory"
	"github.com/plateiq/restaurant-intel/internal/scrape"
	storemem "github.com/plateiq/restaurant-intel/internal/store/memory"
)

type fakeFetcher struct {
	body []byte
	err  error
	urls []string
	mu   sync.Mutex
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (scrape.FetchResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, pageURL)
	f.mu.Unlock()
	if f.err != nil {
		return scrape.FetchResult{}, f.err
	}
	return scrape.FetchResult{URL: pageURL, StatusCode: 200, Body: f.body}, nil
}

type fakeMenuExtractor struct {
	candidates []scrape.Candidate
	err        error
}

func (f *fakeMenuExtractor) ExtractMenu([]byte, string) ([]scrape.Candidate, string, error) {
	return f.candidates, "generic", f.err
}

type fakeReviewExtractor struct {
	reviews []scrape.Review
	err     error
}

func (f *fakeReviewExtractor) ExtractReviews([]byte, string) ([]scrape.Review, error) {
	return f.reviews, f.err
}

type fakeCache struct {
	mu       sync.Mutex
	prefixes []string
}

func (c *fakeCache) Get(string) ([]byte, bool)           { return nil, false }
func (c *fakeCache) Put(string, []byte, time.Duration)   {}
func (c *fakeCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = append(c.prefixes, prefix)
	return 0
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type testHarness struct {
	queue    *memory.Queue
	store    *storemem.Store
	cache    *fakeCache
	events   *events.Broadcaster
	outcomes chan scrape.Outcome
	worker   *Worker
}

func newHarness(t *testing.T, fetcher scrape.Fetcher, menus scrape.MenuExtractor, reviews scrape.ReviewExtractor) *testHarness {
	t.Helper()
	h := &testHarness{
		queue:    memory.NewQueue(8),
		store:    storemem.New(),
		cache:    &fakeCache{},
		events:   events.NewBroadcaster(events.Config{PingInterval: time.Hour}),
		outcomes: make(chan scrape.Outcome, 8),
	}
	t.Cleanup(h.events.Close)
	h.worker = New(
		h.queue,
		fetcher,
		menus,
		reviews,
		enrich.NewLexiconScorer(),
		h.store,
		h.cache,
		h.events,
		realClock{},
		func(_ context.Context, o scrape.Outcome) { h.outcomes <- o },
		Config{CooldownMin: time.Millisecond, CooldownMax: 2 * time.Millisecond},
		zap.NewNop(),
	)
	return h
}

func menuJob(name string) scrape.Job {
	return scrape.Job{
		ID:   "j-menu",
		Kind: scrape.KindMenu,
		Target: scrape.Target{
			Name: name, URL: "https://example.com/menu", MenuEnabled: true,
		},
	}
}

func TestMenuJobPersistsSnapshotAndInvalidatesCache(t *testing.T) {
	t.Parallel()

	menus := &fakeMenuExtractor{candidates: []scrape.Candidate{
		{Name: "Chicken Tikka Masala", Price: 15.99},
		{Name: "Garlic Naan", Price: 3.99},
	}}
	h := newHarness(t, &fakeFetcher{body: []byte("<html></html>")}, menus, &fakeReviewExtractor{})

	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.worker.Run(ctx)

	require.NoError(t, h.queue.Enqueue(ctx, menuJob("India Quality")))

	select {
	case outcome := <-h.outcomes:
		require.NoError(t, outcome.Err)
		require.Equal(t, 2, outcome.Items)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}

	snap, err := h.store.LatestMenuSnapshot(ctx, "India Quality")
	require.NoError(t, err)
	require.Equal(t, 2, snap.TotalItems)
	require.Equal(t, 3.99, snap.PriceStats.Min)
	require.Equal(t, 15.99, snap.PriceStats.Max)
	require.Equal(t, 2, snap.PriceStats.Count)

	require.Equal(t, []string{events.KindJobStarted, events.KindJobSucceeded}, drainJobEvents(t, sub, 2))

	h.cache.mu.Lock()
	defer h.cache.mu.Unlock()
	require.Contains(t, h.cache.prefixes, "restaurant_india quality")
	require.Contains(t, h.cache.prefixes, "restaurants_list")
	require.Contains(t, h.cache.prefixes, "analytics")
}

// drainJobEvents collects the next n job lifecycle event kinds, skipping the
// subscription banner.
func drainJobEvents(t *testing.T, sub <-chan events.Event, n int) []string {
	t.Helper()
	var kinds []string
	for len(kinds) < n {
		select {
		case ev := <-sub:
			if ev.Kind == events.KindConnectionEstablished {
				continue
			}
			kinds = append(kinds, ev.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d events received", len(kinds), n)
		}
	}
	return kinds
}

func TestReviewJobPersistsBatch(t *testing.T) {
	t.Parallel()

	reviews := &fakeReviewExtractor{reviews: []scrape.Review{
		{Author: "A", Text: "Excellent fresh naan, highly recommend", Rating: 5},
		{Author: "B", Text: "Terrible cold food", Rating: 1},
	}}
	h := newHarness(t, &fakeFetcher{body: []byte("<html></html>")}, &fakeMenuExtractor{}, reviews)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.worker.Run(ctx)

	job := scrape.Job{
		ID:     "j-rev",
		Kind:   scrape.KindReviews,
		Source: "google",
		Target: scrape.Target{Name: "Mela", ReviewsEnabled: true},
	}
	require.NoError(t, h.queue.Enqueue(ctx, job))

	select {
	case outcome := <-h.outcomes:
		require.NoError(t, outcome.Err)
		require.Equal(t, 2, outcome.Reviews)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}

	batches, err := h.store.ReviewBatches(ctx, "Mela")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, 1, batches[0].Sentiment.Positive)
	require.Equal(t, 1, batches[0].Sentiment.Negative)
}

func TestFetchFailureIsIsolated(t *testing.T) {
	t.Parallel()

	fetchErr := &scrape.FetchError{Class: scrape.FailTimeout, URL: "https://example.com/menu", Err: errors.New("deadline")}
	h := newHarness(t, &fakeFetcher{err: fetchErr}, &fakeMenuExtractor{}, &fakeReviewExtractor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.worker.Run(ctx)

	require.NoError(t, h.queue.Enqueue(ctx, menuJob("India Quality")))

	select {
	case outcome := <-h.outcomes:
		require.Error(t, outcome.Err)
		var fe *scrape.FetchError
		require.ErrorAs(t, outcome.Err, &fe)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}

	// Nothing persisted for the failed job.
	_, err := h.store.LatestMenuSnapshot(ctx, "India Quality")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestUnknownReviewSourceFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeFetcher{body: []byte("x")}, &fakeMenuExtractor{}, &fakeReviewExtractor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.worker.Run(ctx)

	job := scrape.Job{
		ID:     "j-bad",
		Kind:   scrape.KindReviews,
		Source: "zomato",
		Target: scrape.Target{Name: "Mela"},
	}
	require.NoError(t, h.queue.Enqueue(ctx, job))

	select {
	case outcome := <-h.outcomes:
		require.ErrorContains(t, outcome.Err, "unknown review source")
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}
}

func TestJobURLPerSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeFetcher{body: []byte("x")}, &fakeMenuExtractor{}, &fakeReviewExtractor{})
	target := scrape.Target{Name: "India Quality", URL: "https://indiaquality.com"}

	got, err := h.worker.jobURL(scrape.Job{Kind: scrape.KindMenu, Target: target})
	require.NoError(t, err)
	require.Equal(t, "https://indiaquality.com", got)

	got, err = h.worker.jobURL(scrape.Job{Kind: scrape.KindReviews, Source: "google", Target: target})
	require.NoError(t, err)
	require.Contains(t, got, "google.com/search")

	got, err = h.worker.jobURL(scrape.Job{Kind: scrape.KindReviews, Source: "yelp", Target: target})
	require.NoError(t, err)
	require.Contains(t, got, "yelp.com/search")

	got, err = h.worker.jobURL(scrape.Job{Kind: scrape.KindReviews, Source: "tripadvisor", Target: target})
	require.NoError(t, err)
	require.Contains(t, got, "tripadvisor.com/Search")
}
