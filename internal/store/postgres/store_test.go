package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

func TestNewWithPoolRejectsBadPrefix(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad-prefix;drop")
	require.Error(t, err)
}

func TestSaveMenuSnapshotInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "scrape")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	snap := scrape.MenuSnapshot{
		Target:     "India Quality",
		TotalItems: 5,
		Platform:   "generic",
		ScrapedAt:  now,
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scrape_menu_snapshots").
		WithArgs("india quality", 5, payload, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveMenuSnapshot(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReviewBatchInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "scrape")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	batch := scrape.ReviewBatch{
		Target:    "Mela",
		Source:    "google",
		Reviews:   []scrape.Review{{Author: "A", Text: "Great naan", Rating: 5}},
		Sentiment: scrape.SentimentSummary{AvgSentiment: 0.5, Positive: 1, Total: 1},
		ScrapedAt: now,
	}
	payload, err := json.Marshal(batch)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scrape_review_batches").
		WithArgs("mela", "google", 1, 0.5, payload, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveReviewBatch(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatusNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "scrape")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM scrape_statuses").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	_, err = store.GetStatus(context.Background(), "Ghost")
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestMenuSnapshotDecodesPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "scrape")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	snap := scrape.MenuSnapshot{Target: "India Quality", TotalItems: 7, ScrapedAt: now}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM scrape_menu_snapshots").
		WithArgs("india quality").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.LatestMenuSnapshot(context.Background(), "India Quality")
	require.NoError(t, err)
	require.Equal(t, 7, got.TotalItems)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewBatchesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "scrape")
	require.NoError(t, err)

	batch := scrape.ReviewBatch{Target: "Mela", Source: "yelp"}
	payload, err := json.Marshal(batch)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM scrape_review_batches").
		WithArgs("mela").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.ReviewBatches(context.Background(), "Mela")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "yelp", got[0].Source)
	require.NoError(t, mock.ExpectationsWereMet())
}
