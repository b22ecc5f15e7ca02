package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

func TestLexiconScorerPolarity(t *testing.T) {
	t.Parallel()

	scorer := NewLexiconScorer()
	require.Positive(t, scorer.Score("The food was delicious and the staff were friendly"))
	require.Negative(t, scorer.Score("Terrible service and bland overpriced food"))
	require.Zero(t, scorer.Score("We ordered the lunch special on a Tuesday"))
}

func TestScoreReviewFallsBackToRating(t *testing.T) {
	t.Parallel()

	scorer := NewLexiconScorer()
	neutral := scrape.Review{Text: "We ordered the lunch special", Rating: 5}
	require.Equal(t, 1.0, ScoreReview(scorer, neutral))

	low := scrape.Review{Text: "We ordered the lunch special", Rating: 1}
	require.Equal(t, -1.0, ScoreReview(scorer, low))
}

func TestSummarizeSentimentDistributionSumsToOne(t *testing.T) {
	t.Parallel()

	reviews := []scrape.Review{
		{Text: "Amazing delicious food, best biryani in town"},
		{Text: "Horrible experience, rude staff and cold food"},
		{Text: "We sat near the window", Rating: 3},
		{Text: "Great friendly service"},
	}

	summary := SummarizeSentiment(NewLexiconScorer(), reviews)
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 2, summary.Positive)
	require.Equal(t, 1, summary.Negative)
	require.Equal(t, 1, summary.Neutral)
	require.InDelta(t, 1.0, summary.Distribution.Positive+summary.Distribution.Negative+summary.Distribution.Neutral, 0.02)
}

func TestSummarizeSentimentEmpty(t *testing.T) {
	t.Parallel()

	summary := SummarizeSentiment(NewLexiconScorer(), nil)
	require.Zero(t, summary.Total)
	require.Zero(t, summary.AvgSentiment)
	require.Zero(t, summary.Distribution.Positive)
}

func TestCountThemes(t *testing.T) {
	t.Parallel()

	reviews := []scrape.Review{
		{Text: "Delicious food but the wait was slow"},
		{Text: "Friendly staff, great service"},
	}
	themes := CountThemes(reviews)
	require.Equal(t, 1, themes["food_quality"])
	require.Equal(t, 1, themes["wait_time"])
	require.Equal(t, 1, themes["service"])
}

func TestTopWords(t *testing.T) {
	t.Parallel()

	reviews := []scrape.Review{
		{Text: "The biryani was fragrant, the biryani portion generous"},
		{Text: "Best biryani this side of the river"},
	}
	words := TopWords(reviews, 3)
	require.NotEmpty(t, words)
	require.Equal(t, "biryani", words[0].Word)
	require.Equal(t, 3, words[0].Count)
}

func TestBuildReviewBatch(t *testing.T) {
	t.Parallel()

	reviews := []scrape.Review{
		{Author: "A", Text: "Excellent fresh naan, highly recommend", Rating: 5},
	}
	batch := BuildReviewBatch(NewLexiconScorer(), "India Quality", "google", reviews, time.Now().UTC())
	require.Equal(t, "India Quality", batch.Target)
	require.Equal(t, "google", batch.Source)
	require.Equal(t, 1, batch.Sentiment.Positive)
	require.NotEmpty(t, batch.TopWords)
}
