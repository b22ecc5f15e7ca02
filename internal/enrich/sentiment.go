package enrich

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Classification thresholds on the [-1, 1] sentiment scale.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

var positiveWords = map[string]struct{}{
	"amazing": {}, "awesome": {}, "authentic": {}, "best": {}, "delicious": {},
	"excellent": {}, "fantastic": {}, "favorite": {}, "flavorful": {}, "fresh": {},
	"friendly": {}, "great": {}, "good": {}, "love": {}, "loved": {},
	"outstanding": {}, "perfect": {}, "recommend": {}, "tasty": {}, "wonderful": {},
}

var negativeWords = map[string]struct{}{
	"awful": {}, "bad": {}, "bland": {}, "cold": {}, "disappointing": {},
	"dirty": {}, "dry": {}, "expensive": {}, "greasy": {}, "horrible": {},
	"mediocre": {}, "overpriced": {}, "poor": {}, "rude": {}, "slow": {},
	"stale": {}, "terrible": {}, "undercooked": {}, "worst": {},
}

// LexiconScorer scores text by counting polarity words. The score is the
// signed fraction of polarity hits over all words, clamped to [-1, 1].
type LexiconScorer struct{}

func NewLexiconScorer() *LexiconScorer { return &LexiconScorer{} }

func (s *LexiconScorer) Score(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			hits++
		} else if _, ok := negativeWords[w]; ok {
			hits--
		}
	}
	score := float64(hits) / float64(len(words)) * 5
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// ScoreReview prefers the text score but falls back to the star rating when
// the text carries no polarity signal, mapping 1..5 stars onto [-1, 1].
func ScoreReview(scorer scrape.Scorer, r scrape.Review) float64 {
	score := scorer.Score(r.Text)
	if score == 0 && r.Rating > 0 {
		return round2((r.Rating - 3) / 2)
	}
	return round2(score)
}

// SummarizeSentiment scores each review and aggregates the classification
// counts. Fractions in the distribution sum to one unless there are no
// reviews, in which case everything is zero.
func SummarizeSentiment(scorer scrape.Scorer, reviews []scrape.Review) scrape.SentimentSummary {
	summary := scrape.SentimentSummary{Total: len(reviews)}
	if len(reviews) == 0 {
		return summary
	}

	var sum float64
	for _, r := range reviews {
		score := ScoreReview(scorer, r)
		sum += score
		switch {
		case score > positiveThreshold:
			summary.Positive++
		case score < negativeThreshold:
			summary.Negative++
		default:
			summary.Neutral++
		}
	}
	total := float64(summary.Total)
	summary.AvgSentiment = round2(sum / total)
	summary.Distribution = scrape.SentimentDistribution{
		Positive: round2(float64(summary.Positive) / total),
		Negative: round2(float64(summary.Negative) / total),
		Neutral:  round2(float64(summary.Neutral) / total),
	}
	return summary
}

// themeKeywords groups review vocabulary into the themes surfaced on the
// analytics endpoints.
var themeKeywords = map[string][]string{
	"food_quality": {"delicious", "tasty", "flavor", "fresh", "bland", "authentic"},
	"service":      {"service", "staff", "waiter", "friendly", "rude", "attentive"},
	"value":        {"price", "expensive", "cheap", "value", "worth", "overpriced"},
	"ambiance":     {"atmosphere", "ambiance", "decor", "cozy", "clean", "noisy"},
	"wait_time":    {"wait", "slow", "quick", "fast", "delay"},
}

// CountThemes tallies how many reviews mention each theme at least once.
func CountThemes(reviews []scrape.Review) map[string]int {
	themes := make(map[string]int)
	for _, r := range reviews {
		lower := strings.ToLower(r.Text)
		for theme, words := range themeKeywords {
			for _, w := range words {
				if strings.Contains(lower, w) {
					themes[theme]++
					break
				}
			}
		}
	}
	return themes
}

var stopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "have": {}, "from": {}, "they": {},
	"were": {}, "been": {}, "their": {}, "there": {}, "here": {}, "very": {},
	"really": {}, "just": {}, "food": {}, "place": {}, "restaurant": {},
	"would": {}, "will": {}, "when": {}, "what": {}, "about": {}, "because": {},
}

var wordRe = regexp.MustCompile(`[a-z]+`)

func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// TopWords returns the n most frequent non-stopword tokens longer than three
// characters across the reviews, ordered by count then alphabetically.
func TopWords(reviews []scrape.Review, n int) []scrape.WordCount {
	counts := make(map[string]int)
	for _, r := range reviews {
		for _, w := range tokenize(r.Text) {
			if len(w) <= 3 {
				continue
			}
			if _, skip := stopwords[w]; skip {
				continue
			}
			counts[w]++
		}
	}

	words := make([]scrape.WordCount, 0, len(counts))
	for w, c := range counts {
		words = append(words, scrape.WordCount{Word: w, Count: c})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return words[i].Word < words[j].Word
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// BuildReviewBatch scores and summarizes a set of extracted reviews.
func BuildReviewBatch(scorer scrape.Scorer, target, source string, reviews []scrape.Review, scrapedAt time.Time) scrape.ReviewBatch {
	return scrape.ReviewBatch{
		Target:    target,
		Source:    source,
		Reviews:   reviews,
		Sentiment: SummarizeSentiment(scorer, reviews),
		Themes:    CountThemes(reviews),
		TopWords:  TopWords(reviews, 10),
		ScrapedAt: scrapedAt,
	}
}
