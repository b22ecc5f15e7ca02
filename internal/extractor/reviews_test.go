package extractor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const googleReviewsHTML = `<html><body>
<div class="review">
	<a class="user-name">Priya S.</a>
	<div class="rating" aria-label="4.5 stars"></div>
	<p class="comment">The lamb vindaloo here is absolutely incredible, best in Boston.</p>
	<span class="date">January 5, 2026</span>
</div>
<div class="review">
	<div class="rating stars_3"></div>
	<p class="comment">Service was slow but the naan made up for it mostly.</p>
	<span class="date">2026-01-12</span>
</div>
<div class="review">
	<p class="comment">Terrible experience, cold food. 2 stars at best honestly.</p>
</div>
<div class="review">
	<p class="comment">Great!</p>
</div>
</body></html>`

func TestExtractReviews(t *testing.T) {
	t.Parallel()

	e := New()
	reviews, err := e.ExtractReviews([]byte(googleReviewsHTML), "google")
	require.NoError(t, err)
	require.Len(t, reviews, 3)

	first := reviews[0]
	require.Equal(t, "Priya S.", first.Author)
	require.Equal(t, 4.5, first.Rating)
	require.Contains(t, first.Text, "lamb vindaloo")
	require.Equal(t, "google", first.Source)
	require.Equal(t, time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), first.Date)

	second := reviews[1]
	require.Equal(t, "Anonymous", second.Author)
	require.Equal(t, 3.0, second.Rating)
	require.Equal(t, time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC), second.Date)

	third := reviews[2]
	require.Equal(t, 2.0, third.Rating)
	require.WithinDuration(t, time.Now().UTC(), third.Date, time.Minute)
}

func TestExtractReviewsRatingFromStarClass(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="review">
	<div class="rating stars_4_5"></div>
	<p class="comment">Wonderful tikka masala and friendly waitstaff throughout.</p>
</div>
</body></html>`

	e := New()
	reviews, err := e.ExtractReviews([]byte(html), "yelp")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, 4.5, reviews[0].Rating)
}

func TestExtractReviewsClampsRating(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="review">
	<div class="rating" aria-label="17 stars"></div>
	<p class="comment">This place deserves more stars than exist anywhere.</p>
</div>
</body></html>`

	e := New()
	reviews, err := e.ExtractReviews([]byte(html), "google")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, 5.0, reviews[0].Rating)
}

func TestExtractReviewsDropsShortText(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div class="review"><p class="comment">ok</p></div>
<div class="review"></div>
</body></html>`

	e := New()
	reviews, err := e.ExtractReviews([]byte(html), "google")
	require.NoError(t, err)
	require.Empty(t, reviews)
}

func TestExtractReviewsCapsPageSize(t *testing.T) {
	t.Parallel()

	html := "<html><body>"
	for i := 0; i < 30; i++ {
		html += fmt.Sprintf(`<div class="review"><p class="comment">Visit number %02d was a perfectly fine dinner out.</p></div>`, i)
	}
	html += "</body></html>"

	e := New()
	reviews, err := e.ExtractReviews([]byte(html), "yelp")
	require.NoError(t, err)
	require.Len(t, reviews, maxReviewsPerPage)
}
