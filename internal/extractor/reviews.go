package extractor

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

const (
	maxReviewsPerPage = 20
	minReviewLength   = 10
)

var (
	ratingTextRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:star|/5)`)
	ratingClassRe = regexp.MustCompile(`stars?_(\d+(?:_5)?)`)
)

var reviewDateFormats = []string{"1/2/2006", "01/02/2006", "January 2, 2006", "Jan 2, 2006", "2006-01-02"}

// ExtractReviews parses review-site markup into raw review candidates with
// best-effort rating extraction. Reviews shorter than minReviewLength are
// dropped as navigation noise.
func (e *Extractor) ExtractReviews(content []byte, source string) ([]scrape.Review, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var reviews []scrape.Review
	doc.Find(`[class*="review"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		review, ok := extractReviewFromElement(sel, source)
		if ok {
			reviews = append(reviews, review)
		}
		return len(reviews) < maxReviewsPerPage
	})
	return reviews, nil
}

func extractReviewFromElement(sel *goquery.Selection, source string) (scrape.Review, bool) {
	text := ""
	if elem := sel.Find(`p[class*="comment"]`).First(); elem.Length() > 0 {
		text = strings.TrimSpace(elem.Text())
	}
	if text == "" {
		if elem := sel.Find("p").First(); elem.Length() > 0 {
			text = strings.TrimSpace(elem.Text())
		}
	}
	if len(text) <= minReviewLength {
		return scrape.Review{}, false
	}

	author := "Anonymous"
	if elem := sel.Find(`a[class*="user"]`).First(); elem.Length() > 0 {
		if name := strings.TrimSpace(elem.Text()); name != "" {
			author = name
		}
	}

	review := scrape.Review{
		Author: author,
		Rating: extractRating(sel, text),
		Text:   text,
		Date:   extractReviewDate(sel),
		Source: source,
	}
	return review, true
}

// extractRating tries structured rating markup first, then free text.
func extractRating(sel *goquery.Selection, text string) float64 {
	ratingElem := sel.Find(`[class*="rating"]`).First()
	if ratingElem.Length() > 0 {
		if label, ok := ratingElem.Attr("aria-label"); ok {
			if m := ratingTextRe.FindStringSubmatch(label); m != nil {
				return clampRating(parseFloat(m[1]))
			}
		}
		if class, ok := ratingElem.Attr("class"); ok {
			if m := ratingClassRe.FindStringSubmatch(class); m != nil {
				return clampRating(parseFloat(strings.ReplaceAll(m[1], "_5", ".5")))
			}
		}
	}
	if m := ratingTextRe.FindStringSubmatch(text); m != nil {
		return clampRating(parseFloat(m[1]))
	}
	return 0
}

func extractReviewDate(sel *goquery.Selection) time.Time {
	elem := sel.Find(`span[class*="date"]`).First()
	if elem.Length() == 0 {
		return time.Now().UTC()
	}
	raw := strings.TrimSpace(elem.Text())
	for _, format := range reviewDateFormats {
		if parsed, err := time.Parse(format, raw); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}

func clampRating(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
