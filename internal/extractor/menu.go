package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

var (
	priceRe  = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)
	dollarRe = regexp.MustCompile(`\$(\d+(?:\.\d{2})?)`)

	// Text-scan patterns: plain, ellipsis, and dash separated name/price
	// pairs. The first pattern that yields items wins.
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`([A-Z][^$\n]{3,50})\s*\$(\d+(?:\.\d{2})?)`),
		regexp.MustCompile(`([A-Z][^$\n]{3,50})\s*\.\.\.\s*\$(\d+(?:\.\d{2})?)`),
		regexp.MustCompile(`([A-Z][^$\n]{3,50})\s*[-–]\s*\$(\d+(?:\.\d{2})?)`),
	}

	nameSanitizeRe = regexp.MustCompile(`[^\w\s\-&()]`)
)

var (
	nameSelectors  = []string{".name", ".title", ".item-name", ".dish-name", "h3", "h4", "h5"}
	priceSelectors = []string{".price", ".cost", ".amount"}
	descSelectors  = []string{".description", ".desc", "p"}
)

// extractStructured walks the configured container selectors in order and
// parses sub-fields from the first selector matching enough containers.
func (e *Extractor) extractStructured(doc *goquery.Document) []scrape.Candidate {
	for _, selector := range e.selectors {
		elements := doc.Find(selector)
		if elements.Length() <= structuredMinElements {
			continue
		}
		e.logger.Debug("structured selector matched",
			zap.String("selector", selector),
			zap.Int("elements", elements.Length()),
		)

		var items []scrape.Candidate
		elements.EachWithBreak(func(i int, sel *goquery.Selection) bool {
			if i >= structuredCap {
				return false
			}
			item, ok := extractItemFromElement(sel)
			if ok {
				items = append(items, item)
			}
			return true
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func extractItemFromElement(sel *goquery.Selection) (scrape.Candidate, bool) {
	item := scrape.Candidate{Category: "General"}

	for _, ns := range nameSelectors {
		if elem := sel.Find(ns).First(); elem.Length() > 0 {
			item.Name = strings.TrimSpace(elem.Text())
			break
		}
	}
	if item.Name == "" {
		lines := strings.Split(strings.TrimSpace(sel.Text()), "\n")
		if len(lines) > 0 {
			item.Name = strings.TrimSpace(lines[0])
		}
	}
	if len(item.Name) < 3 {
		return scrape.Candidate{}, false
	}

	for _, ps := range priceSelectors {
		if elem := sel.Find(ps).First(); elem.Length() > 0 {
			if m := priceRe.FindStringSubmatch(elem.Text()); m != nil {
				item.Price = parsePrice(m[1])
			}
			break
		}
	}
	if item.Price == 0 {
		if m := dollarRe.FindStringSubmatch(sel.Text()); m != nil {
			item.Price = parsePrice(m[1])
		}
	}

	for _, ds := range descSelectors {
		if elem := sel.Find(ds).First(); elem.Length() > 0 {
			desc := strings.TrimSpace(elem.Text())
			if desc != "" && desc != item.Name && len(desc) > 10 {
				item.Description = truncate(desc, 200)
				break
			}
		}
	}

	return item, true
}

// extractPricePatterns scans the page text for "<name> ... $<price>" pairs.
func extractPricePatterns(doc *goquery.Document) []scrape.Candidate {
	bodyText := doc.Text()

	for _, pattern := range pricePatterns {
		matches := pattern.FindAllStringSubmatch(bodyText, -1)
		if len(matches) == 0 {
			continue
		}

		var items []scrape.Candidate
		for _, m := range matches {
			name := sanitizeName(m[1])
			price := parsePrice(m[2])
			if len(name) > 3 && price > 0 && price < 100 {
				items = append(items, scrape.Candidate{
					Name:     name,
					Price:    price,
					Category: "General",
				})
			}
			if len(items) >= priceCap {
				break
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// commonDishes is the curated vocabulary for the last-resort tier, each with
// its known category.
var commonDishes = []struct {
	name     string
	category string
}{
	{"Chicken Tikka Masala", "Chicken"},
	{"Butter Chicken", "Chicken"},
	{"Tandoori Chicken", "Chicken"},
	{"Vegetable Biryani", "Rice"},
	{"Chicken Biryani", "Rice"},
	{"Lamb Biryani", "Rice"},
	{"Garlic Naan", "Breads"},
	{"Plain Naan", "Breads"},
	{"Roti", "Breads"},
	{"Dal", "Vegetarian"},
	{"Saag Paneer", "Vegetarian"},
	{"Palak Paneer", "Vegetarian"},
	{"Samosa", "Appetizers"},
	{"Pakora", "Appetizers"},
	{"Chutney", "General"},
}

// extractVocabulary tests the page text for known dish names and synthesizes
// items with pattern-matched prices. A dish with no discoverable price keeps
// price 0 and is excluded from statistics downstream.
func extractVocabulary(doc *goquery.Document) []scrape.Candidate {
	pageText := strings.ToLower(doc.Text())

	var items []scrape.Candidate
	for _, dish := range commonDishes {
		lowerName := strings.ToLower(dish.name)
		if !strings.Contains(pageText, lowerName) {
			continue
		}

		var price float64
		dishPriceRe := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(lowerName) + `[^$]*\$(\d+(?:\.\d{2})?)`)
		if m := dishPriceRe.FindStringSubmatch(pageText); m != nil {
			price = parsePrice(m[1])
		}

		items = append(items, scrape.Candidate{
			Name:        dish.name,
			Price:       price,
			Description: "Traditional " + lowerName,
			Category:    dish.category,
		})
		if len(items) >= vocabCap {
			break
		}
	}
	return items
}

func sanitizeName(raw string) string {
	cleaned := nameSanitizeRe.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.Join(strings.Fields(cleaned), " ")
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
