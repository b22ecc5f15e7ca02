// Package extractor turns raw HTML into candidate menu and review records.
//
// Menu extraction runs tiered strategies in priority order: structured
// container selectors first, then a price-pattern text scan, then a known
// dish vocabulary pass. Cheaper, more precise strategies run first and the
// escalation stops as soon as the cumulative output clears the tier's floor.
package extractor

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/plateiq/restaurant-intel/internal/scrape"
)

// Tier floors and caps. A structured selector is accepted once it matches
// more than structuredMinElements containers; the price scan only runs below
// priceFloor items and the vocabulary pass only below vocabFloor.
const (
	structuredMinElements = 3
	priceFloor            = 5
	vocabFloor            = 3

	structuredCap = 30
	priceCap      = 20
	vocabCap      = 10
)

// Extractor applies the tiered menu strategies and per-source review parsing.
type Extractor struct {
	selectors []string
	logger    *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithSelectors overrides the structured container selector list.
func WithSelectors(selectors []string) Option {
	return func(e *Extractor) {
		if len(selectors) > 0 {
			e.selectors = append([]string(nil), selectors...)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New builds an Extractor with the default selector set.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		selectors: defaultSelectors,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// defaultSelectors are ordered by specificity; the first one yielding more
// than structuredMinElements containers wins.
var defaultSelectors = []string{
	".menu-item", ".menu-section .item", ".dish", ".food-item",
	".menuitem", ".menu_item", ".product", ".meal",
	".food-menu-item", ".restaurant-menu-item",
	`[class*="menu"][class*="item"]`, `[class*="dish"]`, `[class*="food"]`,
}

// ExtractMenu parses content and returns candidate items plus the detected
// platform label.
func (e *Extractor) ExtractMenu(content []byte, pageURL string) ([]scrape.Candidate, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	platform := DetectPlatform(doc, pageURL)
	e.logger.Debug("platform detected", zap.String("url", pageURL), zap.String("platform", platform))

	// Ordering platforms (toast, clover, grubhub) carry their menus in the
	// same structured markup as generic sites, so every platform starts from
	// the structured tier. The label is still recorded on the snapshot.
	items := e.extractStructured(doc)
	e.logger.Debug("structured tier complete", zap.Int("items", len(items)))

	if len(items) < priceFloor {
		priced := extractPricePatterns(doc)
		items = append(items, priced...)
		e.logger.Debug("price tier complete", zap.Int("added", len(priced)))
	}
	if len(items) < vocabFloor {
		known := extractVocabulary(doc)
		items = append(items, known...)
		e.logger.Debug("vocabulary tier complete", zap.Int("added", len(known)))
	}

	return items, platform, nil
}
