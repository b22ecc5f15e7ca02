package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform labels recorded on menu snapshots.
const (
	PlatformToast       = "toast"
	PlatformClover      = "clover"
	PlatformGrubhub     = "grubhub"
	PlatformSquarespace = "squarespace"
	PlatformWix         = "wix"
	PlatformWordpress   = "wordpress"
	PlatformGeneric     = "generic"
)

// DetectPlatform identifies the hosting platform by URL substring first,
// then by DOM fingerprint.
func DetectPlatform(doc *goquery.Document, pageURL string) string {
	lower := strings.ToLower(pageURL)
	switch {
	case strings.Contains(lower, "toasttab.com"):
		return PlatformToast
	case strings.Contains(lower, "clover.com"):
		return PlatformClover
	case strings.Contains(lower, "grubhub.com"), strings.Contains(lower, "grabull.com"):
		return PlatformGrubhub
	}

	switch {
	case doc.Find(`[class*="squarespace"]`).Length() > 0:
		return PlatformSquarespace
	case doc.Find(`[class*="wix"]`).Length() > 0:
		return PlatformWix
	case doc.Find(`[class*="wordpress"]`).Length() > 0:
		return PlatformWordpress
	}
	return PlatformGeneric
}
