package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
}

// ExtractLinks parses page markup and returns the set of same-origin,
// crawlable absolute URLs. Fragments are stripped, duplicates removed, and
// mail/tel/javascript links, bare anchors, and asset files skipped.
// Malformed hrefs are ignored.
func ExtractLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)

		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "javascript:") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}

		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host != base.Host {
			return
		}

		lowerPath := strings.ToLower(resolved.Path)
		for _, ext := range skippedExtensions {
			if strings.HasSuffix(lowerPath, ext) {
				return
			}
		}

		resolved.Fragment = ""
		normalized := resolved.String()

		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	})

	return links
}
