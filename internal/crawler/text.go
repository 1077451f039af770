package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/jdkato/prose/v2"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// ExtractText reduces page markup to readable plain text. It tries a
// readability main-content pass first and falls back to stripping the full
// body when readability finds nothing usable.
func ExtractText(html string, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err == nil {
		if text := normalizeWhitespace(article.TextContent); text != "" {
			return text
		}
	}

	return stripMarkup(html)
}

// ExtractTitle returns the page <title>, falling back to the first h1.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	return title
}

func stripMarkup(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return normalizeWhitespace(doc.Text())
	}

	return normalizeWhitespace(body.Text())
}

func normalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// hasEnoughContent filters navigation-only and error pages: the text must
// clear a character floor and read as at least minSentences sentences.
func hasEnoughContent(text string, minChars, minSentences int) bool {
	if len(text) < minChars {
		return false
	}

	if minSentences <= 1 {
		return true
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		// Segmentation failure is not grounds to drop a page that already
		// cleared the length floor.
		return true
	}

	return len(doc.Sentences()) >= minSentences
}
