package tracking

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	htmlTagRegex  = regexp.MustCompile(`(?i)<(html|body|p|div|a|br|table|span|img)[\s>/]`)
	plainURLRegex = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// Instrument rewrites every http(s) link in body into a tracked click URL and
// appends an open pixel. Plain-text bodies are converted to minimal HTML
// first so their links become clickable. Fragments stay fragments.
func (b *LinkBuilder) Instrument(body, trackingID string) (string, error) {
	if !htmlTagRegex.MatchString(body) {
		body = textToHTML(body)
	}
	fullDocument := strings.Contains(strings.ToLower(body), "<html")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse message body: %w", err)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return
		}
		if b.owns(href) {
			return
		}
		s.SetAttr("href", b.ClickURL(trackingID, href))
	})

	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none"/>`, html.EscapeString(b.OpenURL(trackingID)))
	doc.Find("body").AppendHtml(pixel)

	if fullDocument {
		return doc.Html()
	}
	return doc.Find("body").Html()
}

// textToHTML escapes plain text, turns bare URLs into anchors and keeps line
// breaks.
func textToHTML(text string) string {
	escaped := html.EscapeString(text)
	linked := plainURLRegex.ReplaceAllStringFunc(escaped, func(u string) string {
		return fmt.Sprintf(`<a href="%s">%s</a>`, u, u)
	})
	return "<p>" + strings.ReplaceAll(linked, "\n", "<br/>") + "</p>"
}
