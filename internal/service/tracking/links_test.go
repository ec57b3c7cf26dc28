package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickURLRoundTrip(t *testing.T) {
	b := NewLinkBuilder("https://t.example.com/", "secret")

	raw := b.ClickURL("tid-1", "https://listings.example.com/villa?id=7&ref=mail")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "/track", u.Path)
	assert.Equal(t, "tid-1", q.Get("t"))
	assert.Equal(t, "click", q.Get("type"))
	assert.Equal(t, "https://listings.example.com/villa?id=7&ref=mail", q.Get("url"))
	assert.True(t, b.Verify("tid-1", q.Get("url"), q.Get("sig")))
	assert.False(t, b.Verify("tid-1", "https://evil.example.com", q.Get("sig")))
	assert.False(t, b.Verify("tid-2", q.Get("url"), q.Get("sig")))
}

func TestUnsignedBuilderAcceptsAnyLink(t *testing.T) {
	b := NewLinkBuilder("https://t.example.com", "")
	u, err := url.Parse(b.ClickURL("tid", "https://x.example.com"))
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get("sig"))
	assert.True(t, b.Verify("tid", "https://anything", ""))
}

func hrefs(t *testing.T, body string) []string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		h, _ := s.Attr("href")
		out = append(out, h)
	})
	return out
}

func TestInstrumentHTML(t *testing.T) {
	b := NewLinkBuilder("https://t.example.com", "secret")
	body := `<p>Ciao {{first_name}}, <a href="https://listings.example.com/a?x=1&y=2">see</a>
<a href="mailto:agent@example.com">mail</a> <a href="/relative">rel</a></p>`

	out, err := b.Instrument(body, "tid-9")
	require.NoError(t, err)
	assert.NotContains(t, out, "<html")

	links := hrefs(t, out)
	require.Len(t, links, 3)
	assert.Equal(t, b.ClickURL("tid-9", "https://listings.example.com/a?x=1&y=2"), links[0])
	assert.Equal(t, "mailto:agent@example.com", links[1])
	assert.Equal(t, "/relative", links[2])

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	src, ok := doc.Find(`img[width="1"]`).Attr("src")
	require.True(t, ok)
	assert.Equal(t, b.OpenURL("tid-9"), src)
}

func TestInstrumentKeepsFullDocumentAndSkipsTrackedLinks(t *testing.T) {
	b := NewLinkBuilder("https://t.example.com", "")
	already := b.ClickURL("old", "https://a.example.com")
	body := `<html><body><a href="` + already + `">x</a></body></html>`

	out, err := b.Instrument(body, "new")
	require.NoError(t, err)
	assert.Contains(t, out, "<html>")
	assert.Equal(t, []string{already}, hrefs(t, out))
}

func TestInstrumentPlainText(t *testing.T) {
	b := NewLinkBuilder("https://t.example.com", "k")
	out, err := b.Instrument("Hi Anna,\nnew listing: https://listings.example.com/42 <3", "tid")
	require.NoError(t, err)

	assert.Equal(t, []string{b.ClickURL("tid", "https://listings.example.com/42")}, hrefs(t, out))
	assert.Contains(t, out, "<br/>")
	assert.Contains(t, out, "&lt;3")
}

func TestBotFilter(t *testing.T) {
	f := NewBotFilter("linkcheck")
	assert.True(t, f.IsBot("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	assert.True(t, f.IsBot("Proofpoint URL Defense"))
	assert.True(t, f.IsBot("LinkCheck/1.0"))
	assert.False(t, f.IsBot("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"))

	var none *BotFilter
	assert.False(t, none.IsBot("Googlebot"))
}
