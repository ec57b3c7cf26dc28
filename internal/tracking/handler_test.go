package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	trackingsvc "github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
	err    error
}

func (c *captureRecorder) Record(_ context.Context, evt domain.TrackingEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return c.err
}

func serve(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleOpenServesPixel(t *testing.T) {
	rec := &captureRecorder{}
	h := NewHandler(rec, trackingsvc.NewLinkBuilder("https://t.example.com", "k"))

	resp := serve(t, h, "/track?t=tr-1&type=open")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/gif", resp.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, resp.Body.Bytes())
	require.Len(t, rec.events, 1)
	assert.Equal(t, "tr-1", rec.events[0].TrackingID)
	assert.Equal(t, domain.EventOpen, rec.events[0].Type)
	assert.Equal(t, "203.0.113.9", rec.events[0].IPAddress)
	assert.False(t, rec.events[0].OccurredAt.IsZero())
}

func TestHandleOpenNeverFails(t *testing.T) {
	rec := &captureRecorder{err: errors.New("db down")}
	h := NewHandler(rec, nil)

	resp := serve(t, h, "/track?t=unknown&type=open")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "image/gif", resp.Header().Get("Content-Type"))

	resp = serve(t, h, "/track?type=open")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, rec.events, 1, "an open without a tracking id records nothing")
}

func TestHandleClickRedirects(t *testing.T) {
	links := trackingsvc.NewLinkBuilder("https://t.example.com", "secret")
	rec := &captureRecorder{}
	h := NewHandler(rec, links)

	dest := "https://listings.example.com/villa?id=7"
	click, err := url.Parse(links.ClickURL("tr-9", dest))
	require.NoError(t, err)

	resp := serve(t, h, click.RequestURI())

	assert.Equal(t, http.StatusFound, resp.Code)
	assert.Equal(t, dest, resp.Header().Get("Location"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, domain.EventClick, rec.events[0].Type)
	assert.Equal(t, dest, rec.events[0].URL)
}

func TestHandleClickRejectsBadLinks(t *testing.T) {
	links := trackingsvc.NewLinkBuilder("https://t.example.com", "secret")
	rec := &captureRecorder{}
	h := NewHandler(rec, links)

	tests := []struct {
		name   string
		target string
	}{
		{"missing url", "/track?t=tr-1&type=click"},
		{"relative url", "/track?t=tr-1&type=click&url=%2Fadmin"},
		{"javascript url", "/track?t=tr-1&type=click&url=javascript%3Aalert(1)"},
		{"bad signature", "/track?t=tr-1&type=click&url=https%3A%2F%2Fevil.example.com&sig=deadbeefdeadbeef"},
		{"unsigned", "/track?t=tr-1&type=click&url=https%3A%2F%2Fevil.example.com"},
		{"unknown type", "/track?t=tr-1&type=bounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(t, h, tt.target)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
	assert.Empty(t, rec.events)
}

func TestHandleClickUnsignedWithoutKey(t *testing.T) {
	rec := &captureRecorder{}
	h := NewHandler(rec, trackingsvc.NewLinkBuilder("https://t.example.com", ""))

	resp := serve(t, h, "/track?t=tr-1&type=click&url=https%3A%2F%2Fexample.com%2Fa")
	assert.Equal(t, http.StatusFound, resp.Code)
	assert.Len(t, rec.events, 1)
}

func TestHandleHealth(t *testing.T) {
	resp := serve(t, NewHandler(&captureRecorder{}, nil), "/health")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}
