package tracking

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/httputil"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	trackingsvc "github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler serves tracking pixels and click redirects. Recording failures
// are logged and never change the response.
type Handler struct {
	rec   Recorder
	links *trackingsvc.LinkBuilder
	now   func() time.Time
}

// NewHandler creates a tracking handler. links verifies click signatures.
func NewHandler(rec Recorder, links *trackingsvc.LinkBuilder) *Handler {
	return &Handler{rec: rec, links: links, now: time.Now}
}

// Routes mounts the tracking endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track", h.HandleTrack)
	r.Get("/health", h.HandleHealth)
	return r
}

func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch domain.TrackingEventType(q.Get("type")) {
	case domain.EventOpen:
		h.handleOpen(w, r, q.Get("t"))
	case domain.EventClick:
		h.handleClick(w, r, q.Get("t"), q.Get("url"), q.Get("sig"))
	default:
		httputil.BadRequest(w, "unknown tracking type")
	}
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request, trackingID string) {
	if trackingID != "" {
		h.record(r, domain.TrackingEvent{TrackingID: trackingID, Type: domain.EventOpen})
	}
	servePixel(w)
}

func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request, trackingID, dest, sig string) {
	if !redirectable(dest) {
		httputil.BadRequest(w, "bad link")
		return
	}
	if h.links != nil && !h.links.Verify(trackingID, dest, sig) {
		logger.Warn("rejecting click with bad signature", "tracking_id", trackingID)
		httputil.BadRequest(w, "bad link")
		return
	}
	if trackingID != "" {
		h.record(r, domain.TrackingEvent{TrackingID: trackingID, Type: domain.EventClick, URL: dest})
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) record(r *http.Request, evt domain.TrackingEvent) {
	evt.IPAddress = realIP(r)
	evt.UserAgent = r.UserAgent()
	evt.OccurredAt = h.now().UTC()
	if err := h.rec.Record(r.Context(), evt); err != nil {
		logger.Error("tracking event not recorded", "tracking_id", evt.TrackingID, "type", string(evt.Type), "error", err)
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// redirectable accepts absolute http(s) URLs only.
func redirectable(dest string) bool {
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
