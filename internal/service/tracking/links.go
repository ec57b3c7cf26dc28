package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// LinkBuilder generates tracking URLs served by the tracking endpoint.
type LinkBuilder struct {
	baseURL    string
	signingKey []byte
}

// NewLinkBuilder creates a link builder for the tracking host at baseURL.
// An empty signing key produces unsigned click links.
func NewLinkBuilder(baseURL, signingKey string) *LinkBuilder {
	return &LinkBuilder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
	}
}

// Signed reports whether click links carry a signature.
func (b *LinkBuilder) Signed() bool { return len(b.signingKey) > 0 }

// OpenURL returns the open-pixel URL for a send.
func (b *LinkBuilder) OpenURL(trackingID string) string {
	q := url.Values{}
	q.Set("t", trackingID)
	q.Set("type", string(domain.EventOpen))
	return b.baseURL + "/track?" + q.Encode()
}

// ClickURL returns a tracked redirect to dest.
func (b *LinkBuilder) ClickURL(trackingID, dest string) string {
	q := url.Values{}
	q.Set("t", trackingID)
	q.Set("type", string(domain.EventClick))
	q.Set("url", dest)
	if b.Signed() {
		q.Set("sig", b.Sign(trackingID, dest))
	}
	return b.baseURL + "/track?" + q.Encode()
}

// Sign returns the truncated HMAC-SHA256 of the tracking id and destination.
func (b *LinkBuilder) Sign(trackingID, dest string) string {
	h := hmac.New(sha256.New, b.signingKey)
	h.Write([]byte(trackingID + "|" + dest))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Verify checks a click link signature. Without a signing key every link
// verifies.
func (b *LinkBuilder) Verify(trackingID, dest, sig string) bool {
	if !b.Signed() {
		return true
	}
	return hmac.Equal([]byte(b.Sign(trackingID, dest)), []byte(sig))
}

// owns reports whether u already points at the tracking endpoint.
func (b *LinkBuilder) owns(u string) bool {
	return b.baseURL != "" && strings.HasPrefix(u, b.baseURL+"/track")
}
