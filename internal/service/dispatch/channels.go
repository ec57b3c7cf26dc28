package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// Instrumenter adds open and click tracking to an email body.
type Instrumenter interface {
	Instrument(body, trackingID string) (string, error)
}

// EmailChannel sends tracked email.
type EmailChannel struct {
	provider Provider
	links    Instrumenter
	newID    func() string
}

// NewEmailChannel creates the email strategy. With a nil instrumenter mail
// goes out untracked.
func NewEmailChannel(p Provider, links Instrumenter) *EmailChannel {
	return &EmailChannel{
		provider: p,
		links:    links,
		newID:    func() string { return uuid.New().String() },
	}
}

// Send implements Channel.
func (c *EmailChannel) Send(ctx context.Context, recipient domain.Contact, msg Message) Result {
	to := strings.TrimSpace(recipient.Email)
	if to == "" || !strings.Contains(to, "@") {
		return Failed(ErrMissingAddress)
	}

	body := msg.Body
	var trackingID string
	if c.links != nil {
		trackingID = c.newID()
		instrumented, err := c.links.Instrument(body, trackingID)
		if err != nil {
			return Failed(fmt.Errorf("instrument body: %w", err))
		}
		body = instrumented
	}

	externalID, err := c.provider.Deliver(ctx, Outbound{
		To:        to,
		Subject:   msg.Subject,
		Body:      body,
		ContactID: recipient.ID,
		ProjectID: recipient.ProjectID,
	})
	if err != nil {
		return Failed(err)
	}
	return Result{Status: domain.SendSent, ExternalID: externalID, TrackingID: trackingID}
}

// PhoneChannel sends untracked text messages. It serves both WhatsApp and
// SMS, which differ only in provider.
type PhoneChannel struct {
	provider Provider
}

// NewPhoneChannel creates a phone-number based strategy.
func NewPhoneChannel(p Provider) *PhoneChannel {
	return &PhoneChannel{provider: p}
}

// Send implements Channel. The subject is dropped.
func (c *PhoneChannel) Send(ctx context.Context, recipient domain.Contact, msg Message) Result {
	to := NormalizePhone(recipient.Phone)
	if to == "" {
		return Failed(ErrMissingPhone)
	}
	externalID, err := c.provider.Deliver(ctx, Outbound{
		To:        to,
		Body:      msg.Body,
		ContactID: recipient.ID,
		ProjectID: recipient.ProjectID,
	})
	if err != nil {
		return Failed(err)
	}
	return Result{Status: domain.SendSent, ExternalID: externalID}
}

// NormalizePhone strips formatting from a phone number, keeping a leading
// plus. Numbers with fewer than six digits are rejected as "".
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits < 6 {
		return ""
	}
	return b.String()
}
