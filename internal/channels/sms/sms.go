// Package sms delivers campaign messages through the SMS relay provider.
package sms

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/Santonastaso/crm-demo-sub000/internal/channels/relay"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
)

// MaxLength is the longest body the provider concatenates into one message.
const MaxLength = 1600

// Provider sends SMS messages.
type Provider struct {
	relay *relay.Client
}

// New creates an SMS provider from config.
func New(cfg config.ProviderConfig) *Provider {
	return &Provider{relay: relay.New(relay.Options{
		Name:       "sms",
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Sender:     cfg.Sender,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})}
}

// Deliver implements dispatch.Provider.
func (p *Provider) Deliver(ctx context.Context, out dispatch.Outbound) (string, error) {
	if n := utf8.RuneCountInString(out.Body); n > MaxLength {
		return "", fmt.Errorf("sms: body is %d characters, limit is %d", n, MaxLength)
	}
	out.Subject = ""
	return p.relay.Deliver(ctx, out)
}
