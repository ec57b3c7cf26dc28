// Package whatsapp delivers campaign messages through the WhatsApp relay
// provider.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Santonastaso/crm-demo-sub000/internal/channels/relay"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
)

// MaxLength is WhatsApp's text message limit.
const MaxLength = 4096

// Provider sends WhatsApp text messages.
type Provider struct {
	relay *relay.Client
}

// New creates a WhatsApp provider from config.
func New(cfg config.ProviderConfig) *Provider {
	return &Provider{relay: relay.New(relay.Options{
		Name:       "whatsapp",
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Sender:     cfg.Sender,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})}
}

// Deliver implements dispatch.Provider. The provider expects digits only,
// without the leading plus.
func (p *Provider) Deliver(ctx context.Context, out dispatch.Outbound) (string, error) {
	if n := utf8.RuneCountInString(out.Body); n > MaxLength {
		return "", fmt.Errorf("whatsapp: body is %d characters, limit is %d", n, MaxLength)
	}
	out.To = strings.TrimPrefix(out.To, "+")
	out.Subject = ""
	return p.relay.Deliver(ctx, out)
}
