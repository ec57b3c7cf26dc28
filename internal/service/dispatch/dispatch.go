package dispatch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/metrics"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
)

// Message is the rendered content of one step for one recipient.
type Message struct {
	CampaignID string
	StepOrder  int
	Subject    string
	Body       string
}

// Result is the outcome of one delivery attempt. Status is either
// domain.SendSent or domain.SendFailed.
type Result struct {
	Status     domain.SendStatus
	ExternalID string
	TrackingID string
	Err        error
}

// Failed builds a failed Result.
func Failed(err error) Result {
	return Result{Status: domain.SendFailed, Err: err}
}

// ErrorText returns the failure reason for storage, or "".
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Channel is a delivery strategy for one channel.
type Channel interface {
	Send(ctx context.Context, recipient domain.Contact, msg Message) Result
}

// Outbound is what a provider receives. Subject is empty for channels that
// have none.
type Outbound struct {
	To        string
	Subject   string
	Body      string
	ContactID string
	ProjectID string
}

// Provider is an external delivery collaborator. It returns the provider's
// message id.
type Provider interface {
	Deliver(ctx context.Context, out Outbound) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, out Outbound) (string, error)

// Deliver calls f.
func (f ProviderFunc) Deliver(ctx context.Context, out Outbound) (string, error) { return f(ctx, out) }

// Dispatcher routes deliveries to the registered channel strategies.
// Safe for concurrent use once registration is done.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[domain.Channel]Channel
	limiters map[domain.Channel]*rate.Limiter
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		channels: make(map[domain.Channel]Channel),
		limiters: make(map[domain.Channel]*rate.Limiter),
	}
}

// Register installs ch under name. A positive perSecond throttles the
// channel to that rate with the given burst; zero leaves it unthrottled.
func (d *Dispatcher) Register(name domain.Channel, ch Channel, perSecond float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[name] = ch
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		d.limiters[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
	} else {
		delete(d.limiters, name)
	}
}

// Channels lists the registered channel names.
func (d *Dispatcher) Channels() []domain.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Channel, 0, len(d.channels))
	for name := range d.channels {
		out = append(out, name)
	}
	return out
}

// Send delivers msg to recipient over the named channel. It never returns
// an error; every problem is reported as a failed Result.
func (d *Dispatcher) Send(ctx context.Context, channel domain.Channel, recipient domain.Contact, msg Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("%w: %v", ErrProviderPanic, r))
		}
		metrics.Sends.WithLabelValues(string(channel), string(res.Status)).Inc()
		if res.Err != nil {
			logger.Warn("dispatch failed",
				"campaign_id", msg.CampaignID,
				"step", msg.StepOrder,
				"contact_id", recipient.ID,
				"channel", channel,
				"error", res.Err)
		}
	}()

	d.mu.RLock()
	ch, ok := d.channels[channel]
	limiter := d.limiters[channel]
	d.mu.RUnlock()
	if !ok {
		return Failed(fmt.Errorf("%w: %q", ErrUnknownChannel, channel))
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Failed(fmt.Errorf("rate limit wait: %w", err))
		}
	}
	return ch.Send(ctx, recipient, msg)
}
