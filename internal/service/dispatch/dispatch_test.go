package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []Outbound
	err  error
}

func (p *recordingProvider) Deliver(_ context.Context, out Outbound) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, out)
	return "ext-" + out.ContactID, nil
}

type fakeLinks struct{}

func (fakeLinks) Instrument(body, trackingID string) (string, error) {
	return body + "<!--" + trackingID + "-->", nil
}

func TestEmailChannelTracksAndDelivers(t *testing.T) {
	p := &recordingProvider{}
	ch := NewEmailChannel(p, fakeLinks{})
	ch.newID = func() string { return "tid-1" }

	res := ch.Send(context.Background(),
		domain.Contact{ID: "c1", Email: " anna@example.com ", ProjectID: "proj"},
		Message{Subject: "Hello", Body: "<p>hi</p>"})

	require.NoError(t, res.Err)
	assert.Equal(t, domain.SendSent, res.Status)
	assert.Equal(t, "ext-c1", res.ExternalID)
	assert.Equal(t, "tid-1", res.TrackingID)
	require.Len(t, p.sent, 1)
	assert.Equal(t, Outbound{To: "anna@example.com", Subject: "Hello", Body: "<p>hi</p><!--tid-1-->", ContactID: "c1", ProjectID: "proj"}, p.sent[0])
}

func TestEmailChannelFreshTrackingIDPerSend(t *testing.T) {
	ch := NewEmailChannel(&recordingProvider{}, fakeLinks{})
	a := ch.Send(context.Background(), domain.Contact{ID: "a", Email: "a@example.com"}, Message{})
	b := ch.Send(context.Background(), domain.Contact{ID: "b", Email: "b@example.com"}, Message{})
	assert.NotEmpty(t, a.TrackingID)
	assert.NotEqual(t, a.TrackingID, b.TrackingID)
}

func TestChannelsFailWithoutContactData(t *testing.T) {
	p := &recordingProvider{}

	res := NewEmailChannel(p, nil).Send(context.Background(), domain.Contact{ID: "c"}, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrMissingAddress)

	res = NewPhoneChannel(p).Send(context.Background(), domain.Contact{ID: "c", Phone: "n/a"}, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrMissingPhone)

	assert.Empty(t, p.sent)
}

func TestPhoneChannelHasNoTracking(t *testing.T) {
	p := &recordingProvider{}
	res := NewPhoneChannel(p).Send(context.Background(),
		domain.Contact{ID: "c", Phone: "+39 (333) 123-4567"},
		Message{Subject: "ignored", Body: "Ciao"})

	assert.Equal(t, domain.SendSent, res.Status)
	assert.Empty(t, res.TrackingID)
	require.Len(t, p.sent, 1)
	assert.Equal(t, "+393331234567", p.sent[0].To)
	assert.Empty(t, p.sent[0].Subject)
}

type panickyChannel struct{}

func (panickyChannel) Send(context.Context, domain.Contact, Message) Result { panic("boom") }

func TestDispatcherNeverErrors(t *testing.T) {
	d := NewDispatcher()
	d.Register(domain.ChannelEmail, NewEmailChannel(&recordingProvider{err: errors.New("ses throttled")}, nil), 0, 0)
	d.Register(domain.ChannelSMS, panickyChannel{}, 0, 0)
	ctx := context.Background()
	rcpt := domain.Contact{ID: "c", Email: "c@example.com", Phone: "+15551234567"}

	res := d.Send(ctx, domain.ChannelEmail, rcpt, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.EqualError(t, res.Err, "ses throttled")
	assert.Equal(t, "ses throttled", res.ErrorText())

	res = d.Send(ctx, domain.ChannelSMS, rcpt, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrProviderPanic)

	res = d.Send(ctx, "fax", rcpt, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrUnknownChannel)
}

func TestDispatcherRateLimitHonorsContext(t *testing.T) {
	d := NewDispatcher()
	d.Register(domain.ChannelWhatsApp, NewPhoneChannel(&recordingProvider{}), 0.001, 1)
	rcpt := domain.Contact{ID: "c", Phone: "+15551234567"}

	res := d.Send(context.Background(), domain.ChannelWhatsApp, rcpt, Message{})
	require.Equal(t, domain.SendSent, res.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res = d.Send(ctx, domain.ChannelWhatsApp, rcpt, Message{})
	assert.Equal(t, domain.SendFailed, res.Status)
	assert.Contains(t, res.ErrorText(), "rate limit")
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+393331234567", NormalizePhone(" +39 333 123 4567 "))
	assert.Equal(t, "0212345678", NormalizePhone("02-1234-5678"))
	assert.Equal(t, "", NormalizePhone("123"))
	assert.Equal(t, "", NormalizePhone(""))
}

func TestProviderFunc(t *testing.T) {
	var got Outbound
	p := ProviderFunc(func(_ context.Context, out Outbound) (string, error) {
		got = out
		return "id", nil
	})
	id, err := p.Deliver(context.Background(), Outbound{To: "x"})
	require.NoError(t, err)
	assert.Equal(t, "id", id)
	assert.Equal(t, "x", got.To)
}
