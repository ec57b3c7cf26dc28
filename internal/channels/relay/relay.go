// Package relay is the HTTP client for messaging providers that accept the
// CRM's outbound contract: a JSON body {to, subject, body, contact_id,
// project_id} answered with {external_id}.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/httpretry"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
)

// Request is the payload posted to the provider.
type Request struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
	ContactID string `json:"contact_id"`
	ProjectID string `json:"project_id,omitempty"`
}

// Response is the provider's answer. Error is set on rejections.
type Response struct {
	ExternalID string `json:"external_id"`
	Error      string `json:"error,omitempty"`
}

// Options configures a Client.
type Options struct {
	Name       string
	BaseURL    string
	APIKey     string
	Sender     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient httpretry.HTTPDoer
}

// Client posts outbound messages to one provider endpoint.
type Client struct {
	name   string
	url    string
	apiKey string
	sender string
	http   httpretry.HTTPDoer
}

// New creates a client. HTTPClient defaults to an http.Client with
// Timeout, wrapped in a retrying client.
func New(opts Options) *Client {
	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		name:   opts.Name,
		url:    opts.BaseURL,
		apiKey: opts.APIKey,
		sender: opts.Sender,
		http:   httpretry.NewRetryClient(doer, opts.MaxRetries),
	}
}

// Deliver implements dispatch.Provider.
func (c *Client) Deliver(ctx context.Context, out dispatch.Outbound) (string, error) {
	payload, err := json.Marshal(Request{
		To:        out.To,
		From:      c.sender,
		Subject:   out.Subject,
		Body:      out.Body,
		ContactID: out.ContactID,
		ProjectID: out.ProjectID,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", c.name, err)
	}

	var parsed Response
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode >= 300 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = string(bytes.TrimSpace(body))
		}
		return "", fmt.Errorf("%s: provider returned %d: %s", c.name, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.name, decodeErr)
	}
	if parsed.ExternalID == "" {
		return "", fmt.Errorf("%s: provider response has no external_id", c.name)
	}
	return parsed.ExternalID, nil
}
