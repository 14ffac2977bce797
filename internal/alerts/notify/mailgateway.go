package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type mailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
}

// MailGatewayChannel posts messages to an HTTP mail gateway.
type MailGatewayChannel struct {
	url    string
	from   string
	client *http.Client
}

// MailGatewayOption configures the channel.
type MailGatewayOption func(*MailGatewayChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) MailGatewayOption {
	return func(ch *MailGatewayChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewMailGatewayChannel constructs a mail gateway channel.
func NewMailGatewayChannel(url, from string, opts ...MailGatewayOption) (*MailGatewayChannel, error) {
	if url == "" {
		return nil, errors.New("mail gateway: empty url")
	}
	channel := &MailGatewayChannel{
		url:    url,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the message. An empty recipient list is rejected before any
// network call.
func (c *MailGatewayChannel) Send(ctx context.Context, msg Message) (bool, error) {
	if c == nil || c.url == "" {
		return false, errors.New("mail gateway: empty url")
	}
	if len(msg.To) == 0 {
		return false, errors.New("mail gateway: no recipients")
	}
	if msg.From == "" {
		msg.From = c.from
	}
	payload := mailPayload{
		From:    msg.From,
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Body:    msg.Body,
		HTML:    msg.HTML,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("mail gateway: non-2xx response %d", resp.StatusCode)
	}
	return true, nil
}
