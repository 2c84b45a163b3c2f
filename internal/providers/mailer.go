package providers

import (
	"context"
	"strings"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// MailerClient talks to an HTTP transactional-email API.
type MailerClient struct {
	caller
	baseURL string
	apiKey  string
	from    string
}

// NewMailerClient creates a transactional-email client. from is the sender
// address applied to every message.
func NewMailerClient(cfg Config, breakers *BreakerRegistry, from string) *MailerClient {
	return &MailerClient{
		caller:  newCaller("mailer", cfg, breakers),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    from,
	}
}

// Email is one outbound message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendReceipt confirms an accepted message.
type SendReceipt struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send submits one email for delivery.
func (c *MailerClient) Send(ctx context.Context, email Email) (*SendReceipt, error) {
	if email.To == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "mailer: recipient address is empty")
	}
	if email.Subject == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "mailer: subject is empty")
	}

	req := sendRequest{
		From:    c.from,
		To:      email.To,
		Subject: email.Subject,
		Text:    email.Body,
	}

	var resp sendResponse
	err := c.postJSON(ctx, c.baseURL+"/send", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, req, &resp)
	if err != nil {
		return nil, err
	}

	return &SendReceipt{MessageID: resp.ID, To: email.To}, nil
}
