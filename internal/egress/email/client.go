// Package email sends transactional mail through SendGrid's v3 mail/send
// API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// Client sends one Email and reports success or a tagged failure.
type Client interface {
	Send(ctx context.Context, e domain.Email) error
}

type client struct {
	httpClient   *http.Client
	apiAddr      string
	apiKey       string
	sendMailPath string
	fromEmail    string
}

// New builds a Client targeting apiAddr/sendMailPath, authenticated with
// apiKey, sending from fromEmail.
func New(httpClient *http.Client, apiAddr, apiKey, sendMailPath, fromEmail string) Client {
	return &client{
		httpClient:   httpClient,
		apiAddr:      apiAddr,
		apiKey:       apiKey,
		sendMailPath: sendMailPath,
		fromEmail:    fromEmail,
	}
}

type personalization struct {
	To []recipient `json:"to"`
}

type recipient struct {
	Email string `json:"email"`
}

type sender struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPayload struct {
	Personalizations []personalization `json:"personalizations"`
	From             sender            `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

func (c *client) Send(ctx context.Context, e domain.Email) error {
	payload := sendGridPayload{
		Personalizations: []personalization{{To: []recipient{{Email: e.To}}}},
		From:             sender{Email: c.fromEmail},
		Subject:          e.Subject,
		Content:          []content{{Type: "text/html", Value: e.Text}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.KindMalformedInput, err, "encode sendgrid payload")
	}

	url := fmt.Sprintf("%s/%s", c.apiAddr, c.sendMailPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "build sendgrid request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "send email")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.New(errs.KindUnauthorized, fmt.Sprintf("sendgrid returned %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.New(errs.KindMalformedInput, fmt.Sprintf("sendgrid returned %d", resp.StatusCode))
	default:
		return errs.New(errs.KindInternal, fmt.Sprintf("sendgrid returned %d", resp.StatusCode))
	}
}
