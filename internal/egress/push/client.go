// Package push sends push notifications to the configured gateway URL.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// Client sends one push notification and reports success or a tagged
// failure.
type Client interface {
	Send(ctx context.Context, n domain.PushNotification) error
}

type client struct {
	httpClient *http.Client
	gatewayURL string
}

// New builds a Client posting to gatewayURL.
func New(httpClient *http.Client, gatewayURL string) Client {
	return &client{httpClient: httpClient, gatewayURL: gatewayURL}
}

func (c *client) Send(ctx context.Context, n domain.PushNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return errs.Wrap(errs.KindMalformedInput, err, "encode push notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "send push")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.New(errs.KindUnauthorized, fmt.Sprintf("push gateway returned %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.New(errs.KindMalformedInput, fmt.Sprintf("push gateway returned %d", resp.StatusCode))
	default:
		return errs.New(errs.KindInternal, fmt.Sprintf("push gateway returned %d", resp.StatusCode))
	}
}

// disabledClient is bound in place of client when the push egress is turned
// off by configuration; it always reports success without making a network
// call (Design Notes: drive disablement via config, not code deletion).
type disabledClient struct{}

// NewDisabled returns a Client whose Send always succeeds without sending
// anything.
func NewDisabled() Client {
	return disabledClient{}
}

func (disabledClient) Send(ctx context.Context, n domain.PushNotification) error {
	return nil
}
