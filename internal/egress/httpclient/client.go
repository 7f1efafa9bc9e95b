// Package httpclient provides the thin HTTP transport shared by the
// callback, email and push egress clients.
package httpclient

import (
	"net/http"
	"time"
)

// New returns an *http.Client configured with the given timeout. A zero
// timeout falls back to a conservative default so a misconfigured egress
// client can never block a dispatch goroutine forever.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
