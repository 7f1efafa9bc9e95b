// Package callback sends signed HTTP callbacks to an account's configured
// webhook URL.
package callback

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// Client sends one Callback and reports success or a tagged failure.
type Client interface {
	Send(ctx context.Context, cb domain.Callback) error
}

type client struct {
	httpClient *http.Client
	privateKey *ecdsa.PrivateKey
}

// New builds a Client that signs each request body with secpPrivateKeyHex
// (a secp256k1 private key in hex form) and POSTs it to cb.URL.
func New(httpClient *http.Client, secpPrivateKeyHex string) (Client, error) {
	key, err := crypto.HexToECDSA(secpPrivateKeyHex)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "parse secp256k1 private key")
	}
	return &client{httpClient: httpClient, privateKey: key}, nil
}

func (c *client) Send(ctx context.Context, cb domain.Callback) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return errs.Wrap(errs.KindMalformedInput, err, "encode callback")
	}

	digest := sha256.Sum256(body)
	sig, err := crypto.Sign(digest[:], c.privateKey)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "sign callback body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "build callback request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sign", hex.EncodeToString(sig))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "send callback")
	}
	defer resp.Body.Close()

	return statusToError(resp.StatusCode)
}

func statusToError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return errs.New(errs.KindUnauthorized, fmt.Sprintf("callback returned %d", status))
	case status >= 400 && status < 500:
		return errs.New(errs.KindMalformedInput, fmt.Sprintf("callback returned %d", status))
	default:
		return errs.New(errs.KindInternal, fmt.Sprintf("callback returned %d", status))
	}
}
