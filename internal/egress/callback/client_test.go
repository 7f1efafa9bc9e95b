package callback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
)

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hexEncode(crypto.FromECDSA(key))
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

func TestClient_Send_SignsExactBody(t *testing.T) {
	var gotBody []byte
	var gotSign string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSign = r.Header.Get("Sign")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	keyHex := testKeyHex(t)
	c, err := New(srv.Client(), keyHex)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cb := domain.Callback{
		URL:            srv.URL,
		AmountCaptured: "100",
		Currency:       "eth",
		Address:        "0xabc",
		AccountID:      uuid.New(),
	}

	if err := c.Send(context.Background(), cb); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotSign == "" {
		t.Fatal("expected Sign header to be set")
	}
	if len(gotBody) == 0 {
		t.Fatal("expected a non-empty request body")
	}

	sig, err := hex.DecodeString(gotSign)
	if err != nil {
		t.Fatalf("Sign header is not hex: %v", err)
	}
	digest := sha256.Sum256(gotBody)
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("Sign header does not verify against the exact request body")
	}
}

func TestStatusToError(t *testing.T) {
	cases := []struct {
		status int
		nilErr bool
	}{
		{200, true},
		{204, true},
		{401, false},
		{422, false},
		{500, false},
	}
	for _, tc := range cases {
		err := statusToError(tc.status)
		if tc.nilErr != (err == nil) {
			t.Errorf("status %d: got err=%v, want nil=%v", tc.status, err, tc.nilErr)
		}
	}
}
