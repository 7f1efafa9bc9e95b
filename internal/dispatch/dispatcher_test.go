package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/egress/callback"
	"github.com/stq-payments/notify-dispatcher/internal/egress/email"
	"github.com/stq-payments/notify-dispatcher/internal/egress/push"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

type mockDeadLetter struct {
	callbacks []domain.Callback
	emails    []domain.Email
	pushes    []domain.PushNotification
}

func (m *mockDeadLetter) PublishCallback(ctx context.Context, cb domain.Callback) error {
	m.callbacks = append(m.callbacks, cb)
	return nil
}
func (m *mockDeadLetter) PublishEmail(ctx context.Context, e domain.Email) error {
	m.emails = append(m.emails, e)
	return nil
}
func (m *mockDeadLetter) PublishPush(ctx context.Context, n domain.PushNotification) error {
	m.pushes = append(m.pushes, n)
	return nil
}

func newTestDispatcher(cb *callback.Mock, em *email.Mock, ps *push.Mock, dl *mockDeadLetter) *Dispatcher {
	d := New(cb, em, ps, dl, zap.NewNop())
	d.sleep = func(ctx context.Context, dur time.Duration) error { return nil }
	return d
}

func TestDispatch_HappyCallback(t *testing.T) {
	cb := &callback.Mock{}
	dl := &mockDeadLetter{}
	d := newTestDispatcher(cb, &email.Mock{}, &push.Mock{}, dl)

	body := []byte(`{"url":"https://h/x","amountCaptured":"100","currency":"eth","address":"0xabc","accountId":"550e8400-e29b-41d4-a716-446655440000"}`)

	if err := d.Dispatch(context.Background(), domain.QueueCallbacks, body); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(cb.Sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(cb.Sent))
	}
	if len(dl.callbacks) != 0 {
		t.Fatalf("expected no dead-letter publish, got %d", len(dl.callbacks))
	}
}

func TestDispatch_HappyPush(t *testing.T) {
	ps := &push.Mock{}
	dl := &mockDeadLetter{}
	d := newTestDispatcher(&callback.Mock{}, &email.Mock{}, ps, dl)

	body := []byte(`{"deviceId":"dev-1","transaction":{"id":"tx-1","from":["0xabc"],"to":"0xdef","fromValue":"1","fromCurrency":"eth","toValue":"1","toCurrency":"eth","fee":"0","status":"confirmed","createdAt":"2026-07-31T00:00:00Z","updatedAt":"2026-07-31T00:00:00Z"}}`)

	if err := d.Dispatch(context.Background(), domain.QueuePushes, body); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(ps.Sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(ps.Sent))
	}
	if len(dl.pushes) != 0 {
		t.Fatalf("expected no dead-letter publish, got %d", len(dl.pushes))
	}
}

func TestDispatch_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	var observedDelays []time.Duration

	cb := &callback.Mock{
		SendFn: func(ctx context.Context, c domain.Callback) error {
			attempts++
			if attempts < 3 {
				return errors.New("boom")
			}
			return nil
		},
	}
	dl := &mockDeadLetter{}
	d := New(cb, &email.Mock{}, &push.Mock{}, dl, zap.NewNop())
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		observedDelays = append(observedDelays, dur)
		return nil
	}

	body := []byte(`{"url":"https://h/x","amountCaptured":"1","currency":"eth","address":"0x1","accountId":"550e8400-e29b-41d4-a716-446655440000"}`)
	if err := d.Dispatch(context.Background(), domain.QueueCallbacks, body); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(observedDelays) != 2 || observedDelays[0] != 2*time.Second || observedDelays[1] != 4*time.Second {
		t.Fatalf("unexpected delays: %v", observedDelays)
	}
	if len(dl.callbacks) != 0 {
		t.Fatalf("expected no dead-letter publish")
	}
}

func TestDispatch_ExhaustsScheduleThenDeadLetters(t *testing.T) {
	attempts := 0
	cb := &callback.Mock{
		SendFn: func(ctx context.Context, c domain.Callback) error {
			attempts++
			return errors.New("always fails")
		},
	}
	dl := &mockDeadLetter{}
	d := newTestDispatcher(cb, &email.Mock{}, &push.Mock{}, dl)

	body := []byte(`{"url":"https://h/x","amountCaptured":"1","currency":"eth","address":"0x1","accountId":"550e8400-e29b-41d4-a716-446655440000"}`)
	if err := d.Dispatch(context.Background(), domain.QueueCallbacks, body); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if attempts != len(RetrySchedule)+1 {
		t.Fatalf("expected %d attempts, got %d", len(RetrySchedule)+1, attempts)
	}
	if len(dl.callbacks) != 1 {
		t.Fatalf("expected exactly one dead-letter publish, got %d", len(dl.callbacks))
	}
}

func TestDispatch_MalformedJSON_TerminalNoRetryNoDeadLetter(t *testing.T) {
	em := &email.Mock{}
	dl := &mockDeadLetter{}
	d := newTestDispatcher(&callback.Mock{}, em, &push.Mock{}, dl)

	if err := d.Dispatch(context.Background(), domain.QueueEmails, []byte(`{not json`)); err != nil {
		t.Fatalf("Dispatch should terminally ack malformed payloads, got err: %v", err)
	}
	if len(em.Sent) != 0 {
		t.Fatalf("expected no egress call for malformed payload")
	}
	if len(dl.emails) != 0 {
		t.Fatalf("expected no dead-letter publish for malformed payload")
	}
}

func TestDispatch_UnknownQueue_ReturnsNotSupported(t *testing.T) {
	d := newTestDispatcher(&callback.Mock{}, &email.Mock{}, &push.Mock{}, &mockDeadLetter{})

	err := d.Dispatch(context.Background(), "foo", []byte(`{}`))
	if !errs.Is(err, errs.KindNotSupported) {
		t.Fatalf("expected a NotSupported error for an unsupported queue, got %v", err)
	}
}

func TestDispatch_ContextCancelledDuringRetryWait(t *testing.T) {
	cb := &callback.Mock{
		SendFn: func(ctx context.Context, c domain.Callback) error {
			return errors.New("always fails")
		},
	}
	d := New(cb, &email.Mock{}, &push.Mock{}, &mockDeadLetter{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		cancel()
		return ctx.Err()
	}

	body := []byte(`{"url":"https://h/x","amountCaptured":"1","currency":"eth","address":"0x1","accountId":"550e8400-e29b-41d4-a716-446655440000"}`)
	err := d.Dispatch(ctx, domain.QueueCallbacks, body)
	if err == nil {
		t.Fatal("expected cancellation to surface as an error")
	}
}
