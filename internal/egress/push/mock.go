package push

import (
	"context"
	"sync"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
)

var _ Client = (*Mock)(nil)

// Mock is a deterministic test double for Client. It always succeeds unless
// SendFn is set.
type Mock struct {
	mu sync.Mutex

	SendFn func(ctx context.Context, n domain.PushNotification) error
	Sent   []domain.PushNotification
}

func (m *Mock) Send(ctx context.Context, n domain.PushNotification) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, n)
	m.mu.Unlock()
	if m.SendFn != nil {
		return m.SendFn(ctx, n)
	}
	return nil
}
