package callback

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

	SendFn func(ctx context.Context, cb domain.Callback) error
	Sent   []domain.Callback
}

func (m *Mock) Send(ctx context.Context, cb domain.Callback) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, cb)
	m.mu.Unlock()
	if m.SendFn != nil {
		return m.SendFn(ctx, cb)
	}
	return nil
}
