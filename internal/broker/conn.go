// Package broker owns the dispatcher's single long-lived AMQP connection,
// its pooled confirm-mode channels, the consumer subscriber and the
// dead-letter publisher.
package broker

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// connState mirrors the spec's Connection state machine.
type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateClosing
	stateClosed
	stateErrored
)

// urlHostPort extracts the @host:port portion of an AMQP URL, the
// deterministic capture the connection manager uses to decide whether a URL
// is well-formed before dialing it.
var urlHostPort = regexp.MustCompile(`@([^/:@]+):(\d+)`)

// Manager owns one authenticated AMQP connection, its heartbeat watcher and
// the channel pool built on top of it.
type Manager struct {
	url               string
	connectionTimeout time.Duration

	logger *zap.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	state atomic.Int32

	pool *channelPool
}

// Connect dials the broker, validates its URL shape, and starts the
// heartbeat watcher. poolSize bounds the confirm-mode channel pool.
func Connect(ctx context.Context, url string, connectionTimeout time.Duration, poolSize int32, logger *zap.Logger) (*Manager, error) {
	if !urlHostPort.MatchString(url) {
		return nil, errs.New(errs.KindRabbitURL, "amqp url must contain @host:port")
	}

	m := &Manager{
		url:               url,
		connectionTimeout: connectionTimeout,
		logger:            logger,
	}
	m.state.Store(int32(stateConnecting))

	if err := m.dial(ctx); err != nil {
		return nil, err
	}

	pool, err := newChannelPool(m, poolSize)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.pool = pool

	go m.watchHeartbeat()

	return m, nil
}

func (m *Manager) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.connectionTimeout)
	defer cancel()

	dialErr := make(chan error, 1)
	connCh := make(chan *amqp.Connection, 1)
	go func() {
		conn, err := amqp.Dial(m.url)
		if err != nil {
			dialErr <- err
			return
		}
		connCh <- conn
	}()

	select {
	case <-dialCtx.Done():
		return errs.New(errs.KindConnectionTimeout, "timed out connecting to broker")
	case err := <-dialErr:
		return errs.Wrap(errs.KindTCPConnection, err, "dial broker")
	case conn := <-connCh:
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.state.Store(int32(stateConnected))
		return nil
	}
}

// watchHeartbeat blocks until the connection reports closed (heartbeat
// failure or socket error) and marks the manager Errored, sticky until
// teardown.
func (m *Manager) watchHeartbeat() {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return
	}

	reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if m.state.Load() == int32(stateClosing) || m.state.Load() == int32(stateClosed) {
		return
	}
	if ok {
		m.logger.Warn("broker connection closed", zap.Error(reason))
	}
	m.state.Store(int32(stateErrored))
}

// broken reports whether the underlying connection can no longer serve
// acquisitions.
func (m *Manager) broken() bool {
	switch connState(m.state.Load()) {
	case stateClosing, stateClosed, stateErrored:
		return true
	default:
		return false
	}
}

// AcquireChannel hands out an Open confirm-mode channel with
// prefetch_count=10 from the pool. It fails fast if the connection is
// Errored or Closed; the caller must re-create the Manager in that case.
func (m *Manager) AcquireChannel(ctx context.Context) (*PooledChannel, error) {
	if m.broken() {
		return nil, errs.New(errs.KindRabbitConnection, "connection is errored or closed")
	}
	return m.pool.acquire(ctx)
}

// Connection returns the underlying AMQP connection. The channel pool's
// constructor opens its channels on it; the consumer subscriber and the
// publisher work through pooled channels from AcquireChannel instead.
func (m *Manager) Connection() *amqp.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Close tears the manager and its pool down.
func (m *Manager) Close() error {
	m.state.Store(int32(stateClosing))
	if m.pool != nil {
		m.pool.close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.conn != nil {
		err = m.conn.Close()
	}
	m.state.Store(int32(stateClosed))
	if err != nil {
		return fmt.Errorf("broker: close connection: %w", err)
	}
	return nil
}
