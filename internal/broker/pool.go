package broker

import (
	"context"

	"github.com/jackc/puddle/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// prefetchCount is CONSUMER_PREFETCH_COUNT from the spec's constants.
const prefetchCount = 10

// channelPool is a fixed-size, no-idle-timeout pool of confirm-mode AMQP
// channels built on puddle. test_on_check_out is deliberately false: a
// channel is validated for brokenness only on check-in (see PooledChannel).
type channelPool struct {
	pool *puddle.Pool[*amqp.Channel]
}

func newChannelPool(m *Manager, maxSize int32) (*channelPool, error) {
	constructor := func(ctx context.Context) (*amqp.Channel, error) {
		conn := m.Connection()
		if conn == nil {
			return nil, errs.New(errs.KindRabbitConnection, "no underlying connection")
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, errs.Wrap(errs.KindRabbitConnection, err, "open channel")
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return nil, errs.Wrap(errs.KindRabbitConnection, err, "enable confirms")
		}
		if err := ch.Qos(prefetchCount, 0, false); err != nil {
			ch.Close()
			return nil, errs.Wrap(errs.KindRabbitConnection, err, "set prefetch")
		}
		return ch, nil
	}

	destructor := func(ch *amqp.Channel) {
		_ = ch.Close()
	}

	p, err := puddle.NewPool(&puddle.Config[*amqp.Channel]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     maxSize,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "create channel pool")
	}

	return &channelPool{pool: p}, nil
}

// PooledChannel is an acquired channel plus the puddle handle needed to
// return or discard it on check-in.
type PooledChannel struct {
	res *puddle.Resource[*amqp.Channel]
}

// Channel returns the underlying amqp channel.
func (p *PooledChannel) Channel() *amqp.Channel {
	return p.res.Value()
}

// Release returns the channel to the pool, or discards it if the channel
// itself reports closed rather than handing a dead channel to the next
// acquirer. The manager's connection state is not checked here; that check
// happens in Manager.AcquireChannel before each acquisition.
func (p *PooledChannel) Release() {
	ch := p.res.Value()
	if ch.IsClosed() {
		p.res.Destroy()
		return
	}
	p.res.Release()
}

func (c *channelPool) acquire(ctx context.Context) (*PooledChannel, error) {
	res, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindRabbitConnection, err, "acquire channel from pool")
	}
	return &PooledChannel{res: res}, nil
}

func (c *channelPool) close() {
	c.pool.Close()
}
