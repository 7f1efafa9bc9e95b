package broker

import (
	"context"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

// queues is the fixed, closed set of work queues the dispatcher consumes
// from.
var queues = []string{domain.QueuePushes, domain.QueueCallbacks, domain.QueueEmails}

// Subscription pairs a queue's delivery stream with the channel and
// consumer tag that produced it, so the supervisor can cancel it later.
type Subscription struct {
	Queue       string
	ConsumerTag string
	Channel     *PooledChannel
	Deliveries  <-chan amqp.Delivery
}

// Subscribe declares each fixed queue durable and opens one consumer per
// queue, each on its own pooled channel. A failure anywhere aborts the
// whole attempt; already-acquired channels are released back to the pool.
func Subscribe(ctx context.Context, m *Manager) ([]*Subscription, error) {
	subs := make([]*Subscription, 0, len(queues))

	for _, queue := range queues {
		pc, err := m.AcquireChannel(ctx)
		if err != nil {
			releaseAll(subs)
			return nil, errs.Wrap(errs.KindRabbitConnection, err, "acquire channel for "+queue)
		}

		ch := pc.Channel()
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			pc.Release()
			releaseAll(subs)
			return nil, errs.Wrap(errs.KindInternal, err, "declare queue "+queue)
		}

		// The spec models this as an empty consumer-tag with the broker
		// assigning one; we generate the tag ourselves instead so the
		// supervisor can issue a targeted basic_cancel without relying on
		// inspecting the first delivery's ConsumerTag field.
		tag := "notifyd-" + uuid.NewString()
		deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			pc.Release()
			releaseAll(subs)
			return nil, errs.Wrap(errs.KindInternal, err, "consume queue "+queue)
		}

		subs = append(subs, &Subscription{
			Queue:       queue,
			ConsumerTag: tag,
			Channel:     pc,
			Deliveries:  deliveries,
		})
	}

	return subs, nil
}

func releaseAll(subs []*Subscription) {
	for _, s := range subs {
		s.Channel.Release()
	}
}

// Cancel performs the spec's orderly consumer teardown: nack the last-seen
// tag with requeue if one was recorded, issue basic_cancel, then
// basic_recover(requeue=true) so the broker redelivers any messages this
// consumer left unacked elsewhere.
func (s *Subscription) Cancel(lastTag uint64, haveLastTag bool) error {
	ch := s.Channel.Channel()

	if haveLastTag {
		if err := ch.Nack(lastTag, false, true); err != nil {
			return errs.Wrap(errs.KindInternal, err, "nack last tag on cancel")
		}
	}
	if err := ch.Cancel(s.ConsumerTag, false); err != nil {
		return errs.Wrap(errs.KindInternal, err, "cancel consumer "+s.ConsumerTag)
	}
	if err := ch.Recover(true); err != nil {
		return errs.Wrap(errs.KindInternal, err, "basic_recover on "+s.Queue)
	}
	return nil
}
