// Package supervisor owns the consumer lifetime: subscribe, drive
// deliveries through the dispatcher until the resubscribe deadline, cancel
// consumers in an orderly fashion, reconnect, repeat. It is the
// ack/nack arbitration point for every delivery the dispatcher sees,
// adapted from the teacher's fixed-goroutine worker pool into an AMQP
// supervisor loop.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/broker"
	"github.com/stq-payments/notify-dispatcher/internal/dispatch"
	"github.com/stq-payments/notify-dispatcher/internal/metrics"
)

// DelayBeforeNack is the spec's DELAY_BEFORE_NACK constant.
const DelayBeforeNack = 1000 * time.Millisecond

// DelayBeforeReconnect is the spec's DELAY_BEFORE_RECONNECT constant.
const DelayBeforeReconnect = 1000 * time.Millisecond

// Dialer builds a fresh broker.Manager; the supervisor calls it once per
// reconnect cycle so a broken connection is never reused.
type Dialer func(ctx context.Context) (*broker.Manager, error)

// Counters are the spec's observational-only delivery counters.
type Counters struct {
	Received      atomic.Int64
	AckAttempted  atomic.Int64
	AckConfirmed  atomic.Int64
	NackAttempted atomic.Int64
	NackConfirmed atomic.Int64
}

// Supervisor drives the subscribe/dispatch/resubscribe loop forever until
// its context is cancelled.
type Supervisor struct {
	dial                Dialer
	dispatcher          *dispatch.Dispatcher
	restartSubscription time.Duration
	logger              *zap.Logger
	counters            Counters
}

// New builds a Supervisor. restartSubscription is
// rabbit.restart_subscription_secs from configuration.
func New(dial Dialer, dispatcher *dispatch.Dispatcher, restartSubscription time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		dial:                dial,
		dispatcher:          dispatcher,
		restartSubscription: restartSubscription,
		logger:              logger,
	}
}

// Counters exposes the observational counter tuple. Never used in
// correctness decisions.
func (s *Supervisor) Counters() *Counters {
	return &s.counters
}

// Run loops: connect, subscribe, drive until the resubscribe deadline,
// cancel, sleep, reconnect. It returns only when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.runOnce(ctx); err != nil {
			s.logger.Warn("supervisor cycle ended with error, reconnecting", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(DelayBeforeReconnect):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	manager, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer manager.Close()

	subs, err := broker.Subscribe(ctx, manager)
	if err != nil {
		return err
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.restartSubscription)
	defer cancel()

	lastTags := make([]lastTag, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *broker.Subscription) {
			defer wg.Done()
			s.driveStream(cycleCtx, sub, &lastTags[i])
		}(i, sub)
	}
	wg.Wait()

	s.logCounters()

	for i, sub := range subs {
		tag, have := lastTags[i].get()
		if err := sub.Cancel(tag, have); err != nil {
			s.logger.Warn("error cancelling consumer", zap.String("queue", sub.Queue), zap.Error(err))
		}
		sub.Channel.Release()
	}

	return nil
}

// lastTag records the most recently seen delivery tag for one channel,
// guarded by a mutex (the teacher's counter fields use the same pattern).
type lastTag struct {
	mu  sync.Mutex
	tag uint64
	has bool
}

func (l *lastTag) set(tag uint64) {
	l.mu.Lock()
	l.tag = tag
	l.has = true
	l.mu.Unlock()
}

func (l *lastTag) get() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tag, l.has
}

// clearIfMatch marks the tag resolved, but only if it's still the most
// recently seen one — an older delivery finishing after a newer one arrived
// must not clobber the newer tag's outstanding status.
func (l *lastTag) clearIfMatch(tag uint64) {
	l.mu.Lock()
	if l.has && l.tag == tag {
		l.has = false
	}
	l.mu.Unlock()
}

// driveStream reads deliveries from one subscription until its channel
// closes or cycleCtx expires, dispatching each one and arbitrating the
// ack/nack outcome.
func (s *Supervisor) driveStream(cycleCtx context.Context, sub *broker.Subscription, last *lastTag) {
	var dwg sync.WaitGroup
	for {
		select {
		case <-cycleCtx.Done():
			dwg.Wait()
			return
		case delivery, ok := <-sub.Deliveries:
			if !ok {
				dwg.Wait()
				return
			}

			last.set(delivery.DeliveryTag)
			s.counters.Received.Add(1)
			metrics.DeliveriesReceived.WithLabelValues(sub.Queue).Inc()

			dwg.Add(1)
			go func(d amqp.Delivery) {
				defer dwg.Done()
				s.handleDelivery(cycleCtx, sub, d, last)
			}(delivery)
		}
	}
}

// handleDelivery wraps one dispatch call in a per-message timeout and
// arbitrates ack/nack per the state machine in the spec's Supervisor Loop.
// Once the ack or nack is confirmed, it clears the tag from last so the
// cancel-time cleanup in runOnce never re-nacks an already-resolved tag.
func (s *Supervisor) handleDelivery(parentCtx context.Context, sub *broker.Subscription, d amqp.Delivery, last *lastTag) {
	deliveryCtx, cancel := context.WithTimeout(context.Background(), timeoutFor(parentCtx))
	defer cancel()

	err := s.dispatcher.Dispatch(deliveryCtx, sub.Queue, d.Body)

	ch := sub.Channel.Channel()
	if err == nil {
		s.counters.AckAttempted.Add(1)
		if ackErr := ch.Ack(d.DeliveryTag, false); ackErr != nil {
			s.logger.Error("ack failed", zap.String("queue", sub.Queue), zap.Error(ackErr))
			return
		}
		last.clearIfMatch(d.DeliveryTag)
		s.counters.AckConfirmed.Add(1)
		metrics.AcksConfirmed.WithLabelValues(sub.Queue).Inc()
		return
	}

	s.logger.Warn("dispatch failed or timed out, nacking with requeue",
		zap.String("queue", sub.Queue), zap.Error(err))

	time.Sleep(DelayBeforeNack)

	s.counters.NackAttempted.Add(1)
	if nackErr := ch.Nack(d.DeliveryTag, false, true); nackErr != nil {
		s.logger.Error("nack failed", zap.String("queue", sub.Queue), zap.Error(nackErr))
		return
	}
	last.clearIfMatch(d.DeliveryTag)
	s.counters.NackConfirmed.Add(1)
	metrics.NacksConfirmed.WithLabelValues(sub.Queue).Inc()
}

// timeoutFor bounds a single delivery's dispatch by whatever remains of the
// current resubscribe cycle, so it is at most restart_subscription_secs and
// shorter for deliveries that arrive later in the cycle. Without a deadline
// it falls back to one minute; an already expired deadline yields 1ms.
func timeoutFor(cycleCtx context.Context) time.Duration {
	deadline, ok := cycleCtx.Deadline()
	if !ok {
		return time.Minute
	}
	d := time.Until(deadline)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func (s *Supervisor) logCounters() {
	s.logger.Info("resubscribe boundary reached",
		zap.Int64("received", s.counters.Received.Load()),
		zap.Int64("ack_attempted", s.counters.AckAttempted.Load()),
		zap.Int64("ack_confirmed", s.counters.AckConfirmed.Load()),
		zap.Int64("nack_attempted", s.counters.NackAttempted.Load()),
		zap.Int64("nack_confirmed", s.counters.NackConfirmed.Load()),
	)
	metrics.ResubscribeTotal.Inc()
}
