// Package dispatch implements the Notificator: it decodes a raw delivery by
// queue name, drives the per-egress retry engine, and republishes to the
// matching dead-letter queue when the schedule is exhausted.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/egress/callback"
	"github.com/stq-payments/notify-dispatcher/internal/egress/email"
	"github.com/stq-payments/notify-dispatcher/internal/egress/push"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
	"github.com/stq-payments/notify-dispatcher/internal/metrics"
)

// RetrySchedule is the fixed inter-attempt wait sequence, in seconds, tried
// after each failed delivery attempt.
var RetrySchedule = []int{2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048}

// DeadLetterPublisher republishes payloads whose retry schedule was
// exhausted. Satisfied by *broker.Publisher.
type DeadLetterPublisher interface {
	PublishCallback(ctx context.Context, cb domain.Callback) error
	PublishEmail(ctx context.Context, e domain.Email) error
	PublishPush(ctx context.Context, n domain.PushNotification) error
}

// Dispatcher owns the routing table and retry engine.
type Dispatcher struct {
	callbackClient callback.Client
	emailClient    email.Client
	pushClient     push.Client
	deadLetter     DeadLetterPublisher
	logger         *zap.Logger

	// sleep is overridden in tests to observe the schedule without
	// actually waiting real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Dispatcher wired to the three egress clients and the
// dead-letter publisher.
func New(cb callback.Client, em email.Client, ps push.Client, dl DeadLetterPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		callbackClient: cb,
		emailClient:    em,
		pushClient:     ps,
		deadLetter:     dl,
		logger:         logger,
		sleep:          cancellableSleep,
	}
}

func cancellableSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch decodes body according to queue, then drives the egress +
// retry + dead-letter pipeline. It returns nil for every outcome the
// supervisor should ack (delivered, exhausted-and-dead-lettered, a terminal
// decode failure, or a non-transient egress error such as Unauthorized or
// MalformedInput, which is not retried); it returns an error only when the queue is
// unsupported or when ctx is cancelled mid-flight, both of which the
// supervisor nacks with requeue.
func (d *Dispatcher) Dispatch(ctx context.Context, queue string, body []byte) error {
	switch queue {
	case domain.QueueCallbacks:
		return dispatchOne(ctx, d, queue, body, d.callbackClient.Send, d.deadLetter.PublishCallback)
	case domain.QueueEmails:
		return dispatchOne(ctx, d, queue, body, d.emailClient.Send, d.deadLetter.PublishEmail)
	case domain.QueuePushes:
		return dispatchOne(ctx, d, queue, body, d.pushClient.Send, d.deadLetter.PublishPush)
	default:
		return errs.New(errs.KindNotSupported, "unsupported queue: "+queue)
	}
}

// dispatchOne is generic over the payload type T so the callback, email and
// push routes share one decode+retry+dead-letter implementation.
func dispatchOne[T any](
	ctx context.Context,
	d *Dispatcher,
	queue string,
	body []byte,
	send func(context.Context, T) error,
	deadLetter func(context.Context, T) error,
) error {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(queue).Observe(time.Since(start).Seconds())
	}()

	var payload T
	if err := decode(body, &payload); err != nil {
		d.logger.Warn("dropping delivery with undecodable payload", zap.Error(err))
		return nil
	}

	for i := 0; ; i++ {
		err := send(ctx, payload)
		if err == nil {
			return nil
		}
		d.logger.Warn("egress attempt failed", zap.Int("attempt", i+1), zap.Error(err))

		var e *errs.Error
		if errors.As(err, &e) && !errs.Transient(e.Kind) {
			d.logger.Warn("terminal egress failure, not retrying", zap.Error(err))
			return nil
		}

		if i >= len(RetrySchedule) {
			if dlErr := deadLetter(ctx, payload); dlErr != nil {
				d.logger.Error("dead-letter publish failed", zap.Error(dlErr))
			} else {
				metrics.DeadLettered.WithLabelValues(queue).Inc()
			}
			return nil
		}

		if err := d.sleep(ctx, time.Duration(RetrySchedule[i])*time.Second); err != nil {
			return errs.Wrap(errs.KindInternal, err, "retry sleep cancelled")
		}
	}
}

func decode(body []byte, v interface{}) error {
	if !utf8.Valid(body) {
		return errs.New(errs.KindMalformedInput, "payload is not valid UTF-8")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errs.Wrap(errs.KindMalformedInput, err, "decode payload")
	}
	return nil
}
