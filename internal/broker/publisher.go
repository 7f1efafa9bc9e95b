package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stq-payments/notify-dispatcher/internal/domain"
	"github.com/stq-payments/notify-dispatcher/internal/errs"
)

const exchangeName = "notifications"

// Publisher declares the dead-letter topology and republishes payloads that
// exhausted their retry schedule to the matching error_* queue.
type Publisher struct {
	manager *Manager
}

// NewPublisher builds a Publisher bound to manager. Call Init before the
// first publish.
func NewPublisher(manager *Manager) *Publisher {
	return &Publisher{manager: manager}
}

// Init declares the notifications exchange and all three dead-letter
// queues, binding each by routing key equal to its queue name. Idempotent:
// calling it twice leaves identical broker topology.
func (p *Publisher) Init(ctx context.Context) error {
	pc, err := p.manager.AcquireChannel(ctx)
	if err != nil {
		return errs.Wrap(errs.KindRabbitConnection, err, "acquire channel for publisher init")
	}
	defer pc.Release()

	ch := pc.Channel()
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return errs.Wrap(errs.KindInternal, err, "declare exchange")
	}

	for _, queue := range []string{"error_callbacks", "error_emails", "error_pushes"} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return errs.Wrap(errs.KindInternal, err, "declare dead-letter queue "+queue)
		}
		if err := ch.QueueBind(queue, queue, exchangeName, false, nil); err != nil {
			return errs.Wrap(errs.KindInternal, err, "bind dead-letter queue "+queue)
		}
	}

	return nil
}

// publish serializes payload and publishes it to routingKey on the
// notifications exchange, waiting for the broker's publish confirm.
func (p *Publisher) publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.KindMalformedInput, err, "encode dead-letter payload")
	}

	pc, err := p.manager.AcquireChannel(ctx)
	if err != nil {
		return errs.Wrap(errs.KindRabbitConnection, err, "acquire channel for publish")
	}
	defer pc.Release()

	ch := pc.Channel()
	confirm := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		return errs.Wrap(errs.KindInternal, err, "publish to "+routingKey)
	}

	select {
	case ack := <-confirm:
		if !ack.Ack {
			return errs.New(errs.KindInternal, fmt.Sprintf("broker nacked publish to %s", routingKey))
		}
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.KindInternal, ctx.Err(), "publish confirm timeout")
	}
}

// PublishCallback dead-letters a Callback that exhausted its retry schedule.
func (p *Publisher) PublishCallback(ctx context.Context, cb domain.Callback) error {
	return p.publish(ctx, "error_callbacks", cb)
}

// PublishEmail dead-letters an Email that exhausted its retry schedule.
func (p *Publisher) PublishEmail(ctx context.Context, e domain.Email) error {
	return p.publish(ctx, "error_emails", e)
}

// PublishPush dead-letters a PushNotification that exhausted its retry
// schedule.
func (p *Publisher) PublishPush(ctx context.Context, n domain.PushNotification) error {
	return p.publish(ctx, "error_pushes", n)
}
