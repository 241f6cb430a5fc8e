package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polteknik/kompen/internal/service"
)

var logger = loggo.GetLogger("kompen.queue")

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialer opens a channel with the queue already declared.  It must give up
// when ctx is done.
type dialer func(ctx context.Context, url, queue string) (channel, func() error, error)

// dialTimeout bounds a connection attempt made without a ctx deadline.
const dialTimeout = 5 * time.Second

// Publisher publishes notifications as persistent JSON messages on a
// durable queue.  The connection is opened on first use and reopened after
// a failed publish.
type Publisher struct {
	url   string
	queue string
	clock clock.Clock
	dial  dialer

	mu      sync.Mutex
	ch      channel
	closeFn func() error
}

var _ service.Notifier = (*Publisher)(nil)

// NewPublisher returns a Publisher for queue on the broker at url.
func NewPublisher(url, queue string, clk clock.Clock) *Publisher {
	return &Publisher{url: url, queue: queue, clock: clk, dial: dialAMQP}
}

// connectTimeout is the time left for a dial, never more than dialTimeout.
func connectTimeout(ctx context.Context) time.Duration {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

func dialAMQP(ctx context.Context, url, queue string) (channel, func() error, error) {
	timeout := connectTimeout(ctx)
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Annotate(err, "dial broker")
	}
	if timeout <= 0 {
		return nil, nil, errors.Annotate(context.DeadlineExceeded, "dial broker")
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, errors.Annotate(err, "dial broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Annotate(err, "open channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, errors.Annotatef(err, "declare %s", queue)
	}
	return ch, conn.Close, nil
}

// Notify implements service.Notifier.
func (p *Publisher) Notify(ctx context.Context, n service.Notification) error {
	ev := newEvent(uuid.NewString(), n, p.clock.Now())
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Trace(err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.MessageID,
		Timestamp:    ev.CreatedAt,
		Body:         body,
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.mu.Lock()
		if p.ch == ch {
			p.reset()
		}
		p.mu.Unlock()
		return errors.Annotatef(err, "publish %s", ev.MessageID)
	}
	logger.Debugf("published %s %s for user %d", ev.Template, ev.Subject, ev.UserID)
	return nil
}

// channel returns the open channel, dialing a new one when there is none.
// The lock is not held while dialing so a dead broker costs each caller at
// most its own ctx deadline.
func (p *Publisher) channel(ctx context.Context) (channel, error) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch != nil {
		return ch, nil
	}

	ch, closeFn, err := p.dial(ctx, p.url, p.queue)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		// Another caller connected first.
		_ = ch.Close()
		_ = closeFn()
		return p.ch, nil
	}
	p.ch, p.closeFn = ch, closeFn
	return ch, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeFn != nil {
		_ = p.closeFn()
	}
	p.ch, p.closeFn = nil, nil
}

// LogNotifier is the Notifier used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n service.Notification) error {
	logger.Infof("notification %s %s #%d for user %d (no broker)", n.Template, n.Subject, n.EntityID, n.UserID)
	return nil
}
