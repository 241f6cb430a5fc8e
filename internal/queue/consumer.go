package queue

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polteknik/kompen/internal/config"
)

const maxBackoff = 30 * time.Second

// StartNotificationConsumer consumes the notification queue until ctx is
// done, appending each message to cfg.LogPath.  Broker failures are retried
// with a doubling backoff; malformed messages are rejected without requeue.
func StartNotificationConsumer(ctx context.Context, cfg config.BrokerConfig, clk clock.Clock) error {
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return errors.Annotate(err, "create notification log dir")
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Annotate(err, "open notification log")
	}
	defer f.Close()
	sink := &lineSink{w: f}

	backoff := cfg.RetryBackoff
	for {
		err := consume(ctx, cfg, sink)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warningf("notification consumer stopped: %v; retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func consume(ctx context.Context, cfg config.BrokerConfig, sink *lineSink) error {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return errors.Annotate(err, "dial broker")
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return errors.Annotate(err, "open channel")
	}
	defer ch.Close()
	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warningf("set qos: %v", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return errors.Annotatef(err, "declare %s", cfg.Queue)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Annotatef(err, "consume %s", cfg.Queue)
	}
	logger.Infof("consuming %s", cfg.Queue)
	for d := range deliveries {
		if err := sink.handle(d.Body); err != nil {
			logger.Errorf("notification %s rejected: %v", d.MessageId, err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// lineSink writes one line per notification.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSink) handle(body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Annotate(err, "decode notification")
	}
	if ev.UserID == 0 || ev.Template == "" {
		return errors.NotValidf("notification %q", ev.MessageID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, ev.Line())
	return errors.Trace(err)
}
