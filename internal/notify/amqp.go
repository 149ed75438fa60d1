package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultQueue receives notices for downstream delivery (email, push).
const DefaultQueue = "generation_notices"

// AMQPSink publishes notices as persistent messages on a durable queue.
type AMQPSink struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  zerolog.Logger
}

// DialAMQP connects and declares the queue.
func DialAMQP(url, queue string, logger zerolog.Logger) (*AMQPSink, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: declare queue: %w", err)
	}
	logger.Info().Str("queue", queue).Msg("notify: amqp sink ready")
	return &AMQPSink{conn: conn, channel: ch, queue: queue, logger: logger}, nil
}

func (s *AMQPSink) Notify(ctx context.Context, n Notice) {
	body, err := json.Marshal(n)
	if err != nil {
		s.logger.Error().Err(err).Msg("notify: encode notice")
		return
	}
	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         string(n.Kind),
		Timestamp:    n.At,
		Body:         body,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("notify: amqp publish failed")
	}
}

// Consume hands queued notices to fn until ctx ends. A notice fn fails on
// is requeued; an undecodable message is dropped.
func (s *AMQPSink) Consume(ctx context.Context, consumer string, fn func(context.Context, Notice) error) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("notify: open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("notify: set prefetch: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, s.queue, consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("notify: consume %s: %w", s.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notify: delivery channel closed")
			}
			var n Notice
			if err := json.Unmarshal(d.Body, &n); err != nil {
				s.logger.Warn().Err(err).Msg("notify: dropping undecodable message")
				_ = d.Nack(false, false)
				continue
			}
			if err := fn(ctx, n); err != nil {
				s.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("notify: delivery failed, requeueing")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("notify: close amqp channel")
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
