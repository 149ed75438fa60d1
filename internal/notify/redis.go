package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSink publishes notices on a per-user pub/sub channel so any API
// replica holding the user's stream can forward them.
type RedisSink struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisSink(client *redis.Client, prefix string, logger zerolog.Logger) *RedisSink {
	if prefix == "" {
		prefix = "notices:"
	}
	return &RedisSink{client: client, prefix: prefix, logger: logger}
}

// Channel returns the pub/sub channel for userID.
func (s *RedisSink) Channel(userID string) string {
	return s.prefix + userID
}

func (s *RedisSink) Notify(ctx context.Context, n Notice) {
	raw, err := json.Marshal(n)
	if err != nil {
		s.logger.Error().Err(err).Msg("notify: encode notice")
		return
	}
	if err := s.client.Publish(ctx, s.Channel(n.UserID), raw).Err(); err != nil {
		s.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("notify: redis publish failed")
	}
}

// Forward subscribes to userID's channel and calls fn for every notice until
// ctx is done.
func (s *RedisSink) Forward(ctx context.Context, userID string, fn func(Notice)) error {
	sub := s.client.Subscribe(ctx, s.Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var n Notice
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					s.logger.Warn().Err(err).Msg("notify: bad redis payload")
					continue
				}
				fn(n)
			}
		}
	}()
	return nil
}
