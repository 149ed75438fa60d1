package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mediagen/internal/domain"
)

// debitScript decrements the balance only when it covers the amount.
// Returns -1 when funds are insufficient, the new balance otherwise.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
  return -1
end
return redis.call('DECRBY', KEYS[1], amount)
`)

// RedisService keeps balances as integer keys and debits through a Lua
// script so the check and the decrement run atomically on the server.
type RedisService struct {
	client *redis.Client
	prefix string
}

func NewRedisService(client *redis.Client, prefix string) *RedisService {
	if prefix == "" {
		prefix = "credits:"
	}
	return &RedisService{client: client, prefix: prefix}
}

func (s *RedisService) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisService) AuthorizeAndDebit(ctx context.Context, userID string, amount int) (bool, error) {
	res, err := debitScript.Run(ctx, s.client, []string{s.key(userID)}, amount).Int64()
	if err != nil {
		return false, fmt.Errorf("redis debit: %w", err)
	}
	return res >= 0, nil
}

func (s *RedisService) Balance(ctx context.Context, userID string) (int, error) {
	bal, err := s.client.Get(ctx, s.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis balance: %w", err)
	}
	return bal, nil
}

// Grant adds credits and returns the new balance.
func (s *RedisService) Grant(ctx context.Context, userID string, amount int) (int, error) {
	bal, err := s.client.IncrBy(ctx, s.key(userID), int64(amount)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis grant: %w", err)
	}
	return int(bal), nil
}

var _ domain.CreditService = (*RedisService)(nil)
