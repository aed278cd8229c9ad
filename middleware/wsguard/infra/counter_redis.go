package infra

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/redis/go-redis/v9"
)

// incrBelowScript incrementa KEYS[1] somente se o valor atual for < ARGV[1]
// e renova o TTL (ARGV[2], em ms). Retorna {permitido, valor}.
var incrBelowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
	return {0, current}
end
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, n}
`)

// decrFloorScript decrementa KEYS[1] sem passar de zero, preservando o TTL.
var decrFloorScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
	return 0
end
return redis.call('DECR', KEYS[1])
`)

var _ domain.CounterStore = (*RedisCounterStore)(nil)

// RedisCounterStore implementa domain.CounterStore com go-redis.
//
// As operações compostas usam scripts Lua ou MULTI/EXEC, então são atômicas
// mesmo com vários gateways compartilhando o mesmo Redis.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisCounterOption func(*RedisCounterStore)

// WithCounterPrefix adiciona um namespace às chaves (ex.: "wsguard" -> "wsguard:conn_rate:1.2.3.4").
func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *RedisCounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := s.key(key)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if ttl > 0 {
			pipe.PExpire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	res, err := incrBelowScript.Run(ctx, s.rdb, []string{s.key(key)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, errors.New("infra: unexpected incr-below reply")
	}
	return res[1], res[0] == 1, nil
}

func (s *RedisCounterStore) DecrFloor(ctx context.Context, key string) (int64, error) {
	return decrFloorScript.Run(ctx, s.rdb, []string{s.key(key)}).Int64()
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *RedisCounterStore) PushBounded(ctx context.Context, key string, value float64, max int, ttl time.Duration) error {
	k := s.key(key)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, strconv.FormatFloat(value, 'f', -1, 64))
		if max > 0 {
			pipe.LTrim(ctx, k, int64(-max), -1)
		}
		if ttl > 0 {
			pipe.PExpire(ctx, k, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisCounterStore) List(ctx context.Context, key string) ([]float64, error) {
	raw, err := s.rdb.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
