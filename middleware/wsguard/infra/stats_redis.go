package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/redis/go-redis/v9"
)

// Campos dos hashes de admissão.
const (
	fieldAdmitted = "admitted"
	fieldRejected = "rejected"
)

// RedisStatsStore grava as decisões de admissão em hashes do Redis:
//
//	{prefix}:admissions            admitted/rejected (cumulativo, sem TTL)
//	{prefix}:admissions:{minuto}   admitted/rejected por minuto (floor(unix/60))
//	{prefix}:rejections            contagem por motivo
//	{prefix}:client:{ip}           admitted/rejected por cliente (opcional)
//
// O minuto usa o mesmo bucket de messages_per_minute, então dá para cruzar as
// duas séries sem conversão.
type RedisStatsStore struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration // só séries por minuto e por cliente
	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute" (padrão) ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.perMinute = strings.ToLower(strings.TrimSpace(bucket)) != "none"
	}
}

// WithStatsTrackKeys liga o hash por cliente. Cuidado com a cardinalidade.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "wsguard:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := fieldRejected
	if ev.Allowed {
		field = fieldAdmitted
	}
	client := strings.TrimSpace(string(ev.Key))

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.key("admissions"), field, 1)

		expiring := func(k string) {
			pipe.HIncrBy(ctx, k, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, k, s.ttl)
			}
		}
		if s.perMinute {
			expiring(s.key("admissions", strconv.FormatInt(domain.MinuteBucket(at), 10)))
		}
		if s.trackKeys && client != "" {
			expiring(s.key("client", client))
		}

		if ev.Reason != domain.ReasonNone {
			pipe.HIncrBy(ctx, s.key("rejections"), string(ev.Reason), 1)
		}
		return nil
	})
	return err
}
