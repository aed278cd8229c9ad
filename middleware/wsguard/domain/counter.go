package domain

import (
	"context"
	"strconv"
	"time"
)

// CounterStore é o store chave/valor compartilhado que guarda contadores de vida
// curta com expiração (ex.: Redis, cache em memória).
//
// Toda operação de leitura-modificação-escrita deve ser atômica no store.
// A aplicação nunca usa locks próprios para proteger esses contadores.
type CounterStore interface {
	Get(ctx context.Context, key string) (value int64, ok bool, err error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Incr incrementa em 1 e renova o TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// IncrBelow incrementa somente se o valor atual for < limit.
	// Se o limite já foi atingido, retorna ok=false sem alterar a chave.
	IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (value int64, ok bool, err error)

	// DecrFloor decrementa em 1 sem nunca ficar abaixo de zero.
	// O TTL existente é preservado.
	DecrFloor(ctx context.Context, key string) (int64, error)

	Delete(ctx context.Context, key string) error

	// PushBounded adiciona value ao fim da lista e mantém apenas os max mais recentes.
	PushBounded(ctx context.Context, key string, value float64, max int, ttl time.Duration) error
	List(ctx context.Context, key string) ([]float64, error)
}

// Convenção de chaves no store de contadores.
const (
	KeyPrefixConnRate          = "conn_rate:"
	KeyPrefixConcurrentConn    = "concurrent_conn:"
	KeyPrefixConnectionsToday  = "connections_today:"
	KeyPrefixMessagesPerMinute = "messages_per_minute:"
	KeyPrefixConnOpened        = "conn_opened:"

	KeyActiveConnections   = "active_connections_total"
	KeyMessagesSent        = "messages_sent_total"
	KeyMessagesReceived    = "messages_received_total"
	KeyConnectionDurations = "connection_durations"
)

// TTLs dos contadores de telemetria.
const (
	TTLGauge          = time.Hour
	TTLConnectionsDay = 24 * time.Hour
	TTLMinuteBucket   = 2 * time.Minute
	TTLConcurrent     = time.Hour
)

// MaxDurationSamples limita o buffer connection_durations (FIFO).
const MaxDurationSamples = 100

func ConnRateKey(k Key) string       { return KeyPrefixConnRate + string(k) }
func ConcurrentConnKey(k Key) string { return KeyPrefixConcurrentConn + string(k) }
func ConnOpenedKey(id string) string { return KeyPrefixConnOpened + id }

// ConnectionsTodayKey usa a data UTC no formato YYYY-MM-DD.
func ConnectionsTodayKey(at time.Time) string {
	return KeyPrefixConnectionsToday + at.UTC().Format(time.DateOnly)
}

// MinuteBucket é floor(unix/60).
func MinuteBucket(at time.Time) int64 { return at.Unix() / 60 }

func MessagesPerMinuteKey(bucket int64) string {
	return KeyPrefixMessagesPerMinute + strconv.FormatInt(bucket, 10)
}
