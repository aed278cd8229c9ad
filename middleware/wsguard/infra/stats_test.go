package infra

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByReasonAndClient(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "a", Reason: domain.ReasonConcurrencyExceeded}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "b", Reason: domain.ReasonAttemptsExceeded}))

	assert.Equal(t, Counters{Admitted: 1, Rejected: 2}, s.Total())
	assert.Equal(t, int64(1), s.Rejections()[domain.ReasonConcurrencyExceeded])

	a, ok := s.Client("a")
	require.True(t, ok)
	assert.Equal(t, Counters{Admitted: 1, Rejected: 1}, a)

	_, ok = s.Client("nobody")
	assert.False(t, ok)
}

func TestMemoryStatsStore_ClientsUntrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "a", Allowed: true}))

	_, ok := s.Client("a")
	assert.False(t, ok)
	assert.Equal(t, int64(1), s.Total().Admitted)
}

func TestRedisStatsStore_WritesHashes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb, WithStatsPrefix("test:stats:"), WithStatsTrackKeys(true), WithStatsTTL(time.Hour))
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	minute := "test:stats:admissions:" + strconv.FormatInt(at.Unix()/60, 10)

	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "1.1.1.1", Allowed: true, At: at}))
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "1.1.1.1", Reason: domain.ReasonConcurrencyExceeded, At: at}))

	assert.Equal(t, "1", mr.HGet("test:stats:admissions", "admitted"))
	assert.Equal(t, "1", mr.HGet("test:stats:admissions", "rejected"))
	assert.Equal(t, "1", mr.HGet(minute, "rejected"))
	assert.Equal(t, "1", mr.HGet("test:stats:rejections", "concurrency_exceeded"))
	assert.Equal(t, "1", mr.HGet("test:stats:client:1.1.1.1", "admitted"))
	assert.Equal(t, "1", mr.HGet("test:stats:client:1.1.1.1", "rejected"))
	assert.Equal(t, time.Hour, mr.TTL(minute))
	assert.Equal(t, time.Duration(0), mr.TTL("test:stats:admissions"))
}

func TestRedisStatsStore_NoBucketNoClients(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb, WithStatsBucket("none"))
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "1.1.1.1", Allowed: true}))

	assert.Equal(t, []string{"wsguard:stats:admissions"}, mr.Keys())
}

func TestPrometheusStatsStore_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewPrometheusStatsStore(m)

	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Allowed: true}))
	require.NoError(t, s.Record(context.Background(), domain.StatsEvent{Reason: domain.ReasonAttemptsExceeded}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues("allowed", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Admissions.WithLabelValues("denied", "attempts_exceeded")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Opened()
	m.Sent()
	m.Received()
	m.Closed(time.Second)
	m.TelemetryError("x")
}

func TestMetrics_ConnectionLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Opened()
	m.Opened()
	m.Closed(3 * time.Second)
	m.Sent()
	m.Received()
	m.Received()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Messages.WithLabelValues("received")))
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("boom") }

func TestMultiStatsStore_RecordsAllAndReturnsError(t *testing.T) {
	mem := NewMemoryStatsStore()
	ms := MultiStatsStore{failingStats{}, nil, mem}

	err := ms.Record(context.Background(), domain.StatsEvent{Allowed: true})
	assert.Error(t, err)
	assert.Equal(t, int64(1), mem.Total().Admitted)
}
