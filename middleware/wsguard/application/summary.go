package application

import (
	"context"
	"errors"

	"ws-gateway/middleware/wsguard/domain"
)

// Snapshot é a leitura dos contadores para dashboard/health.
type Snapshot struct {
	ActiveConnections  int64   `json:"active_connections"`
	ConnectionsToday   int64   `json:"connections_today"`
	MessagesSent       int64   `json:"messages_sent_total"`
	MessagesReceived   int64   `json:"messages_received_total"`
	MessagesThisMinute int64   `json:"messages_this_minute"`
	MessagesLastMinute int64   `json:"messages_last_minute"`
	DurationSamples    int     `json:"duration_samples"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// Summary só lê o store; chaves ausentes contam como zero.
// Em caso de erro devolve o que conseguiu ler junto com o erro.
func (c Collector) Summary(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if c.Store == nil {
		return snap, nil
	}
	now := c.now()
	bucket := domain.MinuteBucket(now)

	var errs []error
	read := func(key string, dst *int64) {
		v, _, err := c.Store.Get(ctx, key)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	read(domain.KeyActiveConnections, &snap.ActiveConnections)
	read(domain.ConnectionsTodayKey(now), &snap.ConnectionsToday)
	read(domain.KeyMessagesSent, &snap.MessagesSent)
	read(domain.KeyMessagesReceived, &snap.MessagesReceived)
	read(domain.MessagesPerMinuteKey(bucket), &snap.MessagesThisMinute)
	read(domain.MessagesPerMinuteKey(bucket-1), &snap.MessagesLastMinute)

	durations, err := c.Store.List(ctx, domain.KeyConnectionDurations)
	if err != nil {
		errs = append(errs, err)
	}
	snap.DurationSamples = len(durations)
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		snap.AvgDurationSeconds = sum / float64(len(durations))
	}
	return snap, errors.Join(errs...)
}
