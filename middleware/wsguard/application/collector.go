package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ws-gateway/middleware/wsguard/domain"
)

// Collector observa conexões já admitidas e mensagens, gravando contadores no
// store. Nunca decide admissão.
//
// Os métodos retornam o erro do store para quem chama decidir como reportar;
// o adapter trata tudo como best-effort (ver Reporter).
type Collector struct {
	Store domain.CounterStore
	Now   func() time.Time
}

// Session guarda o necessário para fechar uma conexão aberta com Open.
type Session struct {
	ID       string
	OpenedAt time.Time
}

func (c Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Open registra a abertura: gauge de conexões ativas, conexões do dia e o
// timestamp de abertura da conexão id.
func (c Collector) Open(ctx context.Context, id string) (Session, error) {
	at := c.now()
	sess := Session{ID: id, OpenedAt: at}
	if c.Store == nil {
		return sess, nil
	}

	var errs []error
	if _, err := c.Store.Incr(ctx, domain.KeyActiveConnections, domain.TTLGauge); err != nil {
		errs = append(errs, fmt.Errorf("active connections: %w", err))
	}
	if _, err := c.Store.Incr(ctx, domain.ConnectionsTodayKey(at), domain.TTLConnectionsDay); err != nil {
		errs = append(errs, fmt.Errorf("connections today: %w", err))
	}
	if err := c.Store.Set(ctx, domain.ConnOpenedKey(id), at.UnixNano(), domain.TTLGauge); err != nil {
		errs = append(errs, fmt.Errorf("open timestamp: %w", err))
	}
	return sess, errors.Join(errs...)
}

// Close decrementa o gauge (sem passar de zero) e grava a duração no buffer
// connection_durations. Retorna a duração calculada mesmo se o store falhar.
func (c Collector) Close(ctx context.Context, sess Session) (time.Duration, error) {
	now := c.now()
	opened := sess.OpenedAt
	if c.Store == nil {
		return now.Sub(opened), nil
	}

	var errs []error
	if _, err := c.Store.DecrFloor(ctx, domain.KeyActiveConnections); err != nil {
		errs = append(errs, fmt.Errorf("active connections: %w", err))
	}

	// o timestamp do store vale mais que o local: pode ter sido gravado por
	// outra instância que aceitou a conexão.
	if ns, ok, err := c.Store.Get(ctx, domain.ConnOpenedKey(sess.ID)); err != nil {
		errs = append(errs, fmt.Errorf("open timestamp: %w", err))
	} else if ok {
		opened = time.Unix(0, ns)
	}

	d := now.Sub(opened)
	if d < 0 {
		d = 0
	}
	if err := c.Store.PushBounded(ctx, domain.KeyConnectionDurations, d.Seconds(), domain.MaxDurationSamples, domain.TTLGauge); err != nil {
		errs = append(errs, fmt.Errorf("durations: %w", err))
	}
	if err := c.Store.Delete(ctx, domain.ConnOpenedKey(sess.ID)); err != nil {
		errs = append(errs, fmt.Errorf("open timestamp: %w", err))
	}
	return d, errors.Join(errs...)
}

// MessageSent conta um frame enviado ao cliente.
func (c Collector) MessageSent(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	var errs []error
	if _, err := c.Store.Incr(ctx, domain.KeyMessagesSent, domain.TTLGauge); err != nil {
		errs = append(errs, fmt.Errorf("messages sent: %w", err))
	}
	bucket := domain.MessagesPerMinuteKey(domain.MinuteBucket(c.now()))
	if _, err := c.Store.Incr(ctx, bucket, domain.TTLMinuteBucket); err != nil {
		errs = append(errs, fmt.Errorf("messages per minute: %w", err))
	}
	return errors.Join(errs...)
}

// MessageReceived conta um frame recebido do cliente.
func (c Collector) MessageReceived(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	if _, err := c.Store.Incr(ctx, domain.KeyMessagesReceived, domain.TTLGauge); err != nil {
		return fmt.Errorf("messages received: %w", err)
	}
	return nil
}
