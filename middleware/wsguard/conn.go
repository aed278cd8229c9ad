package wsguard

import (
	"context"
	"errors"
	"time"

	"ws-gateway/middleware/wsguard/application"
	"ws-gateway/middleware/wsguard/domain"
	"ws-gateway/middleware/wsguard/infra"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrMessageRateExceeded é retornado por ReadMessage quando o cliente passou do
// limite de mensagens por minuto. A conexão já foi fechada com 1008.
var ErrMessageRateExceeded = errors.New("wsguard: message rate exceeded")

// Conn envolve a conexão WebSocket admitida. ReadMessage/WriteMessage registram
// telemetria e repassam os payloads sem alteração.
type Conn struct {
	ws  *websocket.Conn
	key domain.Key
	id  string

	collector application.Collector
	gate      application.MessageGate
	reporter  application.Reporter
	metrics   *infra.Metrics
	timeout   time.Duration
}

func (c *Conn) ID() string      { return c.id }
func (c *Conn) Key() domain.Key { return c.key }

// WS expõe a conexão crua (ping/pong, deadlines). Frames enviados por ela não
// entram na telemetria.
func (c *Conn) WS() *websocket.Conn { return c.ws }

func (c *Conn) ReadMessage() (int, []byte, error) {
	mt, p, err := c.ws.ReadMessage()
	if err != nil {
		return mt, p, err
	}

	c.metrics.Received()
	c.telemetry("message_received", c.collector.MessageReceived)

	if dec := c.gate.Decide(c.key); !dec.Allowed {
		c.reporter.Logger.Info("closing connection",
			zap.String("conn_id", c.id),
			zap.String("client", string(c.key)),
			zap.String("reason", string(dec.Reason)))
		writeClose(c.ws, websocket.ClosePolicyViolation)
		_ = c.ws.Close()
		return mt, nil, ErrMessageRateExceeded
	}
	return mt, p, nil
}

// WriteMessage só conta o frame depois que a escrita deu certo.
func (c *Conn) WriteMessage(messageType int, data []byte) error {
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return err
	}
	c.metrics.Sent()
	c.telemetry("message_sent", c.collector.MessageSent)
	return nil
}

// Close envia um close normal (1000) e fecha a conexão.
func (c *Conn) Close() error {
	writeClose(c.ws, websocket.CloseNormalClosure)
	return c.ws.Close()
}

func (c *Conn) telemetry(op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.reporter.Report(op, fn(ctx), zap.String("conn_id", c.id))
}

func writeClose(ws *websocket.Conn, code int) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
}
