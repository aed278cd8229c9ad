package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ws-gateway/middleware/wsguard"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// proxy liga cada conexão admitida a uma conexão nova com o upstream e copia
// frames nos dois sentidos, sem alterar payload.
type proxy struct {
	upstream string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

func newProxy(upstream string, logger *zap.Logger) *proxy {
	return &proxy{
		upstream: upstream,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logger,
	}
}

func (p *proxy) serve(ctx context.Context, c *wsguard.Conn) {
	log := p.logger.With(zap.String("conn_id", c.ID()), zap.String("client", string(c.Key())))

	h := http.Header{}
	h.Set("X-Forwarded-For", string(c.Key()))
	up, resp, err := p.dialer.DialContext(ctx, p.upstream, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		log.Warn("upstream dial failed", zap.Error(err))
		_ = c.WS().WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ""), time.Now().Add(time.Second))
		return
	}
	defer up.Close()

	done := make(chan error, 2)

	// cliente -> upstream
	go func() {
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if err := up.WriteMessage(mt, data); err != nil {
				done <- err
				return
			}
		}
	}()

	// upstream -> cliente
	go func() {
		for {
			mt, data, err := up.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if err := c.WriteMessage(mt, data); err != nil {
				done <- err
				return
			}
		}
	}()

	err = <-done
	var ce *websocket.CloseError
	switch {
	case errors.Is(err, wsguard.ErrMessageRateExceeded):
		// o cliente já recebeu 1008
	case errors.As(err, &ce):
		// repassa o close code para o outro lado
		msg := websocket.FormatCloseMessage(ce.Code, ce.Text)
		deadline := time.Now().Add(time.Second)
		_ = up.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.WS().WriteControl(websocket.CloseMessage, msg, deadline)
	default:
		log.Debug("proxy stopped", zap.Error(err))
	}

	// derruba as duas pontas para a outra goroutine sair
	_ = up.Close()
	_ = c.WS().Close()
	<-done
}
