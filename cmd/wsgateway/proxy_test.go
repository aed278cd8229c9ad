package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ws-gateway/middleware/wsguard"
	"ws-gateway/middleware/wsguard/infra"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// upstreamServer faz eco; a mensagem "bye" faz o upstream fechar com 4000.
func upstreamServer(t *testing.T, seenXFF chan<- string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seenXFF != nil {
			seenXFF <- r.Header.Get("X-Forwarded-For")
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, p, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(p) == "bye" {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(4000, "bye"), time.Now().Add(time.Second))
				_, _, _ = ws.ReadMessage()
				return
			}
			if err := ws.WriteMessage(mt, p); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gatewayServer(t *testing.T, upstream string) *httptest.Server {
	t.Helper()
	h := wsguard.Handler(wsguard.Options{Store: infra.NewMemoryCounterStore()}, newProxy(upstream, zap.NewNop()).serve)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dialGateway(t *testing.T, gw *httptest.Server, ip string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	h.Set("X-Forwarded-For", ip)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(gw), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	return ws
}

func TestProxy_Echo(t *testing.T) {
	xff := make(chan string, 1)
	up := upstreamServer(t, xff)
	gw := gatewayServer(t, wsURL(up))

	ws := dialGateway(t, gw, "9.9.9.9")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))

	mt, p, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "ping", string(p))
	assert.Equal(t, "9.9.9.9", <-xff)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	mt, p, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{0x01, 0x02}, p)
}

func TestProxy_ForwardsUpstreamClose(t *testing.T) {
	up := upstreamServer(t, nil)
	gw := gatewayServer(t, wsURL(up))

	ws := dialGateway(t, gw, "9.9.9.8")
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("bye")))

	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4000, ce.Code)
}

func TestProxy_UpstreamDown(t *testing.T) {
	up := upstreamServer(t, nil)
	target := wsURL(up)
	up.Close()
	gw := gatewayServer(t, target)

	ws := dialGateway(t, gw, "9.9.9.7")
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseTryAgainLater, ce.Code)
}
