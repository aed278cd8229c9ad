package main

import (
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Backend burro para validar o gateway na mão:
//
//	go run ./teste-validacao/servidor-burrao
//	go run ./cmd/wsgateway --upstream ws://localhost:8081/ws
func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		logger.Info("conexão recebida", zap.String("xff", r.Header.Get("X-Forwarded-For")))

		_ = ws.WriteMessage(websocket.TextMessage, []byte("Tela do Sistema: conexão recebida com sucesso!"))
		for {
			mt, p, err := ws.ReadMessage()
			if err != nil {
				logger.Info("conexão encerrada", zap.Error(err))
				return
			}
			if err := ws.WriteMessage(mt, p); err != nil {
				return
			}
		}
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("servidor rodando", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal("erro ao subir o servidor", zap.Error(err))
	}
}
