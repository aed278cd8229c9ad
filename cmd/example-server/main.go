package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ws-gateway/middleware/wsguard"
	"ws-gateway/middleware/wsguard/domain"
	"ws-gateway/middleware/wsguard/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// Exemplo: guard embutido direto no seu servidor (sem proxy), store em memória
	store := infra.NewMemoryCounterStore()
	messages := infra.NewMessageStore(domain.DefaultLimits().MaxMessagesPerMinute)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)
	messages.StartJanitor(ctx)

	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)
	admissions := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	mux := http.NewServeMux()
	mux.Handle("/ws", wsguard.Handler(wsguard.Options{
		Store:               store,
		Limits:              domain.DefaultLimits(),
		Stats:               infra.MultiStatsStore{admissions, infra.NewPrometheusStatsStore(metrics)},
		Metrics:             metrics,
		Messages:            messages,
		Context:             ctx,
		MaxConnections:      50,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		AddRateLimitHeaders: true,
		Logger:              logger,
	}, echo))
	mux.Handle("/stats", wsguard.StatsHandler(store, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admissions", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"total":      admissions.Total(),
			"rejections": admissions.Rejections(),
		}
		if c, ok := admissions.Client(domain.Key(r.URL.Query().Get("client"))); ok {
			resp["client"] = c
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func echo(_ context.Context, c *wsguard.Conn) {
	for {
		mt, p, err := c.ReadMessage()
		if err != nil {
			return
		}
		if err := c.WriteMessage(mt, p); err != nil {
			return
		}
	}
}
