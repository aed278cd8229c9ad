package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ws-gateway/middleware/wsguard"
	"ws-gateway/middleware/wsguard/domain"
	"ws-gateway/middleware/wsguard/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	var configFile string

	cmd := &cobra.Command{
		Use:           "wsgateway",
		Short:         "Gateway WebSocket com admissão por IP e telemetria de conexões",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := readConfigFile(v, configFile); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "arquivo de configuração (yaml, json, toml)")
	flags.String("listen-addr", ":8080", "endereço de escuta")
	flags.String("upstream", "", "URL ws:// ou wss:// do backend")
	flags.String("store", "memory", "store de contadores: memory ou redis")
	flags.String("redis-addr", "", "endereço do Redis (store=redis)")
	flags.String("fail-policy", "open", "comportamento com store indisponível: open ou closed")
	flags.String("log-level", "info", "nível de log")
	cobra.CheckErr(bindFlags(v, flags))
	return cmd
}

func run(parent context.Context, cfg config) error {
	logger, err := newLogger(cfg.log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)
	stats := infra.MultiStatsStore{infra.NewPrometheusStatsStore(metrics)}

	var store domain.CounterStore
	switch cfg.store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping error: %w", err)
		}

		store = infra.NewRedisCounterStore(rdb, infra.WithCounterPrefix(cfg.redisPrefix))
		if cfg.statsEnabled {
			stats = append(stats, infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.statsPrefix),
				infra.WithStatsTTL(cfg.statsTTL),
				infra.WithStatsBucket(cfg.statsBucket),
				infra.WithStatsTrackKeys(cfg.statsTrackKeys),
			))
		}
	default:
		mem := infra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		store = mem
	}

	messages := infra.NewMessageStore(cfg.limits.MaxMessagesPerMinute)
	messages.StartJanitor(ctx)

	px := newProxy(cfg.upstreamURL, logger)
	ws := wsguard.Handler(wsguard.Options{
		Store:               store,
		Limits:              cfg.limits,
		FailurePolicy:       cfg.failPolicy,
		Stats:               stats,
		Metrics:             metrics,
		Messages:            messages,
		Context:             ctx,
		MaxConnections:      cfg.maxConnections,
		KeyHeader:           cfg.keyHeader,
		IgnoreProxyHeaders:  !cfg.trustProxy,
		AddRateLimitHeaders: cfg.addHeaders,
		Upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.allowedOrigins),
		},
		Logger: logger,
	}, px.serve)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newRouter(cfg.wsPath, ws, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("upstream", cfg.upstreamURL),
		zap.String("ws_path", cfg.wsPath),
		zap.String("store", cfg.store),
		zap.Stringer("fail_policy", cfg.failPolicy),
		zap.Int("max_connections_per_ip", cfg.limits.MaxConnectionsPerIP),
		zap.Int("max_reconnect_attempts_per_hour", cfg.limits.MaxReconnectAttemptsPerHour),
		zap.Int("max_messages_per_minute", cfg.limits.MaxMessagesPerMinute),
		zap.Int("max_connections", cfg.maxConnections),
		zap.Bool("trust_proxy_headers", cfg.trustProxy),
	)
	if cfg.failPolicy == domain.FailOpen {
		logger.Warn("fail-open: admission limits are bypassed while the counter store is unavailable")
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newRouter(wsPath string, ws http.Handler, store domain.CounterStore, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle(wsPath, ws)
	r.Handle("/stats", wsguard.StatsHandler(store, logger))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// checkOrigin aceita apenas as origens listadas. Lista vazia mantém a regra
// padrão do gorilla (mesmo host).
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
