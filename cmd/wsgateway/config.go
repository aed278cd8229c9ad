package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	listenAddr  string
	upstreamURL string
	wsPath      string

	store         string // "memory" ou "redis"
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	limits         domain.Limits
	failPolicy     domain.FailurePolicy
	maxConnections int
	trustProxy     bool
	keyHeader      string
	addHeaders     bool
	allowedOrigins []string

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool

	log logConfig
}

type logConfig struct {
	level      string
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WSGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := domain.DefaultLimits()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("upstream_url", "")
	v.SetDefault("ws_path", "/ws")
	v.SetDefault("store", "memory")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("limits.max_connections_per_ip", def.MaxConnectionsPerIP)
	v.SetDefault("limits.max_messages_per_minute", def.MaxMessagesPerMinute)
	v.SetDefault("limits.max_reconnect_attempts_per_hour", def.MaxReconnectAttemptsPerHour)
	v.SetDefault("limits.rate_limit_window_seconds", def.RateLimitWindowSeconds)
	// IMPORTANTE: fail-open é o comportamento histórico. Durante uma queda do
	// Redis as travas de admissão ficam desligadas; use "closed" para recusar.
	v.SetDefault("fail_policy", "open")
	v.SetDefault("max_connections", 0)
	v.SetDefault("trust_proxy_headers", true)
	v.SetDefault("key_header", "")
	v.SetDefault("add_ratelimit_headers", false)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.prefix", "wsguard:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	return v
}

// bindFlags liga as flags da linha de comando às chaves do viper.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"listen_addr":  "listen-addr",
		"upstream_url": "upstream",
		"store":        "store",
		"redis.addr":   "redis-addr",
		"fail_policy":  "fail-policy",
		"log.level":    "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		listenAddr:    v.GetString("listen_addr"),
		upstreamURL:   strings.TrimSpace(v.GetString("upstream_url")),
		wsPath:        v.GetString("ws_path"),
		store:         strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		redisAddr:     strings.TrimSpace(v.GetString("redis.addr")),
		redisPassword: v.GetString("redis.password"),
		redisDB:       v.GetInt("redis.db"),
		redisPrefix:   v.GetString("redis.prefix"),
		limits: domain.Limits{
			MaxConnectionsPerIP:         v.GetInt("limits.max_connections_per_ip"),
			MaxMessagesPerMinute:        v.GetInt("limits.max_messages_per_minute"),
			MaxReconnectAttemptsPerHour: v.GetInt("limits.max_reconnect_attempts_per_hour"),
			RateLimitWindowSeconds:      v.GetInt("limits.rate_limit_window_seconds"),
		},
		maxConnections: v.GetInt("max_connections"),
		trustProxy:     v.GetBool("trust_proxy_headers"),
		keyHeader:      v.GetString("key_header"),
		addHeaders:     v.GetBool("add_ratelimit_headers"),
		allowedOrigins: v.GetStringSlice("allowed_origins"),
		statsEnabled:   v.GetBool("stats.enabled"),
		statsPrefix:    v.GetString("stats.prefix"),
		statsTTL:       v.GetDuration("stats.ttl"),
		statsBucket:    v.GetString("stats.bucket"),
		statsTrackKeys: v.GetBool("stats.track_keys"),
		log: logConfig{
			level:      v.GetString("log.level"),
			file:       v.GetString("log.file"),
			maxSizeMB:  v.GetInt("log.max_size_mb"),
			maxBackups: v.GetInt("log.max_backups"),
			maxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	policy, ok := domain.ParseFailurePolicy(strings.ToLower(strings.TrimSpace(v.GetString("fail_policy"))))
	if !ok {
		return config{}, fmt.Errorf("fail_policy must be \"open\" or \"closed\", got %q", v.GetString("fail_policy"))
	}
	cfg.failPolicy = policy

	if cfg.upstreamURL == "" {
		return config{}, errors.New("upstream_url is required")
	}
	u, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return config{}, fmt.Errorf("invalid upstream_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return config{}, fmt.Errorf("upstream_url must use ws:// or wss://, got %q", u.Scheme)
	}
	if !strings.HasPrefix(cfg.wsPath, "/") {
		return config{}, errors.New("ws_path must start with /")
	}

	switch cfg.store {
	case "memory":
		if cfg.statsEnabled {
			return config{}, errors.New("stats.enabled requires store=redis")
		}
	case "redis":
		if cfg.redisAddr == "" {
			return config{}, errors.New("redis.addr is required when store=redis")
		}
	default:
		return config{}, fmt.Errorf("store must be \"memory\" or \"redis\", got %q", cfg.store)
	}

	if cfg.limits.MaxConnectionsPerIP <= 0 {
		return config{}, errors.New("limits.max_connections_per_ip must be > 0")
	}
	if cfg.limits.MaxMessagesPerMinute <= 0 {
		return config{}, errors.New("limits.max_messages_per_minute must be > 0")
	}
	if cfg.limits.MaxReconnectAttemptsPerHour <= 0 {
		return config{}, errors.New("limits.max_reconnect_attempts_per_hour must be > 0")
	}
	if cfg.limits.RateLimitWindowSeconds <= 0 {
		return config{}, errors.New("limits.rate_limit_window_seconds must be > 0")
	}
	if cfg.maxConnections < 0 {
		return config{}, errors.New("max_connections must be >= 0")
	}
	return cfg, nil
}
