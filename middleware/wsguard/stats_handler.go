package wsguard

import (
	"encoding/json"
	"net/http"

	"ws-gateway/middleware/wsguard/application"
	"ws-gateway/middleware/wsguard/domain"

	"go.uber.org/zap"
)

type statsResponse struct {
	application.Snapshot
	Degraded bool `json:"degraded"`
}

// StatsHandler expõe o snapshot dos contadores em JSON. Se o store falhar,
// responde 503 com o que conseguiu ler e degraded=true.
func StatsHandler(store domain.CounterStore, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := application.Collector{Store: store}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := c.Summary(r.Context())
		status := http.StatusOK
		if err != nil {
			logger.Warn("stats snapshot incomplete", zap.Error(err))
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(statsResponse{Snapshot: snap, Degraded: err != nil})
	})
}
