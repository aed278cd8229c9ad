// utilitário pequeno para formatação de valores numéricos nos headers X-RateLimit-*.

package wsguard

import (
	"net/http"
	"strconv"

	"ws-gateway/middleware/wsguard/domain"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// rateLimitHeaders vão na resposta do upgrade quando AddRateLimitHeaders=true.
func rateLimitHeaders(key domain.Key, lim domain.Limits) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Key", string(key))
	h.Set("X-RateLimit-Connections", formatInt(lim.MaxConnectionsPerIP))
	h.Set("X-RateLimit-Attempts", formatInt(lim.MaxReconnectAttemptsPerHour))
	h.Set("X-RateLimit-Window", formatInt(lim.RateLimitWindowSeconds))
	h.Set("X-RateLimit-Messages", formatInt(lim.MaxMessagesPerMinute))
	return h
}
