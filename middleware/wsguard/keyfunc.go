package wsguard

import (
	"net"
	"net/http"
	"strings"

	"ws-gateway/middleware/wsguard/domain"
)

type KeyFunc func(r *http.Request) string

// DefaultKeyFunc resolve a identidade do cliente nesta ordem:
//
//  1. keyHeader (se configurado e presente)
//  2. primeiro IP do X-Forwarded-For
//  3. X-Real-IP
//  4. host do RemoteAddr (ou RemoteAddr cru se não tiver porta)
//  5. "unknown"
//
// Com trustProxyHeaders=false os passos 2 e 3 são ignorados.
func DefaultKeyFunc(keyHeader string, trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustProxyHeaders {
			// o primeiro IP do X-Forwarded-For é o cliente original
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		remote := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(remote)
		if err == nil && host != "" {
			return host
		}
		if remote != "" {
			return remote
		}
		return string(domain.UnknownKey)
	}
}
