package api

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
)

// keyQueryParam carries the API key for clients that cannot set headers,
// such as browser WebSocket connections.
const keyQueryParam = "api_key"

// apiKeyAuth enforces API key authentication on every request.
//
// Behaviour:
//   - If mode != "apikey" or the key is unset, all requests are allowed.
//   - Otherwise the request must carry the key in the configured header, or
//     in the api_key query parameter.
//   - A missing or incorrect key returns 401.
func apiKeyAuth(auth config.AuthConfig) func(http.Handler) http.Handler {
	key := auth.Key()
	header := auth.EffectiveHeader()
	return func(next http.Handler) http.Handler {
		if auth.Mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(keyQueryParam)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit rejects requests beyond the configured rate with 429. A zero
// RPS disables limiting.
func rateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	// mux applies middleware per request; the limiter must outlive it.
	lim := rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
