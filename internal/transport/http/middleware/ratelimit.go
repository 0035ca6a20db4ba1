package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-verify-api/internal/infrastructure/ratelimit"
	"github.com/go-verify-api/internal/pkg/token"
)

// Limiter is satisfied by both the in-process and the Redis limiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit enforces a limit per API key, or per client IP when the request
// carries no well-formed key. Limiter errors let the request through.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := l.Allow(r.Context(), limitKey(r))
			if err != nil {
				slog.Warn("rate limiter unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitKey never contains the plaintext key. Malformed keys count against
// the client IP so arbitrary header values cannot mint fresh buckets.
func limitKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAuthKey); token.IsAPIKey(key) {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:])
	}
	return "ip:" + realIP(r)
}

func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	if d.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	}
	if d.Remaining >= 0 {
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if d.ResetAt.IsZero() {
		return
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		retry := int64(time.Until(d.ResetAt).Seconds())
		if retry < 0 {
			retry = 0
		}
		h.Set("Retry-After", strconv.FormatInt(retry, 10))
	}
}

// realIP returns the first X-Forwarded-For hop, then X-Real-Ip, then the
// host part of RemoteAddr.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
