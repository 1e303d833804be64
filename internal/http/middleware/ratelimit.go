// Package middleware carries HTTP middlewares shared by the gateway binary.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateConfig caps requests per fixed window for one scope.
type RateConfig struct {
	Limit  int
	Window time.Duration
}

// RateLimiter throttles the vehicle API with Redis fixed-window counters:
// one scope for location writes (keyed per client so a chatty driver cannot
// starve the fleet) and one for reads.
type RateLimiter struct {
	client *redis.Client
	read   RateConfig
	write  RateConfig
}

// NewRateLimiter constructs the limiter; returns nil when Redis is absent so
// callers can skip installation entirely.
func NewRateLimiter(client *redis.Client, read, write RateConfig) *RateLimiter {
	if client == nil {
		return nil
	}
	return &RateLimiter{client: client, read: read, write: write}
}

// Middleware applies the per-scope limits.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || (l.read.Limit <= 0 && l.write.Limit <= 0) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, scope := l.write, "write"
		if isReadMethod(r.Method) {
			cfg, scope = l.read, "read"
		}
		if cfg.Limit <= 0 || cfg.Window <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter, err := l.allow(r.Context(), scope, clientIdentifier(r), cfg)
		if err != nil {
			// Fail open: a flaky Redis must not take the API down.
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, scope, identifier string, cfg RateConfig) (bool, time.Duration, error) {
	window := time.Now().UnixMilli() / cfg.Window.Milliseconds()
	key := fmt.Sprintf("rl:%s:%s:%d", scope, identifier, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	if count.Val() > int64(cfg.Limit) {
		elapsed := time.Duration(time.Now().UnixMilli()%cfg.Window.Milliseconds()) * time.Millisecond
		return false, cfg.Window - elapsed, nil
	}
	return true, 0, nil
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func clientIdentifier(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Client-ID")); id != "" {
		return id
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
