package api

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/garagehq/docvision/pkg/cache"
	"github.com/garagehq/docvision/pkg/config"
)

// NewRateLimiter creates a middleware that limits inbound requests. With
// Redis available the limit is distributed per client key; without it a
// single in-process limiter applies.
func NewRateLimiter(rdb *cache.Client, cfgStore *config.Store) func(http.Handler) http.Handler {
	local := rate.NewLimiter(rate.Inf, 0)
	if cfg := cfgStore.Get(); cfg != nil && cfg.RateLimit.Enabled {
		local = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	var distributed *redis_rate.Limiter
	if rdb != nil {
		distributed = redis_rate.NewLimiter(rdb.Redis())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := cfgStore.Get()
			if cfg == nil || !cfg.RateLimit.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if distributed != nil {
				res, err := distributed.Allow(r.Context(), "ratelimit:"+clientKey(r), redis_rate.Limit{
					Rate:   int(cfg.RateLimit.RPS),
					Burst:  cfg.RateLimit.Burst,
					Period: time.Second,
				})
				if err != nil {
					// Fail open: a broken limiter store must not take the
					// service down with it.
					log.Printf("[RATELIMIT] redis error, allowing request: %v", err)
					next.ServeHTTP(w, r)
					return
				}
				if res.Allowed == 0 {
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !local.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey buckets requests by API key when present, else by remote IP.
func clientKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
