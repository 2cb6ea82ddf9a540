package middleware

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/nkiryanov/storefront/internal/handlers/render"
)

const defaultRateLimitClients = 10_000

type RateLimitConfig struct {
	// Requests per second allowed for one client and the burst above it
	RPS   float64
	Burst int

	// Max count of tracked clients, the least recently seen are forgotten
	MaxClients int
}

// Limit request rate per client IP
// Disabled if RPS is not positive
func RateLimit(cfg RateLimitConfig) (func(http.Handler) http.Handler, error) {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.Burst <= 0 {
		return nil, errors.New("rate limit burst must be positive")
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = defaultRateLimitClients
	}

	clients, err := lru.New[string, *rate.Limiter](cfg.MaxClients)
	if err != nil {
		return nil, err
	}

	limiter := func(ip string) *rate.Limiter {
		if l, ok := clients.Get(ip); ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
		if prev, found, _ := clients.PeekOrAdd(ip, l); found {
			return prev
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := limiter(clientIP(r))

			if !l.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(1/cfg.RPS))))
				render.Error(w, render.RateLimitedType, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
