package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodPatch,
	}
	defaultCORSHeaders = []string{"Content-Type", "Authorization"}
)

type CORSConfig struct {
	// Origins allowed to make cross-site requests
	// Wildcard "*" is refused: responses always allow credentials
	AllowedOrigins []string

	// Defaults are used if empty
	AllowedMethods []string
	AllowedHeaders []string

	// How long preflight answer may be cached
	MaxAge time.Duration
}

// Cross-origin requests with credentials (cookies) from the allowed origins
// Preflight requests are answered here and never reach next handler
func CORS(cfg CORSConfig) (func(http.Handler) http.Handler, error) {
	if slices.Contains(cfg.AllowedOrigins, "*") {
		return nil, errors.New("wildcard origin is not allowed with credentials, list origins explicitly")
	}
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = defaultCORSMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaultCORSHeaders
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	allowed := func(origin string) bool {
		return origin != "" && slices.Contains(cfg.AllowedOrigins, origin)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			// Credentials are not allowed with wildcard, so echo the origin
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}, nil
}
