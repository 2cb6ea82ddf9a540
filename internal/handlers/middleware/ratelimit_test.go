package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	request := func(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	t.Run("limit per client", func(t *testing.T) {
		mw, err := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 2})
		require.NoError(t, err)
		h := mw(next)

		assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1000").Code)
		assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1001").Code, "port is not part of client identity")

		w := request(h, "10.0.0.1:1002")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.JSONEq(t, `{"error": "rate_limited", "message": "Too many requests"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		assert.Equal(t, http.StatusOK, request(h, "10.0.0.2:1000").Code, "other client has own limit")
	})

	t.Run("forgotten client starts over", func(t *testing.T) {
		mw, err := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1, MaxClients: 1})
		require.NoError(t, err)
		h := mw(next)

		require.Equal(t, http.StatusOK, request(h, "10.0.0.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.1:1").Code)
		require.Equal(t, http.StatusOK, request(h, "10.0.0.2:1").Code)

		assert.Equal(t, http.StatusOK, request(h, "10.0.0.1:1").Code, "evicted client gets fresh limiter")
	})

	t.Run("disabled", func(t *testing.T) {
		mw, err := RateLimit(RateLimitConfig{})
		require.NoError(t, err)
		h := mw(next)

		for range 100 {
			require.Equal(t, http.StatusOK, request(h, "10.0.0.1:1").Code)
		}
	})

	t.Run("bad config", func(t *testing.T) {
		_, err := RateLimit(RateLimitConfig{RPS: 1, Burst: 0})
		require.Error(t, err)
	})
}
