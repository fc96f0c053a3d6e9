package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"kycvault/internal/platform/metrics"
)

func TestOpsRouter(t *testing.T) {
	t.Run("healthy dependencies", func(t *testing.T) {
		router := NewOpsRouter(nil, map[string]Check{
			"postgres": func(context.Context) error { return nil },
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"postgres":"ok"`)
	})

	t.Run("failing dependency returns 503", func(t *testing.T) {
		router := NewOpsRouter(nil, map[string]Check{
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "refused")
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		router := NewOpsRouter(metrics.New().Handler(), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "go_goroutines")
	})
}
