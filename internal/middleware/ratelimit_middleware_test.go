package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpost/internal/ratelimit"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

// httptest requests carry RemoteAddr 192.0.2.1, so that is the window key.
const (
	testFailedKey = "rate:failed:192.0.2.1"
	testReadKey   = "rate:read:192.0.2.1"
)

func newRateLimitRouter(s *store.MemoryStore, cfg ratelimit.Config, h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.NewLimiter(s, cfg)
	r := gin.New()
	r.Use(ErrorHandler(logger.New("test")))
	r.POST("/limited",
		FailedRequestGate(limiter, IdentityFromIP()),
		RateLimitMiddleware(limiter, ratelimit.ScopeRead, cfg.RegisteredLimit, IdentityFromIP()),
		h)
	return r
}

func postLimited(r http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func windowLen(t *testing.T, s *store.MemoryStore, key string) int {
	t.Helper()
	stamps, err := s.GetRateWindow(context.Background(), key)
	require.NoError(t, err)
	return len(stamps)
}

func defaultWindowConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:            time.Minute,
		RegisteredLimit:   10,
		UnregisteredLimit: 10,
		FailedLimit:       5,
	}
}

func TestSuccessChargesRouteScope(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRateLimitRouter(s, defaultWindowConfig(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := postLimited(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, windowLen(t, s, testReadKey))
	assert.Equal(t, 0, windowLen(t, s, testFailedKey))
}

func TestErrorReportedFailureChargesFailedScope(t *testing.T) {
	s := store.NewMemoryStore()
	// The handler reports failure the way every service-backed handler
	// does: via c.Error, with the response written later by ErrorHandler.
	r := newRateLimitRouter(s, defaultWindowConfig(), func(c *gin.Context) {
		c.Error(agentpost_errors.ErrNotFound)
	})

	w := postLimited(r)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, windowLen(t, s, testFailedKey))
	assert.Equal(t, 0, windowLen(t, s, testReadKey))
}

func TestValidationErrorChargesFailedScope(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRateLimitRouter(s, defaultWindowConfig(), func(c *gin.Context) {
		verr := agentpost_errors.NewValidationError()
		verr.Add("content", "empty")
		c.Error(verr)
	})

	w := postLimited(r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, windowLen(t, s, testFailedKey))
	assert.Equal(t, 0, windowLen(t, s, testReadKey))
}

func TestWrittenBadRequestChargesFailedScope(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRateLimitRouter(s, defaultWindowConfig(), func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed"})
	})

	w := postLimited(r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, windowLen(t, s, testFailedKey))
	assert.Equal(t, 0, windowLen(t, s, testReadKey))
}

func TestServerErrorDoesNotChargeFailedScope(t *testing.T) {
	s := store.NewMemoryStore()
	r := newRateLimitRouter(s, defaultWindowConfig(), func(c *gin.Context) {
		c.Error(context.DeadlineExceeded)
	})

	w := postLimited(r)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 0, windowLen(t, s, testFailedKey))
	assert.Equal(t, 1, windowLen(t, s, testReadKey))
}

func TestFailedRequestGateBlocksAfterCeiling(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := defaultWindowConfig()
	cfg.FailedLimit = 2
	r := newRateLimitRouter(s, cfg, func(c *gin.Context) {
		c.Error(agentpost_errors.ErrNotFound)
	})

	for i := 0; i < cfg.FailedLimit; i++ {
		w := postLimited(r)
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	w := postLimited(r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The blocked request consumed nothing from the honest read window.
	assert.Equal(t, 0, windowLen(t, s, testReadKey))
}
