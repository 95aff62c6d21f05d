package middleware

import (
	"net/http"
	"strconv"

	"agentpost/internal/metrics"
	"agentpost/internal/ratelimit"
	"agentpost/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// IdentityFunc resolves the identity a window is keyed by: an agent address
// when the route carries one, the client IP otherwise.
type IdentityFunc func(c *gin.Context) string

// IdentityFromIP keys the window by client IP.
func IdentityFromIP() IdentityFunc {
	return func(c *gin.Context) string {
		return c.ClientIP()
	}
}

// RateLimitMiddleware bounds a free write path with a sliding window. The
// request is charged against the window only when the handler did not fail
// validation; failed requests are charged against the tighter failed scope
// instead.
func RateLimitMiddleware(limiter *ratelimit.Limiter, scope string, limit int, identity IdentityFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if id == "" {
			id = c.ClientIP()
		}
		ctx := c.Request.Context()

		result, err := limiter.Allow(ctx, scope, id, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("rate limit error", "INTERNAL_ERROR"))
			c.Abort()
			return
		}
		setRateLimitHeaders(c, result)
		if !result.Allowed {
			metrics.RateLimitRejections.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()

		if failedRequest(c) {
			limiter.Record(ctx, ratelimit.ScopeFailed, id)
			return
		}
		limiter.Record(ctx, scope, id)
	}
}

// failedRequest reports whether the handler outcome was a caller failure
// (4xx). Errors reported via c.Error are not written to the response yet at
// this point in the chain, so they are resolved through the same mapping
// ErrorHandler applies afterwards.
func failedRequest(c *gin.Context) bool {
	status := c.Writer.Status()
	if !c.Writer.Written() && len(c.Errors) > 0 {
		status, _ = statusFor(c.Errors.Last().Err)
	}
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// FailedRequestGate rejects callers whose recent failed requests exceed the
// failed-scope ceiling, before the main window is even consulted.
func FailedRequestGate(limiter *ratelimit.Limiter, identity IdentityFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if id == "" {
			id = c.ClientIP()
		}

		result, err := limiter.Allow(c.Request.Context(), ratelimit.ScopeFailed, id, limiter.FailedLimit())
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("rate limit error", "INTERNAL_ERROR"))
			c.Abort()
			return
		}
		if !result.Allowed {
			metrics.RateLimitRejections.WithLabelValues(ratelimit.ScopeFailed).Inc()
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many failed requests", "RATE_LIMITED"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.RetryAfter.Seconds()), 10))
}
