package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"agentpost/internal/transport/httpdto"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler translates service errors attached via c.Error into HTTP
// responses. Handlers return errors; status mapping lives here, once.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := statusFor(err)

		var rateErr *agentpost_errors.RateLimitedError
		if errors.As(err, &rateErr) {
			c.Header("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())+1))
		}

		var valErr *agentpost_errors.ValidationError
		if errors.As(err, &valErr) {
			c.JSON(status, httpdto.NewFieldErrorResponse(valErr.Fields, valErr.Error(), code))
			return
		}

		if status >= http.StatusInternalServerError && l != nil {
			l.Errorf("request error: %s", err.Error())
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

// statusFor maps a service error to the status and machine-readable code the
// client will see. The rate-limit classifier relies on it too, so every
// error a handler can report must resolve here.
func statusFor(err error) (int, string) {
	var rateErr *agentpost_errors.RateLimitedError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests, "RATE_LIMITED"
	}
	var valErr *agentpost_errors.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, "VALIDATION_FAILED"
	}

	switch {
	case errors.Is(err, agentpost_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, agentpost_errors.ErrRecipientNotFound):
		return http.StatusNotFound, "RECIPIENT_NOT_FOUND"
	case errors.Is(err, agentpost_errors.ErrTxNotFound):
		return http.StatusNotFound, "TX_NOT_FOUND"
	case errors.Is(err, agentpost_errors.ErrAgentExists):
		return http.StatusConflict, "AGENT_EXISTS"
	case errors.Is(err, agentpost_errors.ErrReplyExists):
		return http.StatusConflict, "REPLY_EXISTS"
	case errors.Is(err, agentpost_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, agentpost_errors.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, agentpost_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, agentpost_errors.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, agentpost_errors.ErrWrongAsset):
		return http.StatusPaymentRequired, "WRONG_ASSET"
	case errors.Is(err, agentpost_errors.ErrInsufficientAmount):
		return http.StatusPaymentRequired, "INSUFFICIENT_AMOUNT"
	case errors.Is(err, agentpost_errors.ErrWrongRecipient):
		return http.StatusPaymentRequired, "WRONG_RECIPIENT"
	case errors.Is(err, agentpost_errors.ErrSettlementFailed):
		return http.StatusPaymentRequired, "SETTLEMENT_FAILED"
	case errors.Is(err, agentpost_errors.ErrNoPayerIdentified):
		return http.StatusPaymentRequired, "NO_PAYER"
	case errors.Is(err, agentpost_errors.ErrTxNotConfirmed):
		return http.StatusPaymentRequired, "TX_NOT_CONFIRMED"
	case errors.Is(err, agentpost_errors.ErrNotASupportedTransfer):
		return http.StatusPaymentRequired, "UNSUPPORTED_TRANSFER"
	case errors.Is(err, agentpost_errors.ErrDuplicatePayment):
		return http.StatusConflict, "DUPLICATE_PAYMENT"
	case errors.Is(err, agentpost_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
