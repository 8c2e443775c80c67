package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"paperwhisper/internal/util"
)

type ErrorType string

const (
	ErrorQuota       ErrorType = "quota"
	ErrorRate        ErrorType = "rate"
	ErrorTransient   ErrorType = "transient"
	ErrorPermanent   ErrorType = "permanent"
	ErrorContext     ErrorType = "context"
	ErrorCredentials ErrorType = "credentials"
	ErrorCanceled    ErrorType = "canceled"
)

// ClassifyError prefers the typed sentinels and falls back to message
// matching for errors that crossed a serialization boundary (Temporal
// activity results carry only the message).
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCanceled
	case errors.Is(err, util.ErrQuotaExhausted):
		return ErrorQuota
	case errors.Is(err, util.ErrRateLimited):
		return ErrorRate
	case errors.Is(err, util.ErrContextTooLong):
		return ErrorContext
	case errors.Is(err, util.ErrMissingCredentials):
		return ErrorCredentials
	case errors.Is(err, util.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient
	case errors.Is(err, util.ErrPermanent):
		return ErrorPermanent
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// statusError maps an HTTP error response onto the error taxonomy.
func statusError(provider string, code int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > 300 {
		text = text[:300]
	}
	msg := fmt.Sprintf("%s error %d: %s", provider, code, text)
	low := strings.ToLower(text)
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", util.ErrMissingCredentials, msg)
	case code == http.StatusPaymentRequired, strings.Contains(low, "insufficient_quota"), strings.Contains(low, "quota exceeded"):
		return fmt.Errorf("%w: %s", util.ErrQuotaExhausted, msg)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", util.ErrRateLimited, msg)
	case code == http.StatusRequestTimeout, code >= 500:
		return util.Transient(errors.New(msg))
	case strings.Contains(low, "context_length"), strings.Contains(low, "maximum context"), strings.Contains(low, "too long"):
		return fmt.Errorf("%w: %s", util.ErrContextTooLong, msg)
	default:
		return fmt.Errorf("%w: %s", util.ErrPermanent, msg)
	}
}

// requestError wraps a transport failure. Caller cancellation is passed
// through untouched; everything else is retryable.
func requestError(ctx context.Context, provider, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", provider, op, ctxErr)
	}
	return util.Transient(fmt.Errorf("%s %s request failed: %w", provider, op, err))
}

// shouldFailover reports whether the next provider in a chain may succeed
// where this one failed.
func shouldFailover(err error) bool {
	switch ClassifyError(err) {
	case ErrorQuota, ErrorRate, ErrorTransient, ErrorCredentials:
		return true
	default:
		return false
	}
}
