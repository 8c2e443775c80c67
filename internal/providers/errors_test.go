package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"paperwhisper/internal/util"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota": ErrorQuota,
		"429 rate":           ErrorRate,
		"context too long":   ErrorContext,
		"timeout":            ErrorTransient,
		"bad request":        ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyErrorSentinels(t *testing.T) {
	assert.Equal(t, ErrorRate, ClassifyError(fmt.Errorf("x: %w", util.ErrRateLimited)))
	assert.Equal(t, ErrorQuota, ClassifyError(util.ErrQuotaExhausted))
	assert.Equal(t, ErrorCredentials, ClassifyError(util.ErrMissingCredentials))
	assert.Equal(t, ErrorTransient, ClassifyError(util.Transient(errors.New("reset"))))
	assert.Equal(t, ErrorCanceled, ClassifyError(context.Canceled))
	assert.Equal(t, ErrorType(""), ClassifyError(nil))
}

func TestStatusError(t *testing.T) {
	assert.ErrorIs(t, statusError("qwen", 429, []byte("slow down")), util.ErrRateLimited)
	assert.ErrorIs(t, statusError("qwen", 503, nil), util.ErrTransient)
	assert.ErrorIs(t, statusError("qwen", 401, nil), util.ErrConfig)
	assert.ErrorIs(t, statusError("qwen", 400, []byte(`{"error":{"code":"context_length_exceeded"}}`)), util.ErrContextTooLong)
	assert.ErrorIs(t, statusError("qwen", 400, []byte(`{"error":{"code":"insufficient_quota"}}`)), util.ErrQuotaExhausted)
	assert.ErrorIs(t, statusError("qwen", 404, []byte("no such model")), util.ErrPermanent)
}
