package activities

import (
	"errors"

	"paperwhisper/internal/util"

	"go.temporal.io/sdk/temporal"
)

// Application error types set on activity failures. Workflows match on them
// to decide between failing the paper and failing the run.
const (
	ErrTypeNoText            = "no_extractable_text"
	ErrTypeDimensionMismatch = "dimension_mismatch"
)

// NonRetryableErrorTypes lists the types the retry policy must not retry.
var NonRetryableErrorTypes = []string{
	string(util.KindConfig),
	string(util.KindPermanent),
	string(util.KindNotFound),
	string(util.KindConflict),
	string(util.KindCanceled),
	ErrTypeNoText,
	ErrTypeDimensionMismatch,
}

func appError(err error) error {
	if err == nil {
		return nil
	}
	typ := string(util.Kind(err))
	switch {
	case errors.Is(err, util.ErrNoExtractableText):
		typ = ErrTypeNoText
	case errors.Is(err, util.ErrDimensionMismatch):
		typ = ErrTypeDimensionMismatch
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), typ, err)
}

// IsErrorType reports whether err carries an application error of typ.
func IsErrorType(err error, typ string) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == typ
}
