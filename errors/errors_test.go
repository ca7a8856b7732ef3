package errors_test

import (
	goerrors "errors"
	"testing"

	"github.com/dargueta/fatcore/errors"
	"github.com/stretchr/testify/assert"
)

func TestFatErrorWithMessage(t *testing.T) {
	newErr := errors.ErrReadFailed.WithMessage("asdfqwerty")
	assert.Equal(
		t,
		"Input/output error reading device: asdfqwerty",
		newErr.Error(),
		"error message is wrong")
	assert.ErrorIs(t, newErr, errors.ErrReadFailed)
}

func TestFatErrorWrap(t *testing.T) {
	originalErr := goerrors.New("original error")
	newErr := errors.ErrWriteFailed.WrapError(originalErr)
	expectedMessage := "Input/output error writing device: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, errors.ErrWriteFailed, "kind not set as parent")
}

func TestFatErrorChainedMessages(t *testing.T) {
	newErr := errors.ErrNotFound.
		WithMessage("directory ran out").
		WithMessage("while rereading entry")
	assert.ErrorIs(t, newErr, errors.ErrNotFound, "kind lost after two wraps")
}
