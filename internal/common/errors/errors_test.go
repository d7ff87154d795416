// internal/common/errors/errors_test.go
package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidTransition,
		CodeOf(NewInvalidTransitionError("REQUIRES_DOCS", "APPROVED")))
	assert.Equal(t, ErrCodeStorageError, CodeOf(fmt.Errorf("plain error")))
}

func TestCodeOf_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewAlreadyReviewedError("ver-1"))
	assert.Equal(t, ErrCodeAlreadyReviewed, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeAlreadyReviewed))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewLenderTimeoutError("lender-1")))
	assert.True(t, IsRetryable(NewLenderRejectedError("lender-1", fmt.Errorf("status 500"))))
	assert.False(t, IsRetryable(NewMissingFieldsError("name")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}
