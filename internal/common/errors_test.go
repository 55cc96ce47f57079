package common

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      error
		retryable bool
	}{
		{"transient", TransientFetchError("status 503", io.ErrUnexpectedEOF), ErrTransientFetch, true},
		{"permanent", PermanentFetchError("status 404", nil), ErrPermanentFetch, false},
		{"extraction", ExtractionError("corrupt pdf", errors.New("xref")), ErrExtraction, false},
		{"fatal config", FatalConfigErrorf("workers must be at least 1"), ErrFatalConfig, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("doc 600000|2024-03-30|annual: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))

			var app *AppError
			assert.True(t, errors.As(wrapped, &app))
		})
	}
}

func TestTransientKeepsCause(t *testing.T) {
	err := TransientFetchError("read body", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), CodeTransientFetch)
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "ignored"))
	assert.EqualError(t, WrapError(io.EOF, "read"), "read: EOF")
}
