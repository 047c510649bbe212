package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportErr struct{}

func (reportErr) Error() string   { return "two of four steps failed" }
func (reportErr) ErrorCode() Code { return CodePartialFanOut }

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeNotFound, "kindergarten not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("register: %w", New(CodeValidation, "age out of range"))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("custom coder participates", func(t *testing.T) {
		err := fmt.Errorf("remove: %w", reportErr{})
		assert.True(t, HasCode(err, CodePartialFanOut))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "failed to load kindergarten")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load kindergarten: connection refused", err.Error())
	assert.Equal(t, "failed to load kindergarten", Message(err))
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:             http.StatusNotFound,
		CodeValidation:           http.StatusBadRequest,
		CodeConcurrentUpdateLost: http.StatusConflict,
		CodePartialFanOut:        http.StatusBadGateway,
		CodeStoreUnavailable:     http.StatusServiceUnavailable,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeInternal:             http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
