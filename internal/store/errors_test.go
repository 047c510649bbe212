package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"kindergarten/internal/docstore"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
)

func TestTranslate(t *testing.T) {
	exhausted := fmt.Errorf("%w after 5 attempts: %w", docstore.ErrRetriesExhausted, sentinel.ErrConflict)
	tests := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"not found", fmt.Errorf("kindergartens: %w", sentinel.ErrNotFound), dErrors.CodeNotFound},
		{"already exists", sentinel.ErrAlreadyExists, dErrors.CodeConflict},
		{"conflict", sentinel.ErrConflict, dErrors.CodeConflict},
		{"retries exhausted wins over conflict", exhausted, dErrors.CodeConcurrentUpdateLost},
		{"unavailable", sentinel.ErrUnavailable, dErrors.CodeStoreUnavailable},
		{"unknown", errors.New("disk on fire"), dErrors.CodeInternal},
		{"coded passes through", dErrors.New(dErrors.CodeValidation, "bad"), dErrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dErrors.CodeOf(Translate(tt.err, "kindergarten")))
		})
	}
	assert.NoError(t, Translate(nil, "x"))
	assert.Equal(t, "kindergarten not found", dErrors.Message(Translate(sentinel.ErrNotFound, "kindergarten")))
}
