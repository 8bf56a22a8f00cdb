package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("session: get: %w", ErrNotFound), "not_found"},
		{fmt.Errorf("join: %w", ErrSessionFull), "session_full"},
		{ErrForbidden, "forbidden"},
		{ErrInvalidCandidate, "invalid_candidate"},
		{ErrUnauthenticated, "unauthenticated"},
		{NewValidationError("category", "too long"), "validation_error"},
		{ErrRateLimited, "rate_limited"},
		{ErrCatalogUnavailable, "catalog_unavailable"},
		{fmt.Errorf("redis: %w: %w", ErrStoreUnavailable, errors.New("dial tcp")), "store_unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}
